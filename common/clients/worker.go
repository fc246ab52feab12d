package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/pixeon/renderplane/common/config"
	apperrors "github.com/pixeon/renderplane/common/errors"
	"github.com/pixeon/renderplane/common/logger"
)

// terminal-or-not status strings reported by the worker history endpoint
var pendingStatuses = map[string]bool{
	"running": true,
	"pending": true,
	"queued":  true,
}

// WorkerClient talks to a graph-execution worker node over its HTTP API.
// All methods return ErrBackendUnavailable on transport failures and
// *BackendError on non-200 responses.
type WorkerClient struct {
	http *http.Client
	log  *logger.Logger
}

// NewWorkerClient creates a worker client with the configured timeouts
func NewWorkerClient(cfg *config.Config, log *logger.Logger) *WorkerClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.Worker.ConnectTimeout,
		}).DialContext,
		MaxIdleConnsPerHost: 4,
	}

	return &WorkerClient{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Worker.ReadTimeout,
		},
		log: log,
	}
}

// Submit posts a prompt payload to the worker and returns the prompt id.
// The payload is wrapped in {"prompt": ...} when it is a bare graph.
func (c *WorkerClient) Submit(ctx context.Context, baseURL string, payload map[string]any) (string, error) {
	if _, ok := payload["prompt"]; !ok {
		payload = map[string]any{"prompt": payload}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal prompt payload: %w", err)
	}

	respBody, err := c.post(ctx, strings.TrimRight(baseURL, "/")+"/prompt", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	promptID := gjson.GetBytes(respBody, "prompt_id").String()
	if promptID == "" {
		return "", fmt.Errorf("%w: response missing prompt_id", apperrors.ErrBackendUnavailable)
	}

	c.log.Debug("prompt submitted", "base_url", baseURL, "prompt_id", promptID)
	return promptID, nil
}

// History fetches the terminal outputs for a prompt. Returns nil when the
// prompt is unknown or still in a non-terminal state.
func (c *WorkerClient) History(ctx context.Context, baseURL, promptID string) (map[string]any, error) {
	body, err := c.get(ctx, strings.TrimRight(baseURL, "/")+"/history/"+promptID)
	if err != nil {
		return nil, err
	}

	item := gjson.GetBytes(body, escapeKey(promptID))
	if !item.Exists() {
		return nil, nil
	}

	status := strings.ToLower(item.Get("status.status_str").String())
	if status != "" && pendingStatuses[status] {
		return nil, nil
	}

	outputs := item.Get("outputs")
	if !outputs.IsObject() {
		return nil, nil
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(outputs.Raw), &result); err != nil {
		return nil, fmt.Errorf("decode history outputs: %w", err)
	}
	return result, nil
}

// ObjectInfo fetches the raw schema catalog document from the worker
func (c *WorkerClient) ObjectInfo(ctx context.Context, baseURL string) ([]byte, error) {
	body, err := c.get(ctx, strings.TrimRight(baseURL, "/")+"/object_info")
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, fmt.Errorf("%w: object_info returned invalid JSON", apperrors.ErrBackendUnavailable)
	}
	return body, nil
}

// UploadImage uploads image bytes to the worker's input store and returns the
// remote reference ("subfolder/name" or bare name). The api-prefixed upload
// path is attempted when the plain one is rejected.
func (c *WorkerClient) UploadImage(ctx context.Context, baseURL, name string, content []byte, subfolder string, overwrite bool) (string, error) {
	base := strings.TrimRight(baseURL, "/")

	respBody, err := c.postMultipart(ctx, base+"/upload/image", name, content, subfolder, overwrite)
	if err != nil {
		var backendErr *apperrors.BackendError
		if !errors.As(err, &backendErr) {
			return "", err
		}
		respBody, err = c.postMultipart(ctx, base+"/api/upload/image", name, content, subfolder, overwrite)
		if err != nil {
			return "", err
		}
	}

	result := gjson.ParseBytes(respBody)
	remote := result.Get("name").String()
	if remote == "" {
		remote = result.Get("filename").String()
	}
	if remote == "" {
		return "", fmt.Errorf("%w: upload response missing name", apperrors.ErrBackendUnavailable)
	}

	if sub := result.Get("subfolder").String(); sub != "" {
		return sub + "/" + remote, nil
	}
	return remote, nil
}

// Ping probes the worker liveness endpoint; any 200 counts as alive
func (c *WorkerClient) Ping(ctx context.Context, baseURL string) error {
	_, err := c.get(ctx, strings.TrimRight(baseURL, "/")+"/system_stats")
	return err
}

func (c *WorkerClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

func (c *WorkerClient) post(ctx context.Context, url, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

func (c *WorkerClient) postMultipart(ctx context.Context, url, name string, content []byte, subfolder string, overwrite bool) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("image", name)
	if err != nil {
		return nil, fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("write multipart field: %w", err)
	}
	if err := mw.WriteField("subfolder", subfolder); err != nil {
		return nil, fmt.Errorf("write subfolder field: %w", err)
	}
	overwriteVal := "false"
	if overwrite {
		overwriteVal = "true"
	}
	if err := mw.WriteField("overwrite", overwriteVal); err != nil {
		return nil, fmt.Errorf("write overwrite field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return c.post(ctx, url, mw.FormDataContentType(), &buf)
}

func (c *WorkerClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", apperrors.ErrBackendUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &apperrors.BackendError{Status: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// escapeKey guards gjson path syntax in opaque prompt ids
func escapeKey(key string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return replacer.Replace(key)
}
