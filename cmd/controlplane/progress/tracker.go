package progress

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pixeon/renderplane/common/logger"
)

const (
	// Time allowed to write a control message to the peer
	writeWait = 10 * time.Second

	// Ping period used when the config leaves PROGRESS_PING_INTERVAL unset
	defaultPingInterval = 20 * time.Second

	handshakeTimeout = 10 * time.Second
)

// Event classes emitted by the worker websocket. Different worker versions
// disagree on terminal event names, so whole sets are matched.
var (
	doneTypes  = map[string]bool{"executed": true, "execution_success": true, "done": true}
	errorTypes = map[string]bool{"execution_error": true, "error": true}
)

type wsEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Tracker subscribes to a worker's websocket and feeds the registry.
type Tracker struct {
	registry   *Registry
	log        *logger.Logger
	dialer     *websocket.Dialer
	pingPeriod time.Duration
	pongWait   time.Duration
}

func NewTracker(registry *Registry, pingInterval time.Duration, log *logger.Logger) *Tracker {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &Tracker{
		registry: registry,
		log:      log,
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		// The read deadline must outlive the ping period or a quiet
		// stream dies between pings
		pingPeriod: pingInterval,
		pongWait:   pingInterval + writeWait,
	}
}

// EnsureTracking starts a tracker goroutine for the prompt unless one is
// already running. The goroutine exits on a terminal event, stream error,
// or context cancellation.
func (t *Tracker) EnsureTracking(ctx context.Context, baseURL, nodeID, promptID string) {
	if !t.registry.claim(promptID) {
		return
	}

	t.registry.Set(Progress{PromptID: promptID, NodeID: nodeID, Status: StatusRunning})

	go func() {
		defer t.registry.release(promptID)
		if err := t.track(ctx, baseURL, nodeID, promptID); err != nil {
			t.log.Warn("progress stream ended", "prompt_id", promptID, "node_id", nodeID, "error", err)
			// Mark the channel dead without failing the job; polling
			// still drives it to a terminal state.
			t.registry.Set(Progress{
				PromptID: promptID,
				NodeID:   nodeID,
				Status:   StatusRunning,
				Message:  "progress stream disconnected",
			})
		}
	}()
}

func (t *Tracker) track(ctx context.Context, baseURL, nodeID, promptID string) error {
	conn, _, err := t.dialer.DialContext(ctx, wsURL(baseURL, promptID), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	t.log.Debug("progress stream connected", "prompt_id", promptID, "node_id", nodeID)

	conn.SetReadDeadline(time.Now().Add(t.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(t.pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(t.pongWait))

		var event wsEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}
		if terminal := t.handle(event, nodeID, promptID); terminal {
			return nil
		}
	}
}

// handle applies one event to the registry and reports whether the event
// was terminal for this prompt.
func (t *Tracker) handle(event wsEvent, nodeID, promptID string) bool {
	if pid := eventPromptID(event.Data); pid != "" && pid != promptID {
		return false
	}

	switch {
	case event.Type == "progress":
		value := asFloat(event.Data["value"])
		max := asFloat(event.Data["max"])
		t.registry.Set(Progress{
			PromptID: promptID,
			NodeID:   nodeID,
			Percent:  percent(value, max),
			Value:    value,
			Max:      max,
			Status:   StatusRunning,
		})

	case doneTypes[event.Type]:
		t.registry.Set(Progress{PromptID: promptID, NodeID: nodeID, Percent: 100, Status: StatusDone})
		return true

	case errorTypes[event.Type]:
		msg := "worker execution error"
		if m, ok := event.Data["error"].(string); ok && m != "" {
			msg = m
		} else if m, ok := event.Data["message"].(string); ok && m != "" {
			msg = m
		}
		t.registry.Set(Progress{PromptID: promptID, NodeID: nodeID, Percent: 100, Status: StatusError, Message: msg})
		return true
	}
	return false
}

// eventPromptID tolerates the field-name drift across worker versions.
func eventPromptID(data map[string]any) string {
	for _, key := range []string{"prompt_id", "promptId", "prompt"} {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// wsURL derives the websocket endpoint from a node's HTTP base URL.
func wsURL(baseURL, clientID string) string {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	default:
		u = "ws://" + u
	}
	return u + "/ws?clientId=" + url.QueryEscape(clientID)
}

func asFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	}
	return nil
}

func percent(value, max *float64) float64 {
	if value == nil || max == nil || *max <= 0 {
		return 0
	}
	p := (*value / *max) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
