// Package staging moves job input files from control-plane storage onto the
// worker node chosen for dispatch, and patches the compiled graph's loader
// nodes to reference the uploaded names.
package staging

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pixeon/renderplane/common/clients"
	"github.com/pixeon/renderplane/common/logger"
	"github.com/pixeon/renderplane/common/storage"
)

var imageLoaderClasses = map[string]bool{
	"LoadImage":         true,
	"LoadImageFromPath": true,
}

var maskLoaderClasses = map[string]bool{
	"LoadMask": true,
}

// Stager uploads staged input files to a worker and rewires loader nodes.
type Stager struct {
	worker *clients.WorkerClient
	store  storage.Store
	log    *logger.Logger
}

func NewStager(worker *clients.WorkerClient, store storage.Store, log *logger.Logger) *Stager {
	return &Stager{worker: worker, store: store, log: log}
}

// UploadAndPatch uploads every image_*, mask_* and mask entry of files to
// the worker, then patches image and mask loader nodes in the payload to
// reference the uploaded names. The payload is modified in place.
func (s *Stager) UploadAndPatch(ctx context.Context, baseURL string, payload map[string]any, files map[string]string) error {
	prompt, ok := payload["prompt"].(map[string]any)
	if !ok || len(files) == 0 {
		return nil
	}

	uploaded := make(map[string]string, len(files))
	for key, path := range files {
		if !stageableKey(key) {
			continue
		}

		content, err := s.store.Read(ctx, path)
		if err != nil {
			return fmt.Errorf("read staged file %s: %w", key, err)
		}

		ext := filepath.Ext(path)
		if ext == "" {
			ext = ".png"
		}
		name := key + ext

		remote, err := s.worker.UploadImage(ctx, baseURL, name, content, "", true)
		if err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		uploaded[key] = remote
		s.log.Debug("staged input file", "key", key, "remote", remote)
	}

	for nodeID, raw := range prompt {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		classType, _ := node["class_type"].(string)
		inputs, ok := node["inputs"].(map[string]any)
		if !ok {
			continue
		}

		if imageLoaderClasses[classType] {
			if remote, ok := uploaded["image_"+nodeID]; ok {
				inputs["image"] = remote
			}
		}
		if maskLoaderClasses[classType] {
			if remote, ok := uploaded["mask_"+nodeID]; ok {
				inputs["image"] = remote
			} else if remote, ok := uploaded["mask"]; ok {
				inputs["image"] = remote
			}
		}
	}

	return nil
}

func stageableKey(key string) bool {
	return strings.HasPrefix(key, "image_") || strings.HasPrefix(key, "mask_") || key == "mask"
}
