package service

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/pixeon/renderplane/common/errors"
	"github.com/pixeon/renderplane/common/logger"
	"github.com/pixeon/renderplane/common/storage"
)

var allowedUploadExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// UploadService stages user-submitted input files into control-plane
// storage. The returned paths go into a later job submission's files map.
type UploadService struct {
	store storage.Store
	log   *logger.Logger
}

// NewUploadService creates a new upload service
func NewUploadService(store storage.Store, log *logger.Logger) *UploadService {
	return &UploadService{store: store, log: log}
}

// Save stores one uploaded file under the user's input directory and
// returns its storage path.
func (s *UploadService) Save(ctx context.Context, userID, filename string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty upload", apperrors.ErrInvalidInput)
	}

	ext := strings.ToLower(path.Ext(filename))
	if !allowedUploadExts[ext] {
		return "", fmt.Errorf("%w: unsupported file type %q", apperrors.ErrInvalidInput, ext)
	}

	rel := path.Join("users", userID, "inputs", uuid.New().String()+ext)
	if _, err := s.store.Save(ctx, rel, content); err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	s.log.Debug("upload stored", "user_id", userID, "path", rel, "bytes", len(content))
	return rel, nil
}
