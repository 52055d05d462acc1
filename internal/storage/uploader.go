package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maauso/storyforge-api/internal/render"
)

// Compile-time check that VideoUploader implements render.Uploader.
var _ render.Uploader = (*VideoUploader)(nil)

// VideoUploader bridges the Storage port to the render queue: completed
// videos are pushed to durable storage under a per-job key.
type VideoUploader struct {
	storage Storage
}

// NewVideoUploader creates an uploader over the given storage backend.
func NewVideoUploader(s Storage) *VideoUploader {
	return &VideoUploader{storage: s}
}

// UploadVideo uploads the encoded video at localPath and returns its URL.
func (u *VideoUploader) UploadVideo(ctx context.Context, localPath, jobID string) (string, error) {
	f, err := os.Open(localPath) // #nosec G304 - path comes from the encoder, not user input
	if err != nil {
		return "", fmt.Errorf("open encoded video: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := "videos/" + jobID + filepath.Ext(localPath)
	return u.storage.Upload(ctx, key, f)
}
