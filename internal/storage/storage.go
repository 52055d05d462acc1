// Package storage provides temporary staging for in-flight render assets
// and durable upload of finished videos. It defines the Storage port with
// local-disk and S3-backed implementations.
package storage

import (
	"context"
	"io"
)

// Storage stages temporary files during rendering and uploads finished
// videos to durable storage.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Upload pushes data to durable storage under key and returns the
	// public URL. Returns ErrUploadNotConfigured when no durable backend
	// is configured.
	Upload(ctx context.Context, key string, data io.Reader) (url string, err error)
}
