package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorage_SaveAndLoadTemp(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := s.SaveTemp(context.Background(), "frame", strings.NewReader("frame bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(filepath.Base(path), "frame") {
		t.Errorf("temp file name %q missing hint", path)
	}

	r, err := s.LoadTemp(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "frame bytes" {
		t.Errorf("round trip = %q", data)
	}
}

func TestLocalStorage_CleanupTemp(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	p1, _ := s.SaveTemp(context.Background(), "a", strings.NewReader("1"))
	p2, _ := s.SaveTemp(context.Background(), "b", strings.NewReader("2"))

	// A missing path must not stop cleanup of the rest.
	if err := s.CleanupTemp(context.Background(), []string{p1, filepath.Join(s.TempDir(), "gone"), p2}); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{p1, p2} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s not removed", p)
		}
	}
}

func TestLocalStorage_UploadNotConfigured(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upload(context.Background(), "videos/x.mp4", strings.NewReader("v")); !errors.Is(err, ErrUploadNotConfigured) {
		t.Errorf("expected ErrUploadNotConfigured, got %v", err)
	}
}

func TestLocalStorage_ContextCancelled(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.SaveTemp(ctx, "x", strings.NewReader("1")); err == nil {
		t.Error("SaveTemp must respect cancellation")
	}
	if _, err := s.LoadTemp(ctx, "whatever"); err == nil {
		t.Error("LoadTemp must respect cancellation")
	}
}
