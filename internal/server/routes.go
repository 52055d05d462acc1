package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /productions", h.CreateProduction)
	mux.HandleFunc("GET /formats", h.ListFormats)
	mux.HandleFunc("GET /formats/{id}/genres", h.FormatGenres)

	mux.HandleFunc("GET /checkpoints", h.ListCheckpoints)
	mux.HandleFunc("POST /checkpoints/{id}/approve", h.ApproveCheckpoint)
	mux.HandleFunc("POST /checkpoints/{id}/changes", h.RequestCheckpointChanges)

	mux.HandleFunc("GET /sessions/{id}", h.GetSession)

	mux.HandleFunc("POST /render-jobs", h.CreateRenderJob)
	mux.HandleFunc("POST /render-jobs/{id}/frames", h.RegisterFrames)
	mux.HandleFunc("POST /render-jobs/{id}/queue", h.QueueRenderJob)
	mux.HandleFunc("GET /render-jobs/stats", h.RenderStats)
	mux.HandleFunc("GET /render-jobs/{id}", h.GetRenderJob)
	mux.HandleFunc("GET /render-jobs/{id}/events", h.RenderJobEvents)

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
