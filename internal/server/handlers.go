package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maauso/storyforge-api/internal/checkpoint"
	"github.com/maauso/storyforge-api/internal/format"
	"github.com/maauso/storyforge-api/internal/pipeline"
	"github.com/maauso/storyforge-api/internal/render"
	"github.com/maauso/storyforge-api/internal/session"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	router      *pipeline.Router
	registry    *format.Registry
	checkpoints *checkpoint.Manager
	sessions    session.Store
	renders     *render.Manager
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	router *pipeline.Router,
	registry *format.Registry,
	checkpoints *checkpoint.Manager,
	sessions session.Store,
	renders *render.Manager,
	logger *slog.Logger,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		router:      router,
		registry:    registry,
		checkpoints: checkpoints,
		sessions:    sessions,
		renders:     renders,
		validator:   validator.New(),
		logger:      logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateProduction handles POST /productions requests. The production
// runs in the background; progress is followed through the session and
// checkpoint endpoints.
func (h *Handlers) CreateProduction(w http.ResponseWriter, r *http.Request) {
	var req ProductionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if req.ProjectID == "" {
		req.ProjectID = uuid.NewString()
	}
	dispatchReq := pipeline.Request{
		FormatID:           req.FormatID,
		Idea:               req.Idea,
		Genre:              req.Genre,
		Language:           req.Language,
		ReferenceDocuments: req.ReferenceDocuments,
		UserID:             req.UserID,
		ProjectID:          req.ProjectID,
	}

	// Reject everything Dispatch would reject before going async, so the
	// caller gets validation failures synchronously.
	if err := h.router.Check(dispatchReq); err != nil {
		writePipelineError(w, err)
		return
	}

	// The pipeline outlives the request: checkpoints can wait minutes.
	go func(ctx context.Context, req pipeline.Request) {
		if _, err := h.router.Dispatch(ctx, req); err != nil {
			h.logger.Error("background production failed",
				slog.String("session_id", req.ProjectID),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(r.Context()), dispatchReq)

	h.logger.Info("production accepted",
		slog.String("session_id", req.ProjectID),
		slog.String("format_id", req.FormatID),
	)
	writeJSON(w, http.StatusAccepted, ProductionAccepted{SessionID: req.ProjectID})
}

// ListFormats handles GET /formats requests.
func (h *Handlers) ListFormats(w http.ResponseWriter, r *http.Request) {
	formats := h.registry.All()
	out := make([]FormatResponse, 0, len(formats))
	for _, m := range formats {
		out = append(out, FormatResponse{
			ID:                 m.ID,
			Name:               m.Name,
			MinDuration:        m.Duration.Min,
			MaxDuration:        m.Duration.Max,
			AspectRatio:        m.AspectRatio,
			ApplicableGenres:   m.ApplicableGenres,
			SupportedLanguages: m.SupportedLanguages,
			Placeholder:        m.Placeholder,
			Deprecated:         m.Deprecated,
			DeprecationMessage: m.DeprecationMessage,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// FormatGenres handles GET /formats/{id}/genres requests.
func (h *Handlers) FormatGenres(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.registry.IsValid(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown format %q", id), "FORMAT_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, GenresResponse{
		FormatID: id,
		Genres:   h.registry.GenresFor(id),
	})
}

// ListCheckpoints handles GET /checkpoints requests.
func (h *Handlers) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	all := h.checkpoints.All()
	out := make([]CheckpointResponse, 0, len(all))
	for _, cp := range all {
		out = append(out, CheckpointResponse{
			ID:            cp.ID,
			Phase:         cp.Phase,
			Status:        string(cp.Status),
			CreatedAt:     cp.CreatedAt,
			ChangeRequest: cp.ChangeRequest,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ApproveCheckpoint handles POST /checkpoints/{id}/approve requests.
func (h *Handlers) ApproveCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.checkpoints.Approve(id); err != nil {
		writeCheckpointError(w, err)
		return
	}
	h.logger.Info("checkpoint approved", slog.String("checkpoint_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// RequestCheckpointChanges handles POST /checkpoints/{id}/changes requests.
func (h *Handlers) RequestCheckpointChanges(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body ChangeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if err := h.checkpoints.RequestChanges(id, body.Feedback); err != nil {
		writeCheckpointError(w, err)
		return
	}
	h.logger.Info("checkpoint changes requested", slog.String("checkpoint_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := h.sessions.Find(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("session %q not found", id), "SESSION_NOT_FOUND")
			return
		}
		h.logger.Error("session lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load session", "SESSION_LOAD_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// CreateRenderJob handles POST /render-jobs requests.
func (h *Handlers) CreateRenderJob(w http.ResponseWriter, r *http.Request) {
	var req CreateRenderJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	job, err := h.renders.CreateJob(req.SessionID, render.Config{
		TotalFrames:  req.TotalFrames,
		FPS:          req.FPS,
		Width:        req.Width,
		Height:       req.Height,
		OutputFormat: req.OutputFormat,
	})
	if err != nil {
		h.logger.Error("failed to create render job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create render job", "JOB_CREATION_FAILED")
		return
	}
	writeJSON(w, http.StatusCreated, renderJobResponse(job))
}

// RegisterFrames handles POST /render-jobs/{id}/frames requests.
func (h *Handlers) RegisterFrames(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req RegisterFramesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if err := h.renders.RegisterFrames(id, req.Count, req.Checksums); err != nil {
		writeRenderError(w, err)
		return
	}
	job, err := h.renders.GetJob(id)
	if err != nil {
		writeRenderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderJobResponse(job))
}

// QueueRenderJob handles POST /render-jobs/{id}/queue requests.
func (h *Handlers) QueueRenderJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.renders.QueueJob(id); err != nil {
		writeRenderError(w, err)
		return
	}
	job, err := h.renders.GetJob(id)
	if err != nil {
		writeRenderError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, renderJobResponse(job))
}

// GetRenderJob handles GET /render-jobs/{id} requests.
func (h *Handlers) GetRenderJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.renders.GetJob(r.PathValue("id"))
	if err != nil {
		writeRenderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderJobResponse(job))
}

// RenderStats handles GET /render-jobs/stats requests.
func (h *Handlers) RenderStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.renders.Stats())
}

// RenderJobEvents handles GET /render-jobs/{id}/events requests by
// streaming job snapshots as server-sent events until the job reaches a
// terminal state or the client disconnects.
func (h *Handlers) RenderJobEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "STREAMING_UNSUPPORTED")
		return
	}

	id := r.PathValue("id")
	// Buffered so a slow client never blocks the queue's notify path;
	// dropped snapshots are fine, the next one supersedes them.
	events := make(chan *render.Job, 16)
	unsub, err := h.renders.Subscribe(id, func(job *render.Job) {
		select {
		case events <- job:
		default:
		}
	})
	if err != nil {
		writeRenderError(w, err)
		return
	}
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case job := <-events:
			if !writeEvent(w, flusher, h.logger, job) {
				return
			}
			if job.IsTerminal() {
				return
			}
			// A full buffer may have dropped the terminal snapshot; once
			// drained, re-check the live job so the stream always closes.
			if len(events) == 0 {
				cur, err := h.renders.GetJob(id)
				if err == nil && cur.IsTerminal() {
					writeEvent(w, flusher, h.logger, cur)
					return
				}
			}
		}
	}
}

// writeEvent pushes one job snapshot down an open event stream.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, logger *slog.Logger, job *render.Job) bool {
	payload, err := json.Marshal(renderJobResponse(job))
	if err != nil {
		logger.Error("failed to encode event", slog.String("error", err.Error()))
		return false
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
	return true
}

// writePipelineError maps a typed dispatch error to an HTTP response.
func writePipelineError(w http.ResponseWriter, err error) {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return
	}
	status := http.StatusBadRequest
	switch perr.Code {
	case pipeline.CodeFormatNotFound, pipeline.CodePipelineNotFound:
		status = http.StatusNotFound
	case pipeline.CodeExecutionFailed:
		status = http.StatusInternalServerError
	}
	writeError(w, status, perr.Message, string(perr.Code))
}

// writeCheckpointError maps checkpoint manager errors to HTTP responses.
func writeCheckpointError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkpoint.ErrCheckpointNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "CHECKPOINT_NOT_FOUND")
	case errors.Is(err, checkpoint.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, err.Error(), "CHECKPOINT_RESOLVED")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

// writeRenderError maps render manager errors to HTTP responses.
func writeRenderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, render.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "JOB_NOT_FOUND")
	case errors.Is(err, render.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_TRANSITION")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
