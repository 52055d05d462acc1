package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/maauso/storyforge-api/internal/format"
)

// Router validates inbound requests against the format registry and
// dispatches them to the registered pipeline. All failure modes before
// execution are typed; execution failures are caught and re-wrapped so a
// raw error or panic never escapes to the caller.
type Router struct {
	registry *format.Registry
	logger   *slog.Logger

	mu        sync.RWMutex
	pipelines map[string]Pipeline
}

// NewRouter creates a router over the given format registry.
func NewRouter(registry *format.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry:  registry,
		logger:    logger,
		pipelines: make(map[string]Pipeline),
	}
}

// Register attaches a pipeline to its format ID, replacing any previous one.
func (r *Router) Register(p Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[p.FormatID()] = p
}

// Check runs every pre-execution validation without dispatching.
// It returns nil when Dispatch would reach the pipeline's Execute.
func (r *Router) Check(req Request) error {
	if _, _, derr := r.check(req); derr != nil {
		return derr
	}
	return nil
}

// check resolves the request to its pipeline and format, or a typed error.
func (r *Router) check(req Request) (Pipeline, *format.Metadata, *Error) {
	if req.FormatID == "" {
		return nil, nil, &Error{Code: CodeInvalidFormat, Message: "format ID is required"}
	}

	meta := r.registry.Get(req.FormatID)
	if meta == nil {
		return nil, nil, &Error{
			Code:    CodeFormatNotFound,
			Message: fmt.Sprintf("unknown format %q", req.FormatID),
		}
	}

	r.mu.RLock()
	p, ok := r.pipelines[req.FormatID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, &Error{
			Code:    CodePipelineNotFound,
			Message: fmt.Sprintf("no pipeline registered for format %q", req.FormatID),
		}
	}

	if req.Language != "" && !meta.SupportsLanguage(req.Language) {
		return nil, nil, &Error{
			Code: CodeValidationFailed,
			Message: fmt.Sprintf("language %q not supported by format %q, available languages: %s",
				req.Language, req.FormatID, strings.Join(meta.SupportedLanguages, ", ")),
		}
	}

	if req.Genre != "" && !meta.SupportsGenre(req.Genre) {
		return nil, nil, &Error{
			Code: CodeValidationFailed,
			Message: fmt.Sprintf("genre %q not applicable to format %q, available genres: %s",
				req.Genre, req.FormatID, strings.Join(meta.ApplicableGenres, ", ")),
		}
	}

	if verr := p.Validate(req); verr != nil {
		return nil, nil, &Error{
			Code:    CodeValidationFailed,
			Message: verr.Error(),
			Err:     verr,
		}
	}
	return p, meta, nil
}

// Dispatch validates the request and runs the matching pipeline.
// Validation failures return a typed *Error before any pipeline work.
// Deprecated formats run normally with a warning appended to the result.
func (r *Router) Dispatch(ctx context.Context, req Request) (result *Result, err error) {
	p, meta, derr := r.check(req)
	if derr != nil {
		return nil, derr
	}

	// A panicking pipeline must not crash the process; convert it to the
	// same typed failure as an execution error.
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("pipeline panicked",
				slog.String("format_id", req.FormatID),
				slog.Any("panic", rec),
			)
			err = &Error{
				Code:    CodeExecutionFailed,
				Message: fmt.Sprintf("pipeline %q panicked", req.FormatID),
				Err:     fmt.Errorf("panic: %v", rec),
				Request: &req,
			}
		}
	}()

	r.logger.Info("dispatching production request",
		slog.String("format_id", req.FormatID),
		slog.String("genre", req.Genre),
		slog.String("language", req.Language),
		slog.String("user_id", req.UserID),
	)

	result, execErr := p.Execute(ctx, req)

	if result != nil && meta.Deprecated {
		msg := meta.DeprecationMessage
		if msg == "" {
			msg = fmt.Sprintf("format %q is deprecated", req.FormatID)
		}
		result.Warnings = append(result.Warnings, msg)
	}

	if execErr != nil {
		// The partial result is returned alongside the typed error so
		// callers can inspect or resume from completed phases.
		return result, &Error{
			Code:    CodeExecutionFailed,
			Message: fmt.Sprintf("pipeline %q failed", req.FormatID),
			Err:     execErr,
			Request: &req,
		}
	}

	return result, nil
}
