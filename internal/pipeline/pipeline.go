// Package pipeline provides the format pipelines and the router that
// dispatches production requests to them. A pipeline turns a user idea
// into production assets for one format: research, breakdown, screenplay,
// human checkpoints, parallel visual fanout, narration and assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrIdeaRequired is returned by Validate when the idea is empty or
// whitespace-only.
var ErrIdeaRequired = errors.New("pipeline: idea is required")

// Code classifies router and dispatch failures for programmatic handling.
type Code string

const (
	// CodeInvalidFormat indicates an empty format ID.
	CodeInvalidFormat Code = "INVALID_FORMAT"
	// CodeFormatNotFound indicates an unknown format ID.
	CodeFormatNotFound Code = "FORMAT_NOT_FOUND"
	// CodePipelineNotFound indicates a valid format with no registered pipeline.
	CodePipelineNotFound Code = "PIPELINE_NOT_FOUND"
	// CodeValidationFailed indicates unsupported language, inapplicable genre
	// or a failed pipeline validation hook.
	CodeValidationFailed Code = "VALIDATION_FAILED"
	// CodeExecutionFailed wraps any error or panic raised during execution.
	CodeExecutionFailed Code = "EXECUTION_FAILED"
)

// Error is the typed error surfaced by Dispatch. Validation errors are
// produced before any pipeline work begins and are never retried.
type Error struct {
	// Code classifies the failure.
	Code Code
	// Message is the human-readable, actionable description.
	Message string
	// Err is the underlying cause, if any.
	Err error
	// Request is attached on execution failures for diagnostics.
	Request *Request
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Request is one production request. It is immutable and consumed by
// exactly one pipeline execution.
type Request struct {
	// FormatID selects the output format.
	FormatID string
	// Idea is the user's production idea. Must be non-empty.
	Idea string
	// Genre optionally narrows the format's applicable genres.
	Genre string
	// Language is the production language code.
	Language string
	// ReferenceDocuments optionally ground the research phase.
	ReferenceDocuments []string
	// UserID identifies the requesting user.
	UserID string
	// ProjectID keys the session state; reusing it resumes an existing
	// session record.
	ProjectID string
}

// Output is the per-format result payload. Each pipeline returns its own
// concrete type so its shape is statically known to that pipeline's
// consumers while the router treats results generically.
type Output interface {
	// Format returns the format ID this output belongs to.
	Format() string
}

// Result is the envelope every pipeline returns. Phase outputs are merged
// into Output incrementally, so a mid-pipeline failure still yields a
// partial, inspectable result.
type Result struct {
	// Success indicates the pipeline ran to completion. Partial task
	// failures may still yield Success with Warnings attached.
	Success bool
	// SessionID keys the persisted session state for this run.
	SessionID string
	// VideoURL locates the finished video once the render job completes.
	VideoURL string
	// Warnings carries non-fatal conditions: deprecations, failed visuals,
	// degraded research.
	Warnings []string
	// Output is the format-specific payload.
	Output Output
}

// Pipeline is one format's production pipeline.
type Pipeline interface {
	// FormatID returns the format this pipeline serves.
	FormatID() string

	// Validate rejects a request before any expensive work begins.
	Validate(req Request) error

	// Execute runs the pipeline. On error the returned Result still
	// carries whatever phases completed.
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Chapter marks a navigable point in the assembled video.
type Chapter struct {
	// Index is the chapter position, starting at 1.
	Index int `json:"index"`
	// Title is the chapter heading.
	Title string `json:"title"`
	// StartTime is the chapter start offset in seconds.
	StartTime float64 `json:"start_time"`
}

// AssemblyRule instructs the assembler how to join one scene to the next.
type AssemblyRule struct {
	// SceneIndex is the scene the rule applies to.
	SceneIndex int `json:"scene_index"`
	// Transition names the transition into the next scene.
	Transition string `json:"transition"`
	// TransitionSec is the transition duration in seconds.
	TransitionSec float64 `json:"transition_sec"`
}

// CTAMarker marks the call-to-action overlay in an advertisement.
type CTAMarker struct {
	// Text is the call-to-action line.
	Text string `json:"text"`
	// StartTime is the overlay start offset in seconds, always within the
	// final five seconds of the video.
	StartTime float64 `json:"start_time"`
}
