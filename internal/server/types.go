// Package server provides the HTTP surface for the StoryForge API.
// It includes handlers, middleware, routes, and DTOs separated from
// domain types.
package server

import (
	"time"

	"github.com/maauso/storyforge-api/internal/render"
)

// ProductionRequest is the HTTP request body for starting a production.
type ProductionRequest struct {
	// FormatID selects the output format, e.g. "documentary".
	FormatID string `json:"format_id" validate:"required"`
	// Idea is the production idea or topic.
	Idea string `json:"idea" validate:"required"`
	// Genre optionally narrows the format's genre.
	Genre string `json:"genre,omitempty"`
	// Language is the output language code, e.g. "en".
	Language string `json:"language,omitempty" validate:"omitempty,min=2,max=5"`
	// ReferenceDocuments are optional source materials for research.
	ReferenceDocuments []string `json:"reference_documents,omitempty"`
	// UserID identifies the requesting user.
	UserID string `json:"user_id,omitempty"`
	// ProjectID resumes an existing session when set.
	ProjectID string `json:"project_id,omitempty"`
}

// ProductionAccepted is the HTTP response after a production is accepted.
type ProductionAccepted struct {
	// SessionID is where the production's progress can be followed.
	SessionID string `json:"session_id"`
}

// FormatResponse describes one output format.
type FormatResponse struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	MinDuration        int      `json:"min_duration"`
	MaxDuration        int      `json:"max_duration"`
	AspectRatio        string   `json:"aspect_ratio"`
	ApplicableGenres   []string `json:"applicable_genres"`
	SupportedLanguages []string `json:"supported_languages"`
	Placeholder        string   `json:"placeholder"`
	Deprecated         bool     `json:"deprecated,omitempty"`
	DeprecationMessage string   `json:"deprecation_message,omitempty"`
}

// GenresResponse lists the genres applicable to a format.
type GenresResponse struct {
	FormatID string   `json:"format_id"`
	Genres   []string `json:"genres"`
}

// CheckpointResponse describes one checkpoint.
type CheckpointResponse struct {
	ID            string    `json:"id"`
	Phase         string    `json:"phase"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	ChangeRequest string    `json:"change_request,omitempty"`
}

// ChangeRequestBody carries reviewer feedback for a checkpoint.
type ChangeRequestBody struct {
	// Feedback explains what should change.
	Feedback string `json:"feedback" validate:"required"`
}

// CreateRenderJobRequest is the HTTP request body for creating a render job.
type CreateRenderJobRequest struct {
	// SessionID links the job to its production session.
	SessionID string `json:"session_id" validate:"required"`
	// TotalFrames is the expected frame count.
	TotalFrames int `json:"total_frames" validate:"required,min=1"`
	// FPS is the output frame rate.
	FPS int `json:"fps" validate:"omitempty,min=1,max=120"`
	// Width is the output video width.
	Width int `json:"width" validate:"omitempty,min=1,max=4096"`
	// Height is the output video height.
	Height int `json:"height" validate:"omitempty,min=1,max=4096"`
	// OutputFormat is the container format.
	OutputFormat string `json:"output_format" validate:"omitempty,oneof=mp4 webm mov"`
}

// RegisterFramesRequest records a batch of uploaded frames.
type RegisterFramesRequest struct {
	// Count is how many frames this batch contains.
	Count int `json:"count" validate:"required,min=1"`
	// Checksums are optional per-frame checksums for diagnostics.
	Checksums []string `json:"checksums,omitempty"`
}

// RenderJobResponse is the HTTP representation of a render job.
type RenderJobResponse struct {
	ID             string `json:"id"`
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	CurrentFrame   int    `json:"current_frame"`
	TotalFrames    int    `json:"total_frames"`
	ReceivedFrames int    `json:"received_frames"`
	RetryCount     int    `json:"retry_count"`
	LastError      string `json:"last_error,omitempty"`
	VideoURL       string `json:"video_url,omitempty"`
}

// renderJobResponse maps a job snapshot to its HTTP representation.
func renderJobResponse(job *render.Job) RenderJobResponse {
	return RenderJobResponse{
		ID:             job.ID,
		SessionID:      job.SessionID,
		Status:         string(job.Status),
		Progress:       job.Progress,
		CurrentFrame:   job.CurrentFrame,
		TotalFrames:    job.Frames.TotalFrames,
		ReceivedFrames: job.Frames.ReceivedFrames,
		RetryCount:     job.RetryCount,
		LastError:      job.LastError,
		VideoURL:       job.VideoURL,
	}
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
