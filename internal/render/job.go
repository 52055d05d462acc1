// Package render provides the render job queue: the Job aggregate with its
// state machine, durable per-job persistence, and a Manager that admits
// jobs to encoding under a concurrency cap with crash recovery, heartbeat
// stall detection, and bounded retry.
package render

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/storyforge-api/internal/render/id"
)

// Status represents the current state of a render Job.
type Status string

const (
	// StatusPending indicates the job exists but no frames have arrived.
	StatusPending Status = "pending"
	// StatusUploading indicates frames are arriving.
	StatusUploading Status = "uploading"
	// StatusQueued indicates the job is waiting for an encoder slot.
	StatusQueued Status = "queued"
	// StatusEncoding indicates the job is actively processing, heartbeat-tracked.
	StatusEncoding Status = "encoding"
	// StatusComplete indicates the job finished successfully.
	StatusComplete Status = "complete"
	// StatusFailed indicates the job exhausted its retries.
	StatusFailed Status = "failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// encoding→queued is the retry and crash-recovery path.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusUploading},
	StatusUploading: {StatusQueued},
	StatusQueued:    {StatusEncoding},
	StatusEncoding:  {StatusComplete, StatusFailed, StatusQueued},
	StatusComplete:  {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// FrameManifest tracks the frames uploaded for a job. Checksums are
// recorded for diagnostics but never validated against frame bytes.
type FrameManifest struct {
	// TotalFrames is the number of frames the client declared at creation.
	TotalFrames int `json:"total_frames"`
	// ReceivedFrames is how many frames have been registered so far.
	ReceivedFrames int `json:"received_frames"`
	// Checksums holds client-reported per-frame checksums, in arrival order.
	Checksums []string `json:"checksums,omitempty"`
}

// Config carries the encode parameters supplied when a job is created.
type Config struct {
	// TotalFrames is the expected frame count.
	TotalFrames int `json:"total_frames"`
	// FPS is the output frame rate.
	FPS int `json:"fps"`
	// Width is the output video width.
	Width int `json:"width"`
	// Height is the output video height.
	Height int `json:"height"`
	// OutputFormat is the container format, e.g. "mp4".
	OutputFormat string `json:"output_format"`
}

// Job represents a render job aggregate. It is exclusively owned by the
// Manager; all mutation goes through its methods.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string `json:"id"`
	// SessionID links the job to the production session that produced it.
	SessionID string `json:"session_id"`
	// Status is the current job state.
	Status Status `json:"status"`
	// Config holds the encode parameters.
	Config Config `json:"config"`
	// Frames tracks uploaded frames.
	Frames FrameManifest `json:"frames"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// CurrentFrame is the frame the encoder last reported.
	CurrentFrame int `json:"current_frame"`
	// RetryCount is how many times the job has been re-queued.
	RetryCount int `json:"retry_count"`
	// MaxRetries bounds RetryCount; exceeding it fails the job.
	MaxRetries int `json:"max_retries"`
	// LastError is the most recent failure message.
	LastError string `json:"last_error,omitempty"`
	// OutputPath is the local path of the encoded video.
	OutputPath string `json:"output_path,omitempty"`
	// VideoURL is the uploaded video URL when storage upload is enabled.
	VideoURL string `json:"video_url,omitempty"`
	// LastHeartbeat is the most recent liveness signal from the encoder.
	LastHeartbeat time.Time `json:"last_heartbeat"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time `json:"updated_at"`
	// StartedAt is when encoding started.
	StartedAt time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a job in pending state with a generated ID.
func NewJob(sessionID string, cfg Config, maxRetries int) *Job {
	now := time.Now()
	return &Job{
		ID:         id.Generate(),
		SessionID:  sessionID,
		Status:     StatusPending,
		Config:     cfg,
		Frames:     FrameManifest{TotalFrames: cfg.TotalFrames},
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusEncoding:
		j.StartedAt = j.UpdatedAt
		j.LastHeartbeat = j.UpdatedAt
	case StatusComplete, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Fail transitions the job to failed, recording the error message.
func (j *Job) Fail(msg string) error {
	j.mu.Lock()
	j.LastError = msg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Requeue transitions the job back to queued for another attempt,
// incrementing the retry counter and recording the triggering error.
func (j *Job) Requeue(msg string) error {
	j.mu.Lock()
	j.RetryCount++
	j.LastError = msg
	j.Progress = 0
	j.CurrentFrame = 0
	j.mu.Unlock()
	return j.TransitionTo(StatusQueued)
}

// AddFrames records a batch of uploaded frames with optional checksums.
func (j *Job) AddFrames(count int, checksums []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Frames.ReceivedFrames += count
	j.Frames.Checksums = append(j.Frames.Checksums, checksums...)
	j.UpdatedAt = time.Now()
}

// UpdateProgress sets the progress percentage (0-100) and current frame.
func (j *Job) UpdateProgress(progress, currentFrame int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.CurrentFrame = currentFrame
	j.UpdatedAt = time.Now()
}

// Heartbeat records a liveness signal from the encoder.
func (j *Job) Heartbeat() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.LastHeartbeat = time.Now()
}

// SetOutput records the encoded video location.
func (j *Job) SetOutput(path, url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = path
	j.VideoURL = url
	j.UpdatedAt = time.Now()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is complete or failed.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusComplete || j.Status == StatusFailed
}

// ExhaustedRetries reports whether another re-queue would exceed MaxRetries.
func (j *Job) ExhaustedRetries() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.RetryCount >= j.MaxRetries
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	checksums := make([]string, len(j.Frames.Checksums))
	copy(checksums, j.Frames.Checksums)

	return &Job{
		ID:        j.ID,
		SessionID: j.SessionID,
		Status:    j.Status,
		Config:    j.Config,
		Frames: FrameManifest{
			TotalFrames:    j.Frames.TotalFrames,
			ReceivedFrames: j.Frames.ReceivedFrames,
			Checksums:      checksums,
		},
		Progress:      j.Progress,
		CurrentFrame:  j.CurrentFrame,
		RetryCount:    j.RetryCount,
		MaxRetries:    j.MaxRetries,
		LastError:     j.LastError,
		OutputPath:    j.OutputPath,
		VideoURL:      j.VideoURL,
		LastHeartbeat: j.LastHeartbeat,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}
