// Package checkpoint provides human-approval gates between pipeline phases.
// A checkpoint is a single-resolution future: an external approval, an
// external change request and a timeout race to resolve it exactly once.
// Timeouts auto-resolve as approved so a pipeline never blocks indefinitely
// on an absent reviewer.
package checkpoint

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the state of a checkpoint. It is written exactly once
// after leaving StatusPending.
type Status string

const (
	// StatusPending indicates the checkpoint is awaiting resolution.
	StatusPending Status = "pending"
	// StatusApproved indicates an explicit or timeout approval.
	StatusApproved Status = "approved"
	// StatusChangesRequested indicates the reviewer submitted feedback.
	StatusChangesRequested Status = "changes-requested"
	// StatusTimedOut indicates the checkpoint auto-resolved on timeout.
	StatusTimedOut Status = "timed-out"
)

// Static errors for checkpoint operations.
var (
	// ErrCheckpointNotFound is returned when the checkpoint ID is unknown.
	ErrCheckpointNotFound = errors.New("checkpoint: not found")
	// ErrAlreadyResolved is returned when resolving a settled checkpoint.
	ErrAlreadyResolved = errors.New("checkpoint: already resolved")
	// ErrDisposed is returned to waiters when the manager is disposed.
	ErrDisposed = errors.New("checkpoint: manager disposed")
)

// Decision is the outcome a pipeline receives when its checkpoint settles.
type Decision struct {
	// Approved indicates the pipeline may proceed.
	Approved bool
	// AutoResolved is true when the decision was made by timeout on the
	// user's behalf. The UI surfaces this as "auto-saved, review later".
	AutoResolved bool
	// ChangeRequest carries reviewer feedback when changes were requested.
	ChangeRequest string
}

// Checkpoint is the audit record of one approval gate.
type Checkpoint struct {
	// ID uniquely identifies the checkpoint.
	ID string
	// Phase names the pipeline phase being gated, e.g. "script-review".
	Phase string
	// Status is the current state; terminal once resolved.
	Status Status
	// CreatedAt is when the checkpoint was created.
	CreatedAt time.Time
	// Timeout is the auto-resolution window.
	Timeout time.Duration
	// ApprovedAt is when the checkpoint was approved, if it was.
	ApprovedAt time.Time
	// ChangeRequest is the reviewer feedback, if changes were requested.
	ChangeRequest string
	// Payload is the pipeline-specific content under review.
	Payload any
}

// outcome is what a waiter receives when its checkpoint settles. A
// non-nil err means the wait ended without a decision (manager disposed).
type outcome struct {
	decision Decision
	err      error
}

// entry pairs a checkpoint with its resolution channel and timer.
type entry struct {
	cp       Checkpoint
	done     chan outcome
	timer    *time.Timer
	resolved bool
}

// Manager owns all checkpoints for the lifetime of their waits.
type Manager struct {
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	disposed bool
}

// NewManager creates a checkpoint manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Create registers a checkpoint for the given phase and blocks until it is
// resolved by approval, change request, timeout or disposal. The context
// aborts the wait without resolving the checkpoint for other observers.
func (m *Manager) Create(ctx context.Context, phase string, payload any, timeout time.Duration) (Decision, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return Decision{}, ErrDisposed
	}

	id := uuid.NewString()
	e := &entry{
		cp: Checkpoint{
			ID:        id,
			Phase:     phase,
			Status:    StatusPending,
			CreatedAt: time.Now(),
			Timeout:   timeout,
			Payload:   payload,
		},
		done: make(chan outcome, 1),
	}
	m.entries[id] = e

	if timeout > 0 {
		e.timer = time.AfterFunc(timeout, func() { m.resolveTimeout(id) })
	}
	m.mu.Unlock()

	m.logger.Info("checkpoint created",
		slog.String("checkpoint_id", id),
		slog.String("phase", phase),
		slog.Duration("timeout", timeout),
	)

	select {
	case o := <-e.done:
		return o.decision, o.err
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// Approve resolves a pending checkpoint as approved.
func (m *Manager) Approve(id string) error {
	return m.resolve(id, StatusApproved, Decision{Approved: true}, "")
}

// RequestChanges resolves a pending checkpoint with reviewer feedback.
// How a rejection is handled is pipeline-specific; some formats abort the
// run, others loop back a phase.
func (m *Manager) RequestChanges(id, feedback string) error {
	return m.resolve(id, StatusChangesRequested, Decision{ChangeRequest: feedback}, feedback)
}

// Get returns a snapshot of one checkpoint.
func (m *Manager) Get(id string) (Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return Checkpoint{}, ErrCheckpointNotFound
	}
	return e.cp, nil
}

// All returns snapshots of every checkpoint ordered by creation time.
func (m *Manager) All() []Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Checkpoint, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, e.cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Dispose releases every pending waiter so no pipeline goroutine is left
// blocked. In-flight Create calls return ErrDisposed so pipelines abort
// instead of treating the release as a decision; new Create calls fail
// with ErrDisposed as well.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disposed = true
	for _, e := range m.entries {
		if e.resolved {
			continue
		}
		e.resolved = true
		e.cp.Status = StatusTimedOut
		if e.timer != nil {
			e.timer.Stop()
		}
		e.done <- outcome{err: ErrDisposed}
	}
}

// resolve settles a checkpoint exactly once with the given terminal status.
func (m *Manager) resolve(id string, status Status, d Decision, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrCheckpointNotFound
	}
	if e.resolved {
		return ErrAlreadyResolved
	}

	e.resolved = true
	e.cp.Status = status
	e.cp.ChangeRequest = feedback
	if status == StatusApproved {
		e.cp.ApprovedAt = time.Now()
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.done <- outcome{decision: d}

	m.logger.Info("checkpoint resolved",
		slog.String("checkpoint_id", id),
		slog.String("phase", e.cp.Phase),
		slog.String("status", string(status)),
	)
	return nil
}

// resolveTimeout settles an expired checkpoint as approved on the user's
// behalf. Each checkpoint's timeout is independent; auto-approval never
// cascades to later checkpoints.
func (m *Manager) resolveTimeout(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.resolved {
		return
	}

	e.resolved = true
	e.cp.Status = StatusTimedOut
	e.cp.ApprovedAt = time.Now()
	e.done <- outcome{decision: Decision{Approved: true, AutoResolved: true}}

	m.logger.Warn("checkpoint timed out, auto-approved",
		slog.String("checkpoint_id", id),
		slog.String("phase", e.cp.Phase),
		slog.Duration("timeout", e.cp.Timeout),
	)
}
