// Package session provides the story-mode session state shared between
// pipelines and the UI auto-save path. State records are long-lived and
// backward compatible: older records may lack the format, language and
// checkpoint fields, and every reader must tolerate their absence.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session cannot be found by ID.
var ErrSessionNotFound = errors.New("session: not found")

// CheckpointRecord is the audit entry persisted for each resolved checkpoint.
type CheckpointRecord struct {
	// ID is the checkpoint identifier.
	ID string `json:"id"`
	// Phase names the gated pipeline phase.
	Phase string `json:"phase"`
	// Status is the terminal checkpoint status.
	Status string `json:"status"`
	// ResolvedAt is when the checkpoint settled.
	ResolvedAt time.Time `json:"resolved_at"`
	// ChangeRequest carries reviewer feedback, if any.
	ChangeRequest string `json:"change_request,omitempty"`
}

// State is the persisted state of one production session.
// FormatID, Language and Checkpoints were added after the first release;
// they are optional so legacy records stay readable.
type State struct {
	// ID is the session identifier.
	ID string `json:"id"`
	// Topic is the user's idea for this session.
	Topic string `json:"topic"`
	// Breakdown is the structured topic breakdown.
	Breakdown string `json:"breakdown,omitempty"`
	// Screenplay is the generated screenplay text.
	Screenplay string `json:"screenplay,omitempty"`
	// Characters lists the characters appearing in the screenplay.
	Characters []string `json:"characters,omitempty"`
	// Shotlist lists the planned shots.
	Shotlist []string `json:"shotlist,omitempty"`
	// CurrentStep names the last completed pipeline phase.
	CurrentStep string `json:"current_step"`
	// UpdatedAt is when the state was last written.
	UpdatedAt time.Time `json:"updated_at"`

	// FormatID is the output format, absent on legacy sessions.
	FormatID string `json:"format_id,omitempty"`
	// Language is the production language, absent on legacy sessions.
	Language string `json:"language,omitempty"`
	// Checkpoints records resolved approval gates, absent on legacy sessions.
	Checkpoints []CheckpointRecord `json:"checkpoints,omitempty"`
}

// Clone creates a deep copy of the state for safe reads.
func (s *State) Clone() *State {
	clone := *s
	if s.Characters != nil {
		clone.Characters = make([]string, len(s.Characters))
		copy(clone.Characters, s.Characters)
	}
	if s.Shotlist != nil {
		clone.Shotlist = make([]string, len(s.Shotlist))
		copy(clone.Shotlist, s.Shotlist)
	}
	if s.Checkpoints != nil {
		clone.Checkpoints = make([]CheckpointRecord, len(s.Checkpoints))
		copy(clone.Checkpoints, s.Checkpoints)
	}
	return &clone
}

// Store defines the interface for session persistence.
// Sessions are never pruned automatically; deletion is always explicit.
type Store interface {
	// Save upserts a session state keyed by its ID.
	Save(ctx context.Context, state *State) error

	// Find retrieves a session by ID.
	// Returns ErrSessionNotFound if the session does not exist.
	Find(ctx context.Context, id string) (*State, error)

	// List returns all sessions.
	List(ctx context.Context) ([]*State, error)

	// Delete removes a session.
	// Returns ErrSessionNotFound if the session does not exist.
	Delete(ctx context.Context, id string) error
}
