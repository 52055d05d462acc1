package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maauso/storyforge-api/internal/checkpoint"
	"github.com/maauso/storyforge-api/internal/engine"
	"github.com/maauso/storyforge-api/internal/format"
	"github.com/maauso/storyforge-api/internal/generate"
	"github.com/maauso/storyforge-api/internal/retry"
	"github.com/maauso/storyforge-api/internal/session"
)

// Deps bundles the collaborators every pipeline needs. Session and
// checkpoint stores are injected, never reached through globals, so they
// can be swapped for real databases without touching pipeline code.
type Deps struct {
	// Services are the vendor generation interfaces.
	Services generate.Services
	// Checkpoints gates pipeline phases on human approval.
	Checkpoints *checkpoint.Manager
	// Sessions persists per-run story state.
	Sessions session.Store
	// Policy is the shared retry policy for generation tasks.
	Policy retry.Policy
	// CheckpointTimeout is the auto-resolution window for approval gates.
	CheckpointTimeout time.Duration
	// Logger receives structured pipeline logs.
	Logger *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// validateIdea rejects empty or whitespace-only ideas.
func validateIdea(req Request) error {
	if strings.TrimSpace(req.Idea) == "" {
		return ErrIdeaRequired
	}
	return nil
}

// sessionID derives the session key for a request. Reusing a project ID
// resumes that project's session record.
func sessionID(req Request) string {
	if req.ProjectID != "" {
		return req.ProjectID
	}
	return uuid.NewString()
}

// loadOrNewState fetches the existing session state for upsert, or starts
// a fresh one. Legacy records lacking format and language fields load
// cleanly; the caller stamps those fields on every save.
func loadOrNewState(ctx context.Context, store session.Store, id string) *session.State {
	state, err := store.Find(ctx, id)
	if err != nil {
		return &session.State{ID: id}
	}
	return state
}

// persistState upserts the session state, stamping format and language so
// legacy records are upgraded on their next write.
func persistState(ctx context.Context, d *Deps, state *session.State, meta format.Metadata, req Request, step string) {
	state.FormatID = meta.ID
	state.Language = req.Language
	state.CurrentStep = step
	state.UpdatedAt = time.Now()

	if err := d.Sessions.Save(ctx, state); err != nil {
		// Session persistence is best effort mid-run; the pipeline result
		// is still returned to the caller.
		d.logger().Error("failed to persist session state",
			slog.String("session_id", state.ID),
			slog.String("step", step),
			slog.String("error", err.Error()),
		)
	}
}

// recordCheckpoint appends a resolved checkpoint to the session audit trail.
func recordCheckpoint(state *session.State, mgr *checkpoint.Manager, phase string) {
	for _, cp := range mgr.All() {
		if cp.Phase != phase || cp.Status == checkpoint.StatusPending {
			continue
		}
		state.Checkpoints = append(state.Checkpoints, session.CheckpointRecord{
			ID:            cp.ID,
			Phase:         cp.Phase,
			Status:        string(cp.Status),
			ResolvedAt:    time.Now(),
			ChangeRequest: cp.ChangeRequest,
		})
	}
}

// visualTasks builds one retryable engine task per scene.
func visualTasks(d *Deps, scenes []generate.Scene, aspectRatio string) []engine.Task {
	tasks := make([]engine.Task, len(scenes))
	for i, scene := range scenes {
		scene := scene
		tasks[i] = engine.Task{
			ID:        fmt.Sprintf("visual-%d", scene.Index),
			Type:      "visual",
			Retryable: true,
			Run: func(ctx context.Context) (any, error) {
				v, err := d.Services.Image.GenerateVisual(ctx, scene.Description, aspectRatio)
				if err != nil {
					return nil, err
				}
				v.SceneIndex = scene.Index
				return v, nil
			},
		}
	}
	return tasks
}

// generateVisuals fans scene visuals out through the execution engine under
// the format's concurrency limit. Failed scenes become warnings; the batch
// never aborts on individual exhaustion.
func generateVisuals(ctx context.Context, d *Deps, scenes []generate.Scene, meta format.Metadata) ([]generate.Visual, []string) {
	eng := engine.New(meta.ConcurrencyLimit, d.Policy, d.logger())
	results := eng.Execute(ctx, visualTasks(d, scenes, meta.AspectRatio))

	visuals := make([]generate.Visual, 0, len(results))
	var warnings []string
	for i, r := range results {
		if !r.Success {
			warnings = append(warnings, fmt.Sprintf(
				"visual generation failed for scene %d after %d attempts: %v",
				scenes[i].Index, r.Attempts, r.Err))
			continue
		}
		visuals = append(visuals, *r.Data.(*generate.Visual))
	}
	return visuals, warnings
}

// narrate synthesizes narration for each scene in order. Silent scenes are
// skipped; failures degrade to warnings.
func narrate(ctx context.Context, d *Deps, scenes []generate.Scene, language string) ([]generate.NarrationSegment, []string) {
	segments := make([]generate.NarrationSegment, 0, len(scenes))
	var warnings []string

	for _, scene := range scenes {
		text := strings.Join(scene.Dialogue, " ")
		if strings.TrimSpace(text) == "" {
			continue
		}
		seg, err := d.Services.Speech.Synthesize(ctx, text, language)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"narration failed for scene %d: %v", scene.Index, err))
			continue
		}
		seg.SceneIndex = scene.Index
		segments = append(segments, *seg)
	}
	return segments, warnings
}

// totalDuration sums the planned scene durations.
func totalDuration(scenes []generate.Scene) float64 {
	var total float64
	for _, s := range scenes {
		total += s.DurationSec
	}
	return total
}

// buildChapters derives one chapter per scene with cumulative start times.
func buildChapters(scenes []generate.Scene) []Chapter {
	chapters := make([]Chapter, 0, len(scenes))
	var offset float64
	for _, s := range scenes {
		chapters = append(chapters, Chapter{
			Index:     s.Index,
			Title:     s.Title,
			StartTime: offset,
		})
		offset += s.DurationSec
	}
	return chapters
}

// buildAssemblyRules emits a crossfade between consecutive scenes and a
// hard cut out of the final one.
func buildAssemblyRules(scenes []generate.Scene) []AssemblyRule {
	rules := make([]AssemblyRule, 0, len(scenes))
	for i, s := range scenes {
		rule := AssemblyRule{SceneIndex: s.Index, Transition: "crossfade", TransitionSec: 0.5}
		if i == len(scenes)-1 {
			rule.Transition = "cut"
			rule.TransitionSec = 0
		}
		rules = append(rules, rule)
	}
	return rules
}

// sceneTitles lists scene titles for the session shotlist.
func sceneTitles(scenes []generate.Scene) []string {
	titles := make([]string, len(scenes))
	for i, s := range scenes {
		titles[i] = s.Title
	}
	return titles
}
