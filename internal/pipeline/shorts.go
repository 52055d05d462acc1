package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/storyforge-api/internal/format"
	"github.com/maauso/storyforge-api/internal/generate"
)

// ShortsPipeline produces vertical short-form videos. The entire short
// hangs on its opening hook, so the hook is gated by its own checkpoint
// and a rejected hook aborts the run outright instead of looping back.
type ShortsPipeline struct {
	meta format.Metadata
	deps *Deps
}

// NewShortsPipeline creates the shorts pipeline.
func NewShortsPipeline(meta format.Metadata, deps *Deps) *ShortsPipeline {
	return &ShortsPipeline{meta: meta, deps: deps}
}

// FormatID returns the format this pipeline serves.
func (p *ShortsPipeline) FormatID() string { return p.meta.ID }

// Validate rejects requests whose idea is empty or whitespace-only.
func (p *ShortsPipeline) Validate(req Request) error {
	return validateIdea(req)
}

// Execute runs the shorts pipeline.
func (p *ShortsPipeline) Execute(ctx context.Context, req Request) (*Result, error) {
	d := p.deps
	log := d.logger().With(slog.String("pipeline", p.meta.ID))

	out := &ShortsOutput{AspectRatio: p.meta.AspectRatio}
	result := &Result{SessionID: sessionID(req), Output: out}

	state := loadOrNewState(ctx, d.Sessions, result.SessionID)
	state.Topic = req.Idea

	breakdown, err := d.Services.Script.Breakdown(ctx, req.Idea, req.Genre, req.Language)
	if err != nil {
		return result, fmt.Errorf("breakdown phase: %w", err)
	}
	state.Breakdown = breakdown
	persistState(ctx, d, state, p.meta, req, "breakdown")

	scenes, err := d.Services.Script.Screenplay(ctx, breakdown, generate.ScreenplayOptions{
		Language:       req.Language,
		Genre:          req.Genre,
		MinDurationSec: p.meta.Duration.Min,
		MaxDurationSec: p.meta.Duration.Max,
	})
	if err != nil {
		return result, fmt.Errorf("screenplay phase: %w", err)
	}
	if len(scenes) == 0 {
		return result, fmt.Errorf("screenplay phase: no scenes generated")
	}

	out.Screenplay = scenes
	out.Hook = hookLine(scenes[0])
	state.Screenplay = screenplayText(scenes)
	state.Shotlist = sceneTitles(scenes)
	persistState(ctx, d, state, p.meta, req, "screenplay")

	decision, err := d.Checkpoints.Create(ctx, "hook-review", out.Hook, d.CheckpointTimeout)
	if err != nil {
		return result, fmt.Errorf("hook-review checkpoint: %w", err)
	}
	recordCheckpoint(state, d.Checkpoints, "hook-review")
	if decision.AutoResolved && decision.Approved {
		result.Warnings = append(result.Warnings,
			"hook-review checkpoint auto-approved after timeout; review the saved draft later")
	}

	// A short lives or dies on its hook: rejection is fatal to this run.
	if !decision.Approved {
		persistState(ctx, d, state, p.meta, req, "hook-rejected")
		if decision.ChangeRequest != "" {
			return result, fmt.Errorf("Hook rejected: %s", decision.ChangeRequest)
		}
		return result, fmt.Errorf("Hook rejected")
	}

	visuals, warnings := generateVisuals(ctx, d, scenes, p.meta)
	out.Visuals = visuals
	result.Warnings = append(result.Warnings, warnings...)

	segments, warnings := narrate(ctx, d, scenes, req.Language)
	out.NarrationSegments = segments
	result.Warnings = append(result.Warnings, warnings...)

	out.TotalDuration = totalDuration(scenes)

	persistState(ctx, d, state, p.meta, req, "complete")

	result.Success = true
	log.Info("pipeline complete",
		slog.String("session_id", result.SessionID),
		slog.Float64("total_duration", out.TotalDuration),
	)
	return result, nil
}

// hookLine extracts the opening hook: the first dialogue line of the first
// scene, falling back to the scene title.
func hookLine(first generate.Scene) string {
	if len(first.Dialogue) > 0 {
		return first.Dialogue[0]
	}
	return first.Title
}
