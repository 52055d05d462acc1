package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/storyforge-api/internal/format"
	"github.com/maauso/storyforge-api/internal/generate"
)

// adSceneCount is the fixed advertisement structure:
// hook, product, call to action.
const adSceneCount = 3

// ctaWindowSec is how many seconds before the end the CTA overlay appears.
const ctaWindowSec = 5

// AdvertisementPipeline produces short product advertisements. The
// screenplay is always exactly three scenes and the final scene's closing
// line becomes the call-to-action overlay.
type AdvertisementPipeline struct {
	meta format.Metadata
	deps *Deps
}

// NewAdvertisementPipeline creates the advertisement pipeline.
func NewAdvertisementPipeline(meta format.Metadata, deps *Deps) *AdvertisementPipeline {
	return &AdvertisementPipeline{meta: meta, deps: deps}
}

// FormatID returns the format this pipeline serves.
func (p *AdvertisementPipeline) FormatID() string { return p.meta.ID }

// Validate rejects requests whose idea is empty or whitespace-only.
func (p *AdvertisementPipeline) Validate(req Request) error {
	return validateIdea(req)
}

// Execute runs the advertisement pipeline.
func (p *AdvertisementPipeline) Execute(ctx context.Context, req Request) (*Result, error) {
	d := p.deps
	log := d.logger().With(slog.String("pipeline", p.meta.ID))

	out := &AdvertisementOutput{AspectRatio: p.meta.AspectRatio}
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
		SceneCount:     adSceneCount,
		MinDurationSec: p.meta.Duration.Min,
		MaxDurationSec: p.meta.Duration.Max,
	})
	if err != nil {
		return result, fmt.Errorf("screenplay phase: %w", err)
	}
	if len(scenes) != adSceneCount {
		return result, fmt.Errorf("screenplay phase: expected %d scenes, got %d", adSceneCount, len(scenes))
	}
	out.Screenplay = scenes
	state.Screenplay = screenplayText(scenes)
	state.Shotlist = sceneTitles(scenes)
	persistState(ctx, d, state, p.meta, req, "screenplay")

	decision, err := d.Checkpoints.Create(ctx, "script-review", scenes, d.CheckpointTimeout)
	if err != nil {
		return result, fmt.Errorf("script-review checkpoint: %w", err)
	}
	recordCheckpoint(state, d.Checkpoints, "script-review")
	if decision.AutoResolved && decision.Approved {
		result.Warnings = append(result.Warnings,
			"script-review checkpoint auto-approved after timeout; review the saved draft later")
	}
	if !decision.Approved && decision.ChangeRequest != "" {
		// Advertisements are too short to loop back a phase; the change
		// request aborts the run so the user can refine the idea.
		return result, fmt.Errorf("script rejected: %s", decision.ChangeRequest)
	}

	visuals, warnings := generateVisuals(ctx, d, scenes, p.meta)
	out.Visuals = visuals
	result.Warnings = append(result.Warnings, warnings...)

	segments, warnings := narrate(ctx, d, scenes, req.Language)
	out.NarrationSegments = segments
	result.Warnings = append(result.Warnings, warnings...)

	out.TotalDuration = totalDuration(scenes)
	out.AssemblyRules = buildAssemblyRules(scenes)
	out.CTA = buildCTA(scenes, out.TotalDuration)

	persistState(ctx, d, state, p.meta, req, "complete")

	result.Success = true
	log.Info("pipeline complete",
		slog.String("session_id", result.SessionID),
		slog.Float64("total_duration", out.TotalDuration),
	)
	return result, nil
}

// buildCTA places the call-to-action overlay inside the final five seconds,
// using the last dialogue line of the closing scene as its text.
func buildCTA(scenes []generate.Scene, total float64) *CTAMarker {
	last := scenes[len(scenes)-1]
	start := total - ctaWindowSec
	if start < 0 {
		start = 0
	}
	return &CTAMarker{
		Text:      last.LastLine(),
		StartTime: start,
	}
}
