package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maauso/storyforge-api/internal/format"
	"github.com/maauso/storyforge-api/internal/generate"
)

// DocumentaryPipeline is the representative long-form pipeline, shared by
// the documentary and educational formats. Phases: research (when the
// format requires it) → breakdown → screenplay → script-review checkpoint
// → parallel visual fanout → narration → chapters and assembly rules →
// session persistence.
type DocumentaryPipeline struct {
	meta format.Metadata
	deps *Deps
}

// NewDocumentaryPipeline creates the pipeline for a long-form format.
func NewDocumentaryPipeline(meta format.Metadata, deps *Deps) *DocumentaryPipeline {
	return &DocumentaryPipeline{meta: meta, deps: deps}
}

// FormatID returns the format this pipeline serves.
func (p *DocumentaryPipeline) FormatID() string { return p.meta.ID }

// Validate rejects requests whose idea is empty or whitespace-only.
func (p *DocumentaryPipeline) Validate(req Request) error {
	return validateIdea(req)
}

// Execute runs the pipeline. Phase outputs are merged into the result
// incrementally so a mid-pipeline failure still yields partial output.
func (p *DocumentaryPipeline) Execute(ctx context.Context, req Request) (*Result, error) {
	d := p.deps
	log := d.logger().With(
		slog.String("pipeline", p.meta.ID),
		slog.String("user_id", req.UserID),
	)

	out := &DocumentaryOutput{formatID: p.meta.ID, AspectRatio: p.meta.AspectRatio}
	result := &Result{SessionID: sessionID(req), Output: out}

	state := loadOrNewState(ctx, d.Sessions, result.SessionID)
	state.Topic = req.Idea

	// Research degrades rather than fails: an empty result with zero
	// confidence lowers quality but never blocks the production.
	if p.meta.RequiresResearch {
		res, err := d.Services.Research.Research(ctx, req.Idea, generate.ResearchOptions{
			Depth:      2,
			MaxResults: 8,
		})
		if err != nil {
			log.Warn("research degraded", slog.String("error", err.Error()))
			result.Warnings = append(result.Warnings, fmt.Sprintf("research unavailable: %v", err))
			res = &generate.ResearchResult{Confidence: 0}
		}
		out.Research = res
		persistState(ctx, d, state, p.meta, req, "research")
	}

	breakdown, err := d.Services.Script.Breakdown(ctx, req.Idea, req.Genre, req.Language)
	if err != nil {
		return result, fmt.Errorf("breakdown phase: %w", err)
	}
	out.Breakdown = breakdown
	state.Breakdown = breakdown
	persistState(ctx, d, state, p.meta, req, "breakdown")

	scenes, err := p.writeScreenplay(ctx, breakdown, req)
	if err != nil {
		return result, fmt.Errorf("screenplay phase: %w", err)
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

	// Long-form formats loop back one phase on a change request: the
	// screenplay is regenerated once with the reviewer feedback folded in.
	if !decision.Approved && decision.ChangeRequest != "" {
		log.Info("regenerating screenplay from reviewer feedback",
			slog.String("feedback", decision.ChangeRequest),
		)
		revised := breakdown + "\n\nReviewer feedback: " + decision.ChangeRequest
		scenes, err = p.writeScreenplay(ctx, revised, req)
		if err != nil {
			return result, fmt.Errorf("screenplay revision: %w", err)
		}
		out.Screenplay = scenes
		state.Screenplay = screenplayText(scenes)
		state.Shotlist = sceneTitles(scenes)
		result.Warnings = append(result.Warnings, "screenplay revised after change request")
		persistState(ctx, d, state, p.meta, req, "screenplay-revised")
	}

	visuals, warnings := generateVisuals(ctx, d, scenes, p.meta)
	out.Visuals = visuals
	result.Warnings = append(result.Warnings, warnings...)
	persistState(ctx, d, state, p.meta, req, "visuals")

	segments, warnings := narrate(ctx, d, scenes, req.Language)
	out.NarrationSegments = segments
	result.Warnings = append(result.Warnings, warnings...)

	out.Chapters = buildChapters(scenes)
	out.AssemblyRules = buildAssemblyRules(scenes)
	out.TotalDuration = totalDuration(scenes)
	if p.meta.ID == "educational" {
		out.LearningObjectives = learningObjectives(scenes)
	}

	persistState(ctx, d, state, p.meta, req, "complete")

	result.Success = true
	log.Info("pipeline complete",
		slog.String("session_id", result.SessionID),
		slog.Int("scenes", len(scenes)),
		slog.Int("visuals", len(visuals)),
		slog.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// writeScreenplay generates scenes bounded by the format's duration range.
func (p *DocumentaryPipeline) writeScreenplay(ctx context.Context, breakdown string, req Request) ([]generate.Scene, error) {
	return p.deps.Services.Script.Screenplay(ctx, breakdown, generate.ScreenplayOptions{
		Language:       req.Language,
		Genre:          req.Genre,
		MinDurationSec: p.meta.Duration.Min,
		MaxDurationSec: p.meta.Duration.Max,
	})
}

// screenplayText flattens scenes into the representation stored in
// session state.
func screenplayText(scenes []generate.Scene) string {
	var b strings.Builder
	for _, s := range scenes {
		fmt.Fprintf(&b, "## %d. %s\n%s\n", s.Index, s.Title, s.Description)
		for _, line := range s.Dialogue {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// learningObjectives derives one objective per scene for the educational
// variant.
func learningObjectives(scenes []generate.Scene) []string {
	objectives := make([]string, 0, len(scenes))
	for _, s := range scenes {
		objectives = append(objectives, "Understand "+strings.ToLower(s.Title))
	}
	return objectives
}
