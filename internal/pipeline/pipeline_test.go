package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maauso/storyforge-api/internal/checkpoint"
	"github.com/maauso/storyforge-api/internal/format"
	"github.com/maauso/storyforge-api/internal/generate"
	"github.com/maauso/storyforge-api/internal/retry"
	"github.com/maauso/storyforge-api/internal/session"
)

// stubScript is a canned ScriptService.
type stubScript struct {
	breakdown     string
	breakdownErr  error
	scenes        []generate.Scene
	screenplayErr error
	screenplays   atomic.Int64
}

func (s *stubScript) Breakdown(context.Context, string, string, string) (string, error) {
	if s.breakdownErr != nil {
		return "", s.breakdownErr
	}
	return s.breakdown, nil
}

func (s *stubScript) Screenplay(_ context.Context, _ string, opts generate.ScreenplayOptions) ([]generate.Scene, error) {
	s.screenplays.Add(1)
	if s.screenplayErr != nil {
		return nil, s.screenplayErr
	}
	if opts.SceneCount > 0 && opts.SceneCount < len(s.scenes) {
		return s.scenes[:opts.SceneCount], nil
	}
	return s.scenes, nil
}

// stubResearch is a canned ResearchService.
type stubResearch struct {
	result *generate.ResearchResult
	err    error
	calls  atomic.Int64
}

func (s *stubResearch) Research(context.Context, string, generate.ResearchOptions) (*generate.ResearchResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// stubImage is a canned ImageService that can fail for selected scenes.
type stubImage struct {
	failPrompts map[string]error
	calls       atomic.Int64
}

func (s *stubImage) GenerateVisual(_ context.Context, prompt, _ string) (*generate.Visual, error) {
	s.calls.Add(1)
	if err, ok := s.failPrompts[prompt]; ok {
		return nil, err
	}
	return &generate.Visual{URL: "https://cdn.example.com/" + prompt + ".png", Prompt: prompt}, nil
}

// stubSpeech is a canned SpeechService.
type stubSpeech struct {
	err error
}

func (s *stubSpeech) Synthesize(_ context.Context, text, _ string) (*generate.NarrationSegment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &generate.NarrationSegment{
		Text:        text,
		AudioURL:    "https://cdn.example.com/audio.mp3",
		DurationSec: 5,
	}, nil
}

// testScenes builds n scenes with dialogue and 10s durations.
func testScenes(n int) []generate.Scene {
	scenes := make([]generate.Scene, n)
	for i := range scenes {
		scenes[i] = generate.Scene{
			Index:       i + 1,
			Title:       []string{"Hook", "Product", "Call to Action", "Extra", "More"}[i%5],
			Description: []string{"hook-shot", "product-shot", "cta-shot", "extra-shot", "more-shot"}[i%5],
			Dialogue:    []string{"Line one of scene", "Closing line of scene"},
			DurationSec: 10,
		}
	}
	return scenes
}

// testDeps wires stub vendors into real checkpoint, session and retry
// components. The checkpoint timeout is short so unattended gates
// auto-approve quickly.
func testDeps(script *stubScript, research *stubResearch, image *stubImage, speech *stubSpeech) *Deps {
	return &Deps{
		Services: generate.Services{
			Script:   script,
			Research: research,
			Image:    image,
			Speech:   speech,
		},
		Checkpoints: checkpoint.NewManager(nil),
		Sessions:    session.NewMemoryStore(),
		Policy: retry.Policy{
			MaxRetries: 1,
			BaseDelay:  time.Millisecond,
			MaxDelay:   5 * time.Millisecond,
		},
		CheckpointTimeout: 15 * time.Millisecond,
	}
}

func defaultStubs() (*stubScript, *stubResearch, *stubImage, *stubSpeech) {
	return &stubScript{breakdown: "act structure", scenes: testScenes(3)},
		&stubResearch{result: &generate.ResearchResult{
			Summary:    "summary",
			Sources:    []generate.Source{{Title: "Source A", URL: "https://example.com/a"}},
			Confidence: 0.8,
		}},
		&stubImage{},
		&stubSpeech{}
}

func docMeta() format.Metadata {
	return format.Metadata{
		ID:                 "documentary",
		Duration:           format.DurationRange{Min: 300, Max: 1800},
		AspectRatio:        "16:9",
		ApplicableGenres:   []string{"History", "Science"},
		ConcurrencyLimit:   3,
		RequiresResearch:   true,
		SupportedLanguages: []string{"en", "es"},
	}
}

func TestValidate_EmptyIdea(t *testing.T) {
	script, research, image, speech := defaultStubs()
	p := NewDocumentaryPipeline(docMeta(), testDeps(script, research, image, speech))

	for _, idea := range []string{"", "   ", "\t\n"} {
		if err := p.Validate(Request{Idea: idea}); !errors.Is(err, ErrIdeaRequired) {
			t.Errorf("idea %q: expected ErrIdeaRequired, got %v", idea, err)
		}
	}

	if err := p.Validate(Request{Idea: "a real idea"}); err != nil {
		t.Errorf("unexpected error for valid idea: %v", err)
	}
}

// Every catalog format declares how many approval gates its pipeline
// creates; a full run must create exactly that many.
func TestCatalogGateCountsMatchPipelines(t *testing.T) {
	registry := format.NewDefaultRegistry()
	for _, meta := range registry.All() {
		t.Run(meta.ID, func(t *testing.T) {
			script, research, image, speech := defaultStubs()
			deps := testDeps(script, research, image, speech)

			var p Pipeline
			switch meta.ID {
			case "advertisement":
				p = NewAdvertisementPipeline(meta, deps)
			case "shorts":
				p = NewShortsPipeline(meta, deps)
			default:
				p = NewDocumentaryPipeline(meta, deps)
			}

			if _, err := p.Execute(context.Background(), Request{Idea: "topic", Language: "en"}); err != nil {
				t.Fatalf("execute: %v", err)
			}
			if got := len(deps.Checkpoints.All()); got != meta.CheckpointCount {
				t.Errorf("created %d checkpoints, catalog declares %d", got, meta.CheckpointCount)
			}
		})
	}
}
