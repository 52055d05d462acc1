// Package generate provides the common interfaces for generation vendors:
// script writing, research, image generation and narration synthesis.
// Pipelines and the execution engine depend only on this success/failure
// contract, never on vendor-specific request or response shapes.
package generate

import "context"

// Scene is one screenplay scene: the unit of visual and narration fanout.
type Scene struct {
	// Index is the scene position, starting at 1.
	Index int `json:"index"`
	// Title is a short scene heading.
	Title string `json:"title"`
	// Description is the visual direction for the scene.
	Description string `json:"description"`
	// Dialogue is the spoken lines in order.
	Dialogue []string `json:"dialogue"`
	// DurationSec is the planned scene length in seconds.
	DurationSec float64 `json:"duration_sec"`
}

// LastLine returns the final dialogue line of the scene, or "" when silent.
func (s Scene) LastLine() string {
	if len(s.Dialogue) == 0 {
		return ""
	}
	return s.Dialogue[len(s.Dialogue)-1]
}

// ScreenplayOptions constrains screenplay generation.
type ScreenplayOptions struct {
	// Language is the dialogue language code.
	Language string
	// Genre optionally steers tone, e.g. "Product Launch".
	Genre string
	// SceneCount fixes the number of scenes when > 0.
	SceneCount int
	// MinDurationSec and MaxDurationSec bound total length.
	MinDurationSec int
	MaxDurationSec int
}

// ScriptService generates topic breakdowns and screenplays.
type ScriptService interface {
	// Breakdown expands an idea into a structured topic breakdown.
	Breakdown(ctx context.Context, idea, genre, language string) (string, error)

	// Screenplay turns a breakdown into ordered scenes.
	Screenplay(ctx context.Context, breakdown string, opts ScreenplayOptions) ([]Scene, error)
}

// Source is one research citation.
type Source struct {
	// Title is the source title.
	Title string `json:"title"`
	// URL is the source location.
	URL string `json:"url"`
}

// ResearchResult is the outcome of a research request. Partial research is
// valid: zero sources with Confidence 0 degrades quality but is not an error.
type ResearchResult struct {
	// Summary is the synthesized research summary.
	Summary string `json:"summary"`
	// Sources lists the citations backing the summary.
	Sources []Source `json:"sources"`
	// Confidence scores the research quality in [0, 1].
	Confidence float64 `json:"confidence"`
}

// ResearchOptions constrains a research request.
type ResearchOptions struct {
	// Depth selects how many search rounds to run.
	Depth int
	// MaxResults caps the number of sources returned.
	MaxResults int
}

// ResearchService gathers background material for research-driven formats.
type ResearchService interface {
	// Research investigates a topic. Implementations return partial results
	// rather than failing when sources are scarce.
	Research(ctx context.Context, topic string, opts ResearchOptions) (*ResearchResult, error)
}

// Visual is a generated scene image.
type Visual struct {
	// SceneIndex links the visual to its scene.
	SceneIndex int `json:"scene_index"`
	// URL locates the generated image.
	URL string `json:"url"`
	// Prompt is the prompt the image was generated from.
	Prompt string `json:"prompt"`
}

// ImageService generates scene visuals.
type ImageService interface {
	// GenerateVisual produces one image for a scene description.
	GenerateVisual(ctx context.Context, prompt, aspectRatio string) (*Visual, error)
}

// NarrationSegment is one synthesized narration clip.
type NarrationSegment struct {
	// SceneIndex links the segment to its scene.
	SceneIndex int `json:"scene_index"`
	// Text is the narrated text.
	Text string `json:"text"`
	// AudioURL locates the synthesized audio.
	AudioURL string `json:"audio_url"`
	// DurationSec is the clip length in seconds.
	DurationSec float64 `json:"duration_sec"`
}

// SpeechService synthesizes narration audio.
type SpeechService interface {
	// Synthesize produces narration audio for the given text.
	Synthesize(ctx context.Context, text, language string) (*NarrationSegment, error)
}

// Services bundles every vendor interface a pipeline may need.
type Services struct {
	Script   ScriptService
	Research ResearchService
	Image    ImageService
	Speech   SpeechService
}
