package pipeline

import "github.com/maauso/storyforge-api/internal/generate"

// DocumentaryOutput is the tagged result payload of the documentary and
// educational pipelines.
type DocumentaryOutput struct {
	formatID string

	// Research is the research phase result; confidence 0 when degraded.
	Research *generate.ResearchResult `json:"research,omitempty"`
	// Breakdown is the structured topic breakdown.
	Breakdown string `json:"breakdown,omitempty"`
	// Screenplay is the ordered scene list.
	Screenplay []generate.Scene `json:"screenplay,omitempty"`
	// Visuals holds one generated image per successfully rendered scene.
	Visuals []generate.Visual `json:"visuals,omitempty"`
	// NarrationSegments holds the synthesized narration per scene.
	NarrationSegments []generate.NarrationSegment `json:"narration_segments,omitempty"`
	// Chapters are the navigation markers for the assembled video.
	Chapters []Chapter `json:"chapters,omitempty"`
	// AssemblyRules instruct the assembler how scenes are joined.
	AssemblyRules []AssemblyRule `json:"assembly_rules,omitempty"`
	// LearningObjectives are set by the educational variant only.
	LearningObjectives []string `json:"learning_objectives,omitempty"`
	// TotalDuration is the planned video length in seconds.
	TotalDuration float64 `json:"total_duration"`
	// AspectRatio is the output aspect ratio.
	AspectRatio string `json:"aspect_ratio"`
}

// Format returns the format ID this output belongs to.
func (o *DocumentaryOutput) Format() string { return o.formatID }

// AdvertisementOutput is the tagged result payload of the advertisement
// pipeline: always exactly three scenes (hook, product, call to action).
type AdvertisementOutput struct {
	// Screenplay is the three-scene advertisement script.
	Screenplay []generate.Scene `json:"screenplay,omitempty"`
	// Visuals holds one generated image per scene.
	Visuals []generate.Visual `json:"visuals,omitempty"`
	// NarrationSegments holds the synthesized narration per scene.
	NarrationSegments []generate.NarrationSegment `json:"narration_segments,omitempty"`
	// CTA marks the call-to-action overlay within the final five seconds.
	CTA *CTAMarker `json:"cta,omitempty"`
	// AssemblyRules instruct the assembler how scenes are joined.
	AssemblyRules []AssemblyRule `json:"assembly_rules,omitempty"`
	// TotalDuration is the planned video length in seconds.
	TotalDuration float64 `json:"total_duration"`
	// AspectRatio is the output aspect ratio.
	AspectRatio string `json:"aspect_ratio"`
}

// Format returns the format ID this output belongs to.
func (o *AdvertisementOutput) Format() string { return "advertisement" }

// ShortsOutput is the tagged result payload of the shorts pipeline.
type ShortsOutput struct {
	// Hook is the opening line the whole short hangs on.
	Hook string `json:"hook,omitempty"`
	// Screenplay is the ordered scene list.
	Screenplay []generate.Scene `json:"screenplay,omitempty"`
	// Visuals holds one generated image per scene.
	Visuals []generate.Visual `json:"visuals,omitempty"`
	// NarrationSegments holds the synthesized narration per scene.
	NarrationSegments []generate.NarrationSegment `json:"narration_segments,omitempty"`
	// TotalDuration is the planned video length in seconds.
	TotalDuration float64 `json:"total_duration"`
	// AspectRatio is the output aspect ratio.
	AspectRatio string `json:"aspect_ratio"`
}

// Format returns the format ID this output belongs to.
func (o *ShortsOutput) Format() string { return "shorts" }
