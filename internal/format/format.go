// Package format provides the catalog of supported output formats.
// Each format describes the constraints a production must satisfy
// (duration range, aspect ratio, checkpoint count, concurrency limit)
// and is looked up by the router before any pipeline work begins.
package format

import "time"

// DurationRange bounds the total length of a produced video in seconds.
type DurationRange struct {
	// Min is the minimum duration in seconds.
	Min int `yaml:"min" json:"min"`
	// Max is the maximum duration in seconds.
	Max int `yaml:"max" json:"max"`
}

// Metadata describes a single output format.
// Instances are immutable after registration; mutate via Registry methods only.
type Metadata struct {
	// ID is the unique format identifier, e.g. "documentary".
	ID string `yaml:"id" json:"id"`
	// Name is the human-readable format name.
	Name string `yaml:"name" json:"name"`
	// Duration bounds the total video length in seconds.
	Duration DurationRange `yaml:"duration" json:"duration"`
	// AspectRatio is the output aspect ratio, e.g. "16:9".
	AspectRatio string `yaml:"aspect_ratio" json:"aspect_ratio"`
	// ApplicableGenres lists the genres this format supports, in display order.
	// The list shown to users must exactly equal this slice.
	ApplicableGenres []string `yaml:"applicable_genres" json:"applicable_genres"`
	// CheckpointCount is the number of human-approval gates in the pipeline.
	CheckpointCount int `yaml:"checkpoint_count" json:"checkpoint_count"`
	// ConcurrencyLimit bounds parallel generation tasks for this format.
	ConcurrencyLimit int `yaml:"concurrency_limit" json:"concurrency_limit"`
	// RequiresResearch indicates whether the pipeline runs a research phase.
	RequiresResearch bool `yaml:"requires_research" json:"requires_research"`
	// SupportedLanguages lists the language codes this format supports.
	SupportedLanguages []string `yaml:"supported_languages" json:"supported_languages"`
	// Placeholder is the idea-input placeholder text shown for this format.
	Placeholder string `yaml:"placeholder" json:"placeholder"`
	// Deprecated flags the format as deprecated. Deprecated formats remain
	// routable; dispatch only annotates the result with a warning.
	Deprecated bool `yaml:"deprecated" json:"deprecated"`
	// DeprecationMessage explains the deprecation to users.
	DeprecationMessage string `yaml:"deprecation_message" json:"deprecation_message,omitempty"`
}

// SupportsLanguage returns true if the language code is supported.
func (m *Metadata) SupportsLanguage(lang string) bool {
	for _, l := range m.SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// SupportsGenre returns true if the genre is applicable to this format.
func (m *Metadata) SupportsGenre(genre string) bool {
	for _, g := range m.ApplicableGenres {
		if g == genre {
			return true
		}
	}
	return false
}

// DefaultCheckpointTimeout returns the timeout applied to this format's
// checkpoints when the caller does not override it.
func (m *Metadata) DefaultCheckpointTimeout(fallback time.Duration) time.Duration {
	if fallback > 0 {
		return fallback
	}
	return 5 * time.Minute
}
