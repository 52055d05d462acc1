package gateway

import "github.com/maauso/storyforge-api/internal/generate"

// breakdownRequest is the request body for POST /script/breakdown.
type breakdownRequest struct {
	Idea     string `json:"idea"`
	Genre    string `json:"genre,omitempty"`
	Language string `json:"language"`
}

// breakdownResponse is the response body for POST /script/breakdown.
type breakdownResponse struct {
	Breakdown string `json:"breakdown"`
	Error     string `json:"error,omitempty"`
}

// screenplayRequest is the request body for POST /script/screenplay.
type screenplayRequest struct {
	Breakdown      string `json:"breakdown"`
	Language       string `json:"language"`
	Genre          string `json:"genre,omitempty"`
	SceneCount     int    `json:"scene_count,omitempty"`
	MinDurationSec int    `json:"min_duration_sec,omitempty"`
	MaxDurationSec int    `json:"max_duration_sec,omitempty"`
}

// screenplayResponse is the response body for POST /script/screenplay.
type screenplayResponse struct {
	Scenes []generate.Scene `json:"scenes"`
	Error  string           `json:"error,omitempty"`
}

// researchRequest is the request body for POST /research.
type researchRequest struct {
	Topic      string `json:"topic"`
	Depth      int    `json:"depth,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// researchResponse is the response body for POST /research.
type researchResponse struct {
	Summary    string            `json:"summary"`
	Sources    []generate.Source `json:"sources"`
	Confidence float64           `json:"confidence"`
	Error      string            `json:"error,omitempty"`
}

// imageRequest is the request body for POST /images.
type imageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
}

// imageResponse is the response body for POST /images.
type imageResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// speechRequest is the request body for POST /speech.
type speechRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// speechResponse is the response body for POST /speech.
type speechResponse struct {
	AudioURL    string  `json:"audio_url"`
	DurationSec float64 `json:"duration_sec"`
	Error       string  `json:"error,omitempty"`
}
