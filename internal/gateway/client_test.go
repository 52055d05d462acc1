package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/storyforge-api/internal/generate"
	"github.com/maauso/storyforge-api/internal/retry"
)

func fastPolicy(maxRetries int) retry.Policy {
	return retry.Policy{
		MaxRetries: maxRetries,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL,
		WithAPIKey("test-key"),
		WithRetryPolicy(fastPolicy(2)),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	t.Setenv("GATEWAY_API_KEY", "")

	_, err := NewClient("https://gateway.example.com")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestNewClient_APIKeyFromEnv(t *testing.T) {
	t.Setenv("GATEWAY_API_KEY", "env-key")

	c, err := NewClient("https://gateway.example.com")
	require.NoError(t, err)
	assert.Equal(t, "env-key", c.apiKey)
}

func TestBreakdown_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/script/breakdown", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req breakdownRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deep sea cables", req.Idea)

		_ = json.NewEncoder(w).Encode(breakdownResponse{Breakdown: "act 1, act 2"})
	})

	out, err := c.Breakdown(context.Background(), "deep sea cables", "Science", "en")
	require.NoError(t, err)
	assert.Equal(t, "act 1, act 2", out)
}

func TestBreakdown_EmptyPayload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(breakdownResponse{})
	})

	_, err := c.Breakdown(context.Background(), "idea", "", "en")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestScreenplay_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/script/screenplay", r.URL.Path)
		_ = json.NewEncoder(w).Encode(screenplayResponse{Scenes: []generate.Scene{
			{Index: 1, Title: "Opening"},
			{Index: 2, Title: "Middle"},
		}})
	})

	scenes, err := c.Screenplay(context.Background(), "breakdown", generate.ScreenplayOptions{Language: "en"})
	require.NoError(t, err)
	require.Len(t, scenes, 2)
	assert.Equal(t, "Opening", scenes[0].Title)
}

func TestResearch_PartialResultIsValid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(researchResponse{Confidence: 0})
	})

	res, err := c.Research(context.Background(), "obscure topic", generate.ResearchOptions{Depth: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.Zero(t, res.Confidence)
}

func TestGenerateVisual_RetriesOn5xx(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(imageResponse{URL: "https://cdn.example.com/img.png"})
	})

	v, err := c.GenerateVisual(context.Background(), "a lighthouse in fog", "16:9")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/img.png", v.URL)
	assert.Equal(t, int64(3), calls.Load())
}

func TestGenerateVisual_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(imageResponse{URL: "https://cdn.example.com/img.png"})
	})

	_, err := c.GenerateVisual(context.Background(), "prompt", "16:9")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestGenerateVisual_DoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := c.GenerateVisual(context.Background(), "prompt", "16:9")
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, int64(1), calls.Load())
}

func TestSynthesize_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/speech", r.URL.Path)
		_ = json.NewEncoder(w).Encode(speechResponse{
			AudioURL:    "https://cdn.example.com/narration.mp3",
			DurationSec: 12.5,
		})
	})

	seg, err := c.Synthesize(context.Background(), "In the beginning...", "en")
	require.NoError(t, err)
	assert.Equal(t, "In the beginning...", seg.Text)
	assert.Equal(t, 12.5, seg.DurationSec)
}

func TestPost_ExhaustedRetries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Breakdown(context.Background(), "idea", "", "en")
	assert.ErrorIs(t, err, retry.ErrMaxRetriesExceeded)
}
