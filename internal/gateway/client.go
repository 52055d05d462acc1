// Package gateway provides the HTTP adapter for the generation gateway:
// a single vendor endpoint multiplexing LLM script writing, research,
// image generation and narration synthesis. It implements every interface
// in the generate package.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/maauso/storyforge-api/internal/generate"
	"github.com/maauso/storyforge-api/internal/retry"
)

// Static errors for gateway client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("gateway: GATEWAY_API_KEY environment variable is not set")
	// ErrServerError is returned when the gateway returns a 5xx status code.
	ErrServerError = errors.New("gateway: server error")
	// ErrRateLimited is returned when the gateway returns a 429 status code.
	ErrRateLimited = errors.New("gateway: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("gateway: request failed")
	// ErrEmptyResponse is returned when the gateway omits the expected payload.
	ErrEmptyResponse = errors.New("gateway: empty response payload")
)

// Compile-time checks that Client implements every vendor interface.
var (
	_ generate.ScriptService   = (*Client)(nil)
	_ generate.ResearchService = (*Client)(nil)
	_ generate.ImageService    = (*Client)(nil)
	_ generate.SpeechService   = (*Client)(nil)
)

// Client is the HTTP implementation of the generation vendor interfaces.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// NewClient creates a new gateway client for the given base URL.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable GATEWAY_API_KEY.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		policy:     retry.DefaultPolicy(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("GATEWAY_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Breakdown expands an idea into a structured topic breakdown.
func (c *Client) Breakdown(ctx context.Context, idea, genre, language string) (string, error) {
	req := breakdownRequest{Idea: idea, Genre: genre, Language: language}

	var resp breakdownResponse
	if err := c.post(ctx, "/script/breakdown", req, &resp); err != nil {
		return "", err
	}
	if resp.Breakdown == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
		}
		return "", ErrEmptyResponse
	}
	return resp.Breakdown, nil
}

// Screenplay turns a breakdown into ordered scenes.
func (c *Client) Screenplay(ctx context.Context, breakdown string, opts generate.ScreenplayOptions) ([]generate.Scene, error) {
	req := screenplayRequest{
		Breakdown:      breakdown,
		Language:       opts.Language,
		Genre:          opts.Genre,
		SceneCount:     opts.SceneCount,
		MinDurationSec: opts.MinDurationSec,
		MaxDurationSec: opts.MaxDurationSec,
	}

	var resp screenplayResponse
	if err := c.post(ctx, "/script/screenplay", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Scenes) == 0 {
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
		}
		return nil, ErrEmptyResponse
	}
	return resp.Scenes, nil
}

// Research investigates a topic. Zero sources with confidence 0 is a valid
// partial result, not an error.
func (c *Client) Research(ctx context.Context, topic string, opts generate.ResearchOptions) (*generate.ResearchResult, error) {
	req := researchRequest{Topic: topic, Depth: opts.Depth, MaxResults: opts.MaxResults}

	var resp researchResponse
	if err := c.post(ctx, "/research", req, &resp); err != nil {
		return nil, err
	}
	return &generate.ResearchResult{
		Summary:    resp.Summary,
		Sources:    resp.Sources,
		Confidence: resp.Confidence,
	}, nil
}

// GenerateVisual produces one image for a scene description.
func (c *Client) GenerateVisual(ctx context.Context, prompt, aspectRatio string) (*generate.Visual, error) {
	req := imageRequest{Prompt: prompt, AspectRatio: aspectRatio}

	var resp imageResponse
	if err := c.post(ctx, "/images", req, &resp); err != nil {
		return nil, err
	}
	if resp.URL == "" {
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
		}
		return nil, ErrEmptyResponse
	}
	return &generate.Visual{URL: resp.URL, Prompt: prompt}, nil
}

// Synthesize produces narration audio for the given text.
func (c *Client) Synthesize(ctx context.Context, text, language string) (*generate.NarrationSegment, error) {
	req := speechRequest{Text: text, Language: language}

	var resp speechResponse
	if err := c.post(ctx, "/speech", req, &resp); err != nil {
		return nil, err
	}
	if resp.AudioURL == "" {
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
		}
		return nil, ErrEmptyResponse
	}
	return &generate.NarrationSegment{
		Text:        text,
		AudioURL:    resp.AudioURL,
		DurationSec: resp.DurationSec,
	}, nil
}

// post performs a JSON POST with the shared retry policy applied.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gateway: marshal request: %w", err)
	}

	url := c.baseURL + path
	_, err = c.policy.Do(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, url, bodyBytes, result)
	})
	return err
}

// doRequest performs a single HTTP request, marking transient failures
// (network errors, 429, 5xx) retryable for the policy.
func (c *Client) doRequest(ctx context.Context, url string, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.MarkRetryable(fmt.Errorf("gateway: request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.MarkRetryable(fmt.Errorf("gateway: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return retry.MarkRetryable(fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody)))
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return retry.MarkRetryable(fmt.Errorf("%w: %s", ErrRateLimited, string(respBody)))
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("gateway: unmarshal response: %w", err)
		}
	}

	return nil
}
