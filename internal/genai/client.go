// Package genai wraps the external text-generation service used for quiz
// questions and AI-fallback conversation. Every response is treated as
// untrusted: malformed payloads surface as recoverable errors so the caller
// can reset the affected mode instead of retrying in a loop.
package genai

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
)

// ErrMalformed marks a response the service returned but the client could
// not use (empty or structurally invalid).
var ErrMalformed = errors.New("genai: malformed response")

// Config holds the generation service connection settings.
type Config struct {
	BaseURL string        // endpoint accepting POST {"prompt": ...}
	APIKey  string        // bearer token, optional
	Timeout time.Duration // per-request budget
}

// DefaultConfig reads settings from the environment with local defaults.
func DefaultConfig() Config {
	cfg := Config{
		BaseURL: "http://localhost:8090/v1/generate",
		APIKey:  os.Getenv("GENAI_API_KEY"),
		Timeout: 15 * time.Second,
	}
	if v := os.Getenv("GENAI_URL"); v != "" {
		cfg.BaseURL = v
	}
	return cfg
}

// Client is an HTTP client for the generation endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a generation client from config.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate sends a prompt and returns the generated text. Transport
// failures and non-2xx statuses are returned as errors; a 2xx response
// with no usable text is ErrMalformed.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("genai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("genai: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("genai: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("genai: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("genai: status %d: %s", resp.StatusCode, respBody)
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if out.Text == "" {
		return "", fmt.Errorf("%w: empty text", ErrMalformed)
	}
	return out.Text, nil
}
