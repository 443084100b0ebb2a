package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize limits the backend response body to prevent memory
// exhaustion on a misbehaving endpoint.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Backend invokes the external text-generation service with a prompt and a
// schema constraint, returning the decoded response body. Implementations
// must honor ctx cancellation.
type Backend interface {
	Complete(ctx context.Context, prompt string) (map[string]interface{}, error)
}

// OpenAIClient calls the OpenAI Responses API over HTTP.
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// ClientOption configures an OpenAIClient.
type ClientOption func(*OpenAIClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *OpenAIClient) {
		client.httpClient = c
	}
}

// WithBaseURL overrides the API base URL (for proxies and tests).
func WithBaseURL(u string) ClientOption {
	return func(client *OpenAIClient) {
		client.baseURL = strings.TrimSuffix(u, "/")
	}
}

// NewOpenAIClient creates a backend client. The HTTP client's own timeout is
// a transport-level backstop; the generator additionally bounds each call
// with a context deadline.
func NewOpenAIClient(apiKey, model string, opts ...ClientOption) *OpenAIClient {
	c := &OpenAIClient{
		httpClient: &http.Client{Timeout: 180 * time.Second},
		baseURL:    "https://api.openai.com/v1",
		apiKey:     apiKey,
		model:      model,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the prompt with the json_schema output constraint and
// returns the decoded response body.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (map[string]interface{}, error) {
	if c.apiKey == "" {
		return nil, Errf(CodeAICallFailed, "missing OPENAI_API_KEY")
	}

	body := map[string]interface{}{
		"model": c.model,
		"input": []map[string]interface{}{
			{"role": "user", "content": prompt},
		},
		"text": map[string]interface{}{"format": OutputFormat()},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("plan: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("plan: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Errf(CodeAITimeout, "backend request timed out")
		}
		return nil, Errf(CodeAICallFailed, "backend request: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, Errf(CodeAICallFailed, "read backend response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, Errf(CodeAICallFailed, "backend error: %d %s", resp.StatusCode, truncate(string(data), 512))
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, Errf(CodeAICallFailed, "decode backend response: %v", err)
	}
	return decoded, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
