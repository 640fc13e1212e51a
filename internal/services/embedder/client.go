package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"archivist/internal/services"
)

const (
	defaultModel       = "nomic-embed-text"
	defaultHTTPTimeout = 60 * time.Second
)

// Client talks to an embedding backend with an Ollama-compatible API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes the embedder client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithModel overrides the default embedding model.
func WithModel(model string) Option {
	return func(c *Client) {
		model = strings.TrimSpace(model)
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient constructs an embedding client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Model returns the configured model name for derivative versioning.
func (c *Client) Model() string {
	return c.model
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error"`
}

// Embed returns the embedding vector for a single chunk of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if c == nil || c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "embed", "embed", "embedder base URL not configured", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, "embed", "embed", "empty text", nil)
	}

	encoded, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedder: encode request: %w", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "/api/embeddings")
	if err != nil {
		return nil, fmt.Errorf("embedder: build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("embedder: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "embed", "embed", "", err)
		}
		return nil, services.Wrap(services.ErrTransient, "embed", "embed", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "embed", "embed", "read body", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		marker := services.ErrTransient
		if resp.StatusCode < http.StatusInternalServerError {
			marker = services.ErrValidation
		}
		return nil, services.Wrap(marker, "embed", "embed",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded embedResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, "embed", "embed", "decode response", err)
	}
	if decoded.Error != "" {
		return nil, services.Wrap(services.ErrTransient, "embed", "embed", "api error: "+decoded.Error, nil)
	}
	if len(decoded.Embedding) == 0 {
		return nil, services.Wrap(services.ErrTransient, "embed", "embed", "empty embedding", nil)
	}
	return decoded.Embedding, nil
}
