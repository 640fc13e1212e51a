package classify

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
	defaultModel       = "classify-1"
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
)

// Client wraps a chat-completions style API for document metadata extraction.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes the classify client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithModel overrides the default model.
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

// NewClient constructs a classification client.
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

// Configured reports whether a backend is set; without one callers fall back
// to heuristic categorization.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Model returns the configured model name for derivative versioning.
func (c *Client) Model() string {
	return c.model
}

// Classification captures the metadata the backend extracted from a document.
type Classification struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Author     string   `json:"author"`
	Year       int      `json:"year"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
	// Confidence and Completeness are 0-100.
	Confidence   int    `json:"confidence"`
	Completeness int    `json:"completeness"`
	Raw          string `json:"-"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Classify asks the backend to extract metadata from document text. The text
// should be the first portion of the document; callers truncate as needed.
func (c *Client) Classify(ctx context.Context, kind, text string) (Classification, error) {
	var empty Classification
	if !c.Configured() {
		return empty, services.Wrap(services.ErrConfiguration, "categorize", "classify", "classifier base URL not configured", nil)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return empty, services.Wrap(services.ErrValidation, "categorize", "classify", "empty document text", nil)
	}

	request := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: metadataPrompt(kind)},
			{Role: "user", Content: text},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return empty, fmt.Errorf("classify: encode request: %w", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "/chat/completions")
	if err != nil {
		return empty, fmt.Errorf("classify: build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("classify: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return empty, services.Wrap(services.ErrTimeout, "categorize", "classify", "", err)
		}
		return empty, services.Wrap(services.ErrTransient, "categorize", "classify", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "categorize", "classify", "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		marker := services.ErrTransient
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
			marker = services.ErrValidation
		}
		return empty, services.Wrap(marker, "categorize", "classify",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return empty, services.Wrap(services.ErrTransient, "categorize", "classify", "decode response", err)
	}
	if decoded.Error != nil {
		return empty, services.Wrap(services.ErrTransient, "categorize", "classify",
			"api error: "+strings.TrimSpace(decoded.Error.Message), nil)
	}
	if len(decoded.Choices) == 0 {
		return empty, services.Wrap(services.ErrTransient, "categorize", "classify", "empty choices", nil)
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return empty, services.Wrap(services.ErrTransient, "categorize", "classify", "empty content", nil)
	}

	var parsed Classification
	parsed.Raw = content
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return empty, services.Wrap(services.ErrTransient, "categorize", "classify", "parse payload", err)
	}
	parsed.Title = strings.TrimSpace(parsed.Title)
	parsed.Summary = strings.TrimSpace(parsed.Summary)
	parsed.Author = strings.TrimSpace(parsed.Author)
	parsed.Confidence = clampScore(parsed.Confidence)
	parsed.Completeness = clampScore(parsed.Completeness)
	return parsed, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
