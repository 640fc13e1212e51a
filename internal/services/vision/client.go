package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"archivist/internal/services"
)

const (
	defaultModel       = "vision-ocr-1"
	defaultHTTPTimeout = 120 * time.Second
)

// Client wraps a hosted vision OCR API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes the vision client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithModel overrides the default OCR model.
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

// NewClient constructs a vision OCR client. baseURL is required.
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

// Configured reports whether a backend is set up; unconfigured clients make
// cloud escalation a no-op.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Model returns the configured OCR model name for derivative versioning.
func (c *Client) Model() string {
	return c.model
}

// Result is the recognized text of one page with the backend's confidence.
type Result struct {
	Text string `json:"text"`
	// Confidence is 0-100.
	Confidence int `json:"confidence"`
}

type ocrRequest struct {
	Model       string `json:"model"`
	ImageBase64 string `json:"image_base64"`
}

type ocrResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// RecognizeImage submits an image file for OCR and returns the recognized text.
func (c *Client) RecognizeImage(ctx context.Context, imagePath string) (Result, error) {
	var empty Result
	if !c.Configured() {
		return empty, services.Wrap(services.ErrConfiguration, "ocr_cloud", "recognize", "cloud OCR base URL not configured", nil)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return empty, services.Wrap(services.ErrNotFound, "ocr_cloud", "read image", imagePath, err)
	}

	payload := ocrRequest{
		Model:       c.model,
		ImageBase64: base64.StdEncoding.EncodeToString(data),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return empty, fmt.Errorf("vision ocr: encode request: %w", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, "/v1/ocr")
	if err != nil {
		return empty, fmt.Errorf("vision ocr: build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("vision ocr: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return empty, services.Wrap(services.ErrTimeout, "ocr_cloud", "recognize", "", err)
		}
		return empty, services.Wrap(services.ErrTransient, "ocr_cloud", "recognize", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "ocr_cloud", "recognize", "read body", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return empty, services.Wrap(services.ErrTransient, "ocr_cloud", "recognize",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return empty, services.Wrap(services.ErrValidation, "ocr_cloud", "recognize",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded ocrResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return empty, services.Wrap(services.ErrTransient, "ocr_cloud", "recognize", "decode response", err)
	}
	if decoded.Error != nil {
		return empty, services.Wrap(services.ErrTransient, "ocr_cloud", "recognize",
			"api error: "+strings.TrimSpace(decoded.Error.Message), nil)
	}

	confidence := int(decoded.Confidence)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}
	return Result{Text: decoded.Text, Confidence: confidence}, nil
}
