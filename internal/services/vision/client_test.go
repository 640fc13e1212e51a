package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"archivist/internal/services"
)

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.png")
	if err := os.WriteFile(path, []byte("fake png bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecognizeImage(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/ocr" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var req ocrRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.ImageBase64 == "" {
			t.Error("image payload missing")
		}
		json.NewEncoder(w).Encode(ocrResponse{Text: "MEETING MINUTES", Confidence: 93.4})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	result, err := client.RecognizeImage(context.Background(), writeImage(t))
	if err != nil {
		t.Fatal(err)
	}
	if result.Text != "MEETING MINUTES" {
		t.Errorf("text = %q", result.Text)
	}
	if result.Confidence != 93 {
		t.Errorf("confidence = %d, want 93", result.Confidence)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestRecognizeImageServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.RecognizeImage(context.Background(), writeImage(t))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("want ErrTransient, got %v", err)
	}
}

func TestRecognizeImageClientErrorIsValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unsupported image", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.RecognizeImage(context.Background(), writeImage(t))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestRecognizeImageUnconfigured(t *testing.T) {
	client := NewClient("", "")
	if client.Configured() {
		t.Fatal("empty base URL should not be configured")
	}
	_, err := client.RecognizeImage(context.Background(), writeImage(t))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}
