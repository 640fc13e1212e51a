package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"archivist/internal/services"
)

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "custom-model" {
			t.Errorf("model = %q", req.Model)
		}
		if req.Prompt != "chunk text" {
			t.Errorf("prompt = %q", req.Prompt)
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, -0.5, 0.9}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", WithModel("custom-model"))
	vec, err := client.Embed(context.Background(), "chunk text")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 || vec[1] != -0.5 {
		t.Errorf("embedding = %v", vec)
	}
}

func TestEmbedEmptyText(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "")
	_, err := client.Embed(context.Background(), "   ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestEmbedAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Error: "model not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Embed(context.Background(), "text")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("want ErrTransient, got %v", err)
	}
}

func TestEmbedUnconfigured(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Embed(context.Background(), "text")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}
