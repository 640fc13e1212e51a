package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"archivist/internal/services"
)

func chatReply(t *testing.T, payload string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var resp chatResponse
		resp.Choices = append(resp.Choices, struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{})
		resp.Choices[0].Message.Content = payload
		json.NewEncoder(w).Encode(resp)
	}
}

func TestClassify(t *testing.T) {
	payload := `{"title":"Mill Pond Survey","summary":"A 1952 land survey.","author":"R. Hayes",` +
		`"year":1952,"categories":["surveying","land records"],"tags":["pond","easement"],` +
		`"confidence":88,"completeness":75}`
	server := httptest.NewServer(chatReply(t, payload))
	defer server.Close()

	client := NewClient(server.URL, "key")
	got, err := client.Classify(context.Background(), "plan", "SURVEY OF MILL POND ...")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Mill Pond Survey" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Year != 1952 {
		t.Errorf("year = %d", got.Year)
	}
	if len(got.Categories) != 2 || got.Categories[0] != "surveying" {
		t.Errorf("categories = %v", got.Categories)
	}
	if got.Confidence != 88 || got.Completeness != 75 {
		t.Errorf("scores = %d/%d", got.Confidence, got.Completeness)
	}
	if got.Raw == "" {
		t.Error("raw payload not preserved")
	}
}

func TestClassifyClampsScores(t *testing.T) {
	payload := `{"title":"X","confidence":250,"completeness":-5}`
	server := httptest.NewServer(chatReply(t, payload))
	defer server.Close()

	client := NewClient(server.URL, "")
	got, err := client.Classify(context.Background(), "document", "text")
	if err != nil {
		t.Fatal(err)
	}
	if got.Confidence != 100 {
		t.Errorf("confidence = %d, want 100", got.Confidence)
	}
	if got.Completeness != 0 {
		t.Errorf("completeness = %d, want 0", got.Completeness)
	}
}

func TestClassifyEmptyTextRejected(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "")
	_, err := client.Classify(context.Background(), "book", "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestClassifyUnconfigured(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Classify(context.Background(), "book", "text")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}

func TestClassifyMalformedPayload(t *testing.T) {
	server := httptest.NewServer(chatReply(t, "not json"))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Classify(context.Background(), "book", "text")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("want ErrTransient, got %v", err)
	}
}
