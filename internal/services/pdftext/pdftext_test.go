package pdftext

import (
	"context"
	"testing"
)

func TestExtractPagesSplitsOnFormFeed(t *testing.T) {
	svc := NewService("")
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != DefaultBinary {
			t.Fatalf("unexpected binary %q", name)
		}
		return []byte("page one text\n\fpage two text\n\f"), nil
	})

	pages, err := svc.ExtractPages(context.Background(), "/tmp/sample.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if pages[0].Number != 1 || pages[0].Text != "page one text" {
		t.Errorf("page 1 = %+v", pages[0])
	}
	if pages[1].Number != 2 || pages[1].Text != "page two text" {
		t.Errorf("page 2 = %+v", pages[1])
	}
}

func TestExtractPagesEmptyPathRejected(t *testing.T) {
	svc := NewService("")
	if _, err := svc.ExtractPages(context.Background(), "  "); err == nil {
		t.Fatal("expected validation error for empty path")
	}
}

func TestSplitPagesPreservesBlankInteriorPages(t *testing.T) {
	pages := SplitPages("first\n\f\f\fthird\n\f")
	if len(pages) != 4 {
		t.Fatalf("got %d pages, want 4", len(pages))
	}
	if pages[1].Text != "" || pages[2].Text != "" {
		t.Errorf("interior blank pages not preserved: %+v", pages)
	}
	if pages[3].Number != 4 {
		t.Errorf("page numbering broken: %+v", pages[3])
	}
}
