package pdftext

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"archivist/internal/services"
)

// DefaultBinary is the poppler text extraction tool.
const DefaultBinary = "pdftotext"

// Page holds the native text layer of a single PDF page.
type Page struct {
	Number int
	Text   string
}

// Service extracts the native text layer from PDF files.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates a text extraction service using the given binary.
func NewService(binary string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &Service{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.commandRunner = runner
}

// ExtractPages runs pdftotext over the whole document and splits the output on
// the form-feed page separators the tool emits. Page numbers are 1-based.
func (s *Service) ExtractPages(ctx context.Context, path string) ([]Page, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrValidation, "extract_text", "extract pages", "source path required", nil)
	}

	output, err := s.run(ctx, s.binary, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extract_text", "pdftotext", "", err)
	}

	return SplitPages(string(output)), nil
}

// SplitPages splits pdftotext stdout into per-page text on form feeds.
func SplitPages(output string) []Page {
	raw := strings.Split(output, "\f")
	// pdftotext terminates the final page with a form feed, leaving an empty
	// trailing element.
	if n := len(raw); n > 1 && strings.TrimSpace(raw[n-1]) == "" {
		raw = raw[:n-1]
	}
	pages := make([]Page, 0, len(raw))
	for i, text := range raw {
		pages = append(pages, Page{Number: i + 1, Text: strings.TrimRight(text, "\n")})
	}
	return pages
}

func (s *Service) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		if detail != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, detail)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}
