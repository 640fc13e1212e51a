package tesseract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"archivist/internal/services"
)

const (
	// DefaultBinary is the local OCR engine executable.
	DefaultBinary = "tesseract"
	// RasterizeCommand renders PDF pages to images for OCR.
	RasterizeCommand = "pdftoppm"
	// rasterDPI balances OCR accuracy against render time.
	rasterDPI = "300"
)

// Result is the recognized text of one page with a mean word confidence score.
type Result struct {
	Text string
	// Confidence is the mean per-word confidence, 0-100.
	Confidence int
}

// Service runs local OCR over rasterized PDF pages.
type Service struct {
	binary        string
	language      string
	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates a local OCR service.
func NewService(binary, language string) *Service {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	if strings.TrimSpace(language) == "" {
		language = "eng"
	}
	return &Service{binary: binary, language: language}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.commandRunner = runner
}

// HealthCheck verifies the tesseract binary is available.
func (s *Service) HealthCheck(ctx context.Context) error {
	if _, err := s.run(ctx, s.binary, "--version"); err != nil {
		return services.Wrap(services.ErrConfiguration, "ocr_local", "health check", "tesseract unavailable", err)
	}
	return nil
}

// RenderPage rasterizes a single PDF page to PNG inside workDir and returns
// the image path. Page numbers are 1-based.
func (s *Service) RenderPage(ctx context.Context, pdfPath string, page int, workDir string) (string, error) {
	if page < 1 {
		return "", services.Wrap(services.ErrValidation, "ocr_local", "render page", fmt.Sprintf("invalid page %d", page), nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "ocr_local", "render page", "ensure work dir", err)
	}

	prefix := filepath.Join(workDir, fmt.Sprintf("page-%04d", page))
	pageArg := strconv.Itoa(page)
	_, err := s.run(ctx, RasterizeCommand,
		"-png", "-r", rasterDPI, "-f", pageArg, "-l", pageArg, "-singlefile",
		pdfPath, prefix)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "ocr_local", "pdftoppm", "", err)
	}
	return prefix + ".png", nil
}

// RecognizeImage OCRs an image file, returning text and mean word confidence.
func (s *Service) RecognizeImage(ctx context.Context, imagePath string) (Result, error) {
	var result Result
	if strings.TrimSpace(imagePath) == "" {
		return result, services.Wrap(services.ErrValidation, "ocr_local", "recognize", "image path required", nil)
	}

	output, err := s.run(ctx, s.binary, imagePath, "stdout", "-l", s.language, "tsv")
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "ocr_local", "tesseract", "", err)
	}

	return ParseTSV(string(output)), nil
}

// ParseTSV reconstructs page text and mean word confidence from tesseract TSV
// output. Only rows at word level (level 5) with non-negative confidence count
// toward the mean.
func ParseTSV(output string) Result {
	var (
		words     []string
		confSum   int
		confCount int
		lastBlock = -1
		lastPar   = -1
		lastLine  = -1
		builder   strings.Builder
	)

	flushLine := func() {
		if len(words) == 0 {
			return
		}
		if builder.Len() > 0 {
			builder.WriteByte('\n')
		}
		builder.WriteString(strings.Join(words, " "))
		words = words[:0]
	}

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		level, err := strconv.Atoi(fields[0])
		if err != nil || level != 5 {
			continue
		}
		block, _ := strconv.Atoi(fields[2])
		par, _ := strconv.Atoi(fields[3])
		lineNum, _ := strconv.Atoi(fields[4])
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(fields[11])
		if text == "" {
			continue
		}

		if block != lastBlock || par != lastPar || lineNum != lastLine {
			flushLine()
			lastBlock, lastPar, lastLine = block, par, lineNum
		}
		words = append(words, text)
		if conf >= 0 {
			confSum += int(conf)
			confCount++
		}
	}
	flushLine()

	result := Result{Text: builder.String()}
	if confCount > 0 {
		result.Confidence = confSum / confCount
	}
	return result
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
