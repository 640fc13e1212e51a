package tesseract

import (
	"context"
	"strings"
	"testing"
)

const sampleTSV = `level	page_num	block_num	par_num	line_num	word_num	left	top	width	height	conf	text
1	1	0	0	0	0	0	0	2550	3300	-1
4	1	1	1	1	0	100	100	800	40	-1
5	1	1	1	1	1	100	100	200	40	96.5	Annual
5	1	1	1	1	2	320	100	200	40	91.2	Report
4	1	1	1	2	0	100	160	800	40	-1
5	1	1	1	2	1	100	160	200	40	88.0	Fiscal
5	1	1	1	2	2	320	160	120	40	85.7	2024
`

func TestParseTSV(t *testing.T) {
	result := ParseTSV(sampleTSV)
	want := "Annual Report\nFiscal 2024"
	if result.Text != want {
		t.Errorf("text = %q, want %q", result.Text, want)
	}
	// (96 + 91 + 88 + 85) / 4 = 90
	if result.Confidence != 90 {
		t.Errorf("confidence = %d, want 90", result.Confidence)
	}
}

func TestParseTSVEmptyOutput(t *testing.T) {
	result := ParseTSV("level\tpage_num\n")
	if result.Text != "" || result.Confidence != 0 {
		t.Errorf("expected zero result, got %+v", result)
	}
}

func TestParseTSVIgnoresNegativeConfidence(t *testing.T) {
	tsv := "5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t-1\tghost\n" +
		"5\t1\t1\t1\t1\t2\t0\t0\t10\t10\t80.0\treal\n"
	result := ParseTSV(tsv)
	if result.Confidence != 80 {
		t.Errorf("confidence = %d, want 80", result.Confidence)
	}
	if !strings.Contains(result.Text, "ghost") {
		t.Error("words with negative confidence should still appear in text")
	}
}

func TestRecognizeImageRunsTesseract(t *testing.T) {
	svc := NewService("", "deu")
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(sampleTSV), nil
	})

	result, err := svc.RecognizeImage(context.Background(), "/tmp/page-0001.png")
	if err != nil {
		t.Fatal(err)
	}
	if result.Confidence != 90 {
		t.Errorf("confidence = %d, want 90", result.Confidence)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-l deu") {
		t.Errorf("language not passed: %v", gotArgs)
	}
	if !strings.Contains(joined, "tsv") {
		t.Errorf("tsv output not requested: %v", gotArgs)
	}
}

func TestRenderPageRejectsInvalidPage(t *testing.T) {
	svc := NewService("", "")
	if _, err := svc.RenderPage(context.Background(), "/tmp/a.pdf", 0, t.TempDir()); err == nil {
		t.Fatal("expected error for page 0")
	}
}

func TestRenderPageBuildsSingleFileArgs(t *testing.T) {
	svc := NewService("", "")
	var gotName string
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return nil, nil
	})

	path, err := svc.RenderPage(context.Background(), "/tmp/a.pdf", 3, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if gotName != RasterizeCommand {
		t.Errorf("binary = %q, want %q", gotName, RasterizeCommand)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-f 3") || !strings.Contains(joined, "-l 3") {
		t.Errorf("page range not constrained: %v", gotArgs)
	}
	if !strings.HasSuffix(path, "page-0003.png") {
		t.Errorf("unexpected output path %q", path)
	}
}
