package catalog

import (
	"fmt"
	"strings"
	"time"
)

// ItemKind is the closed set of library item types.
type ItemKind string

const (
	KindBook     ItemKind = "book"
	KindDocument ItemKind = "document"
	KindPlan     ItemKind = "plan"
)

// ParseItemKind validates a user-supplied kind string.
func ParseItemKind(value string) (ItemKind, error) {
	kind := ItemKind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case KindBook, KindDocument, KindPlan:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown item kind %q", value)
	}
}

// ItemStatus describes where an item sits in its lifecycle.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusReview     ItemStatus = "review"
	StatusFailed     ItemStatus = "failed"
	StatusPublished  ItemStatus = "published"
)

// ParseItemStatus validates a status string.
func ParseItemStatus(value string) (ItemStatus, error) {
	status := ItemStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusProcessing, StatusReview, StatusFailed, StatusPublished:
		return status, nil
	default:
		return "", fmt.Errorf("unknown item status %q", value)
	}
}

// Step identifies a pipeline step. Steps run in the order returned by
// StepOrder; the OCR steps are conditional and may be skipped.
type Step string

const (
	StepExtractText Step = "extract_text"
	StepOCRLocal    Step = "ocr_local"
	StepOCRCloud    Step = "ocr_cloud"
	StepChunk       Step = "chunk"
	StepEmbed       Step = "embed"
	StepCategorize  Step = "categorize"
	StepComplete    Step = "complete"
)

// StepOrder returns every pipeline step in execution order.
func StepOrder() []Step {
	return []Step{
		StepExtractText,
		StepOCRLocal,
		StepOCRCloud,
		StepChunk,
		StepEmbed,
		StepCategorize,
		StepComplete,
	}
}

// NextStep returns the step after the given one, or "" when the pipeline is
// finished.
func NextStep(step Step) Step {
	order := StepOrder()
	for i, s := range order {
		if s == step && i+1 < len(order) {
			return order[i+1]
		}
	}
	return ""
}

// ParseStep validates a step string.
func ParseStep(value string) (Step, error) {
	step := Step(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range StepOrder() {
		if step == s {
			return step, nil
		}
	}
	return "", fmt.Errorf("unknown step %q", value)
}

// Outcome records how a step execution ended in the processing log.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeCompleted Outcome = "completed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// DerivativeKind identifies the type of a cached derivative artifact.
type DerivativeKind string

const (
	DerivativeTextLayer DerivativeKind = "text_layer"
	DerivativeOCRText   DerivativeKind = "ocr_text"
	DerivativeThumbnail DerivativeKind = "thumbnail"
)

// OCRMethod records how page text was obtained.
type OCRMethod string

const (
	OCRMethodNative OCRMethod = "native"
	OCRMethodLocal  OCRMethod = "local"
	OCRMethodCloud  OCRMethod = "cloud"
)

// Item is a library item: one logical book, document, or plan. Kind-specific
// metadata lives in DetailsJSON as a JSON object keyed by the kind.
type Item struct {
	ID           string
	Kind         ItemKind
	Title        string
	Summary      string
	Author       string
	Year         int
	Status       ItemStatus
	Confidence   int
	Completeness int
	DetailsJSON  string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SourceFile is an uploaded original, stored content-addressed by SHA-256.
type SourceFile struct {
	ID           string
	ItemID       string
	OriginalName string
	RelativePath string
	ContentHash  string
	SizeBytes    int64
	MediaType    string
	CreatedAt    time.Time
}

// Derivative is a cached artifact produced from a source file. The tuple
// (source file, kind, generator version, input hash) is unique: producing the
// same derivative twice yields the first row.
type Derivative struct {
	ID               string
	SourceFileID     string
	Kind             DerivativeKind
	GeneratorName    string
	GeneratorVersion string
	InputHash        string
	RelativePath     string
	ContentHash      string
	SizeBytes        int64
	CreatedAt        time.Time
}

// ProcessingState tracks pipeline position, retries, and the worker lease for
// one item. LockedUntil doubles as the crash-safety mechanism: an expired
// lease means the previous worker died and the item may be reclaimed.
type ProcessingState struct {
	ItemID      string
	CurrentStep Step
	LastRunID   string
	LastError   string
	RetryCount  int
	NextRetryAt *time.Time
	LockedUntil *time.Time
	UpdatedAt   time.Time
}

// LogEntry is an append-only record of one step execution. InputHash is the
// content hash of the source the step consumed, Cost an estimate of external
// spend (cloud OCR), and RetryCount the attempt counter at execution time.
type LogEntry struct {
	ID               int64
	ItemID           string
	RunID            string
	Step             Step
	Outcome          Outcome
	Message          string
	ProcessorName    string
	ProcessorVersion string
	DurationMS       int64
	InputHash        string
	Cost             float64
	RetryCount       int
	CreatedAt        time.Time
}

// ReviewEntry is an open or resolved escalation to a human reviewer. At most
// one open entry exists per item. SnapshotJSON freezes the item's extracted
// metadata as it stood when the escalation was opened, so reviewers see what
// the pipeline produced even if the item changes afterwards.
type ReviewEntry struct {
	ID           int64
	ItemID       string
	Reason       string
	SnapshotJSON string
	CreatedAt    time.Time
	ReviewedAt   *time.Time
	Resolution   string
	ResolvedBy   string
}

// ExtractedPage is the text of one page of a source file, native or OCR.
type ExtractedPage struct {
	ID           int64
	SourceFileID string
	PageNumber   int
	Text         string
	Method       OCRMethod
	Confidence   int
	CreatedAt    time.Time
}

// Chunk is an embedded slice of an item's text.
type Chunk struct {
	ID            int64
	ItemID        string
	Seq           int
	Text          string
	EmbeddingJSON string
	Model         string
	CreatedAt     time.Time
}

// Category is a subject heading shared across items.
type Category struct {
	ID   int64
	Name string
}

// HealthSummary aggregates item counts for diagnostics.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Review     int
	Failed     int
	Published  int
}
