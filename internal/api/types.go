package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Item describes a library item in a transport-friendly format.
type Item struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Title        string          `json:"title"`
	Summary      string          `json:"summary,omitempty"`
	Author       string          `json:"author,omitempty"`
	Year         int             `json:"year,omitempty"`
	Status       string          `json:"status"`
	Confidence   int             `json:"confidence"`
	Completeness int             `json:"completeness"`
	Categories   []string        `json:"categories,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CurrentStep  string          `json:"currentStep,omitempty"`
	RetryCount   int             `json:"retryCount,omitempty"`
	LastError    string          `json:"lastError,omitempty"`
	IsLocked     bool            `json:"isLocked"`
	NextRetryAt  string          `json:"nextRetryAt,omitempty"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
}

// SourceFile describes an uploaded original.
type SourceFile struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	RelativePath string `json:"relativePath"`
	ContentHash  string `json:"contentHash"`
	SizeBytes    int64  `json:"sizeBytes"`
	MediaType    string `json:"mediaType,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// Derivative describes a cached artifact produced from a source file.
type Derivative struct {
	ID               string `json:"id"`
	SourceFileID     string `json:"sourceFileId"`
	Kind             string `json:"kind"`
	GeneratorName    string `json:"generatorName"`
	GeneratorVersion string `json:"generatorVersion"`
	RelativePath     string `json:"relativePath"`
	SizeBytes        int64  `json:"sizeBytes"`
	CreatedAt        string `json:"createdAt,omitempty"`
}

// LogEntry describes one processing log record.
type LogEntry struct {
	ID               int64  `json:"id"`
	RunID            string `json:"runId"`
	Step             string `json:"step"`
	Outcome          string `json:"outcome"`
	Message          string `json:"message,omitempty"`
	ProcessorName    string  `json:"processorName,omitempty"`
	ProcessorVersion string  `json:"processorVersion,omitempty"`
	DurationMS       int64   `json:"durationMs"`
	InputHash        string  `json:"inputHash,omitempty"`
	Cost             float64 `json:"cost,omitempty"`
	RetryCount       int     `json:"retryCount,omitempty"`
	CreatedAt        string  `json:"createdAt,omitempty"`
}

// ReviewEntry describes one escalation to a human reviewer. Snapshot carries
// the item metadata as it stood when the escalation was opened.
type ReviewEntry struct {
	ID         int64           `json:"id"`
	ItemID     string          `json:"itemId"`
	Reason     string          `json:"reason"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
	CreatedAt  string          `json:"createdAt,omitempty"`
	ReviewedAt string          `json:"reviewedAt,omitempty"`
	Resolution string          `json:"resolution,omitempty"`
	ResolvedBy string          `json:"resolvedBy,omitempty"`
}

// ItemDetail bundles everything known about one item.
type ItemDetail struct {
	Item        Item         `json:"item"`
	SourceFiles []SourceFile `json:"sourceFiles"`
	Derivatives []Derivative `json:"derivatives,omitempty"`
	Log         []LogEntry   `json:"log,omitempty"`
	Reviews     []ReviewEntry `json:"reviews,omitempty"`
}

// HealthSummary aggregates item counts by status.
type HealthSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Review     int `json:"review"`
	Failed     int `json:"failed"`
	Published  int `json:"published"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool          `json:"running"`
	PID           int           `json:"pid"`
	CatalogDBPath string        `json:"catalogDbPath"`
	StorageDir    string        `json:"storageDir"`
	LockFilePath  string        `json:"lockFilePath"`
	Health        HealthSummary `json:"health"`
	Workers       int           `json:"workers"`
}

// ItemListResponse wraps a collection of items for API responses.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// ItemDetailResponse wraps a single item with its related records.
type ItemDetailResponse struct {
	Detail ItemDetail `json:"detail"`
}

// UploadResponse reports the outcome of an upload.
type UploadResponse struct {
	Item        Item   `json:"item"`
	FileID      string `json:"fileId"`
	ContentHash string `json:"contentHash"`
	IsDuplicate bool   `json:"isDuplicate"`
}

// ReviewListResponse wraps the open review queue.
type ReviewListResponse struct {
	Reviews []ReviewEntry `json:"reviews"`
}
