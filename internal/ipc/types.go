package ipc

import "archivist/internal/api"

// PingRequest checks daemon liveness.
type PingRequest struct{}

// PingResponse reports daemon liveness.
type PingResponse struct {
	PID int `json:"pid"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// Item mirrors the HTTP API item DTO for IPC callers.
type Item = api.Item

// ItemDetail mirrors the HTTP API detail DTO.
type ItemDetail = api.ItemDetail

// ReviewEntry mirrors the HTTP API review DTO.
type ReviewEntry = api.ReviewEntry

// StatusResponse represents combined daemon/pipeline status information.
type StatusResponse struct {
	Running       bool              `json:"running"`
	PID           int               `json:"pid"`
	CatalogDBPath string            `json:"catalog_db_path"`
	StorageDir    string            `json:"storage_dir"`
	LockPath      string            `json:"lock_path"`
	Workers       int               `json:"workers"`
	Health        api.HealthSummary `json:"health"`
}

// UploadRequest ingests a local file into the library.
type UploadRequest struct {
	Kind  string `json:"kind"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

// UploadResponse reports the ingest outcome.
type UploadResponse struct {
	Item        Item   `json:"item"`
	ContentHash string `json:"content_hash"`
	IsDuplicate bool   `json:"is_duplicate"`
}

// ItemListRequest filters item listing by status.
type ItemListRequest struct {
	Statuses []string `json:"statuses"`
}

// ItemListResponse contains catalog items.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// ItemDescribeRequest fetches a single item with its related records.
type ItemDescribeRequest struct {
	ID string `json:"id"`
}

// ItemDescribeResponse contains one item's full detail.
type ItemDescribeResponse struct {
	Detail ItemDetail `json:"detail"`
}

// ItemKickRequest forces an item to be claimed on the next poll.
type ItemKickRequest struct {
	ID string `json:"id"`
}

// ItemKickResponse acknowledges the kick.
type ItemKickResponse struct {
	Kicked bool `json:"kicked"`
}

// RetryFailedRequest requeues failed items. Empty list means all failed items.
type RetryFailedRequest struct {
	IDs []string `json:"ids"`
}

// RetryFailedResponse reports the number of requeued items.
type RetryFailedResponse struct {
	Updated int `json:"updated"`
}

// ReviewListRequest fetches the open review queue.
type ReviewListRequest struct{}

// ReviewListResponse contains unresolved review entries.
type ReviewListResponse struct {
	Reviews []ReviewEntry `json:"reviews"`
}

// ReviewResolveRequest closes a review entry with a decision.
type ReviewResolveRequest struct {
	ReviewID   int64  `json:"review_id"`
	Action     string `json:"action"`
	Note       string `json:"note"`
	ResolvedBy string `json:"resolved_by"`
}

// ReviewResolveResponse acknowledges the resolution.
type ReviewResolveResponse struct {
	Resolved bool `json:"resolved"`
}
