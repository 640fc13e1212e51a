// Package pipeline runs the ingestion steps for catalog items.
//
// Each item moves through a fixed step order: text extraction, conditional
// local and cloud OCR, chunking, embedding, categorization, and completion.
// A dispatcher claims items with a database lease, runs the current step on a
// worker pool, and records every outcome in the append-only processing log.
// Failures are classified: transient errors retry with exponential backoff,
// permanent errors and exhausted retries escalate to human review.
package pipeline
