// Package services holds shared plumbing for pipeline step implementations:
// the error taxonomy that drives retry-versus-review classification, and
// context annotations (item ID, step, run ID) that logging picks up
// automatically.
//
// Engine clients live in subpackages: pdftext and tesseract shell out to
// local tools, vision, embedder, and classify talk to HTTP backends.
package services
