// Package tesseract wraps the local OCR toolchain: pdftoppm renders PDF pages
// to images and tesseract recognizes them, with per-word confidence parsed
// from TSV output so callers can decide whether to escalate to cloud OCR.
package tesseract
