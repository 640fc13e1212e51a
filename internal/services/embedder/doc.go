// Package embedder provides the HTTP client for the text embedding backend
// used to vectorize document chunks.
package embedder
