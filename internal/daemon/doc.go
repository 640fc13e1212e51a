// Package daemon hosts the long-running archivist process: it enforces
// single-instance execution, runs the pipeline dispatcher, and exposes the
// HTTP API alongside the IPC control surface.
package daemon
