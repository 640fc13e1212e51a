// Package api defines the transport DTOs shared by the HTTP API and the IPC
// layer, plus converters from the catalog's storage types.
package api
