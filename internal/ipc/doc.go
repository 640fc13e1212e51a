// Package ipc provides JSON-RPC daemon control over a Unix domain socket.
// The CLI is the primary consumer; the wire types alias the HTTP API DTOs so
// both surfaces present identical payloads.
package ipc
