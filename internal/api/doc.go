// Package api defines wire-format types for the IPC and HTTP layers and
// serves the kiosk's read-only HTTP surface.
//
// # Key Types
//
// DaemonStatus: daemon running state, pipeline counters, reader health, and
// dependency availability.
//
// PresenceView: who is present right now plus the enter counters, with
// display names resolved through the directory.
//
// # Server
//
// Server exposes /api/status, /api/presence, /api/history, /metrics, and
// /api/events. The events endpoint is a websocket feed of committed toggles
// for signage displays; clients only receive, anything they send is ignored.
//
// DTOs use camelCase JSON tags for browser consumers. Timestamps use RFC3339
// with milliseconds.
package api
