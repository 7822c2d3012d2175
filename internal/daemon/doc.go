// Package daemon coordinates the long-running kiosk process.
//
// It wires the presence store, the member directory, the greeting announcer,
// and the input sources into a single lifecycle with flock-based locking to
// prevent multiple instances. While running it owns the ingest queue, the
// single pipeline coordinator, the reader hotplug watcher, and the HTTP API,
// and it answers status, presence, and manual entry requests for the IPC and
// HTTP surfaces.
//
// Keep orchestration here: identifier handling lives in source and pipeline
// while the daemon focuses on startup, shutdown, and reporting.
package daemon
