// Package ipc exposes the running daemon over JSON-RPC on a Unix socket and
// ships the matching client used by the CLI.
//
// The server depends only on the Backend interface, so the daemon and tests
// can both drive it. Reuse the request/response types here when adding
// endpoints so the CLI and daemon stay wire compatible.
package ipc
