// Package notifications pushes operator alerts to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Only events an operator needs to act on are
// sent: store failures, reader faults and recoveries, daemon start, and the
// manual test event.
package notifications
