// Package source contains the producers that feed the ingest queue: the
// console for typed member numbers and the card reader for touched cards.
//
// Every adapter normalizes its input before enqueueing, logs and skips
// malformed input, and blocks only on its own medium. Supervise keeps an
// adapter alive across errors and panics so that a failing medium never
// reaches the coordinator.
package source
