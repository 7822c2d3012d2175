// Package pipeline runs the single consumer loop that turns queued
// identifications into presence changes and greetings.
//
// For every item the coordinator resolves the profile, toggles presence,
// records and publishes the change, and then blocks on greeting playback
// before taking the next item. It is the only caller of presence.Store.Toggle.
// Failures are logged and the item is dropped: processing is at-most-once.
package pipeline
