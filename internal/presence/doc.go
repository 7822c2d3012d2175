// Package presence owns the persisted set of members currently on site and the
// running enter counters.
//
// Store.Toggle is the only mutating operation. It has a single-writer
// contract: exactly one goroutine (the pipeline coordinator) may call it.
// Each call copies the committed state, applies the toggle, writes the full
// state durably (temp file, fsync, rename), and only then publishes the new
// state. A failed write returns ErrPersistence and leaves the committed state
// untouched, so the present set and the counters always move together.
//
// The state file is owned by one process at a time through an advisory lock
// on "<state_file>.lock". Snapshot may be called from any goroutine.
package presence
