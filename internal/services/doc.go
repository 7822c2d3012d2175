// Package services defines shared utilities consumed by the pipeline components
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp request IDs, sources, identifiers, and step
//     names for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified with errors.Is regardless of which component raised them.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability) stays uniform across the daemon.
package services
