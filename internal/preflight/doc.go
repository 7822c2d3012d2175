// Package preflight provides readiness checks for the paths, programs, and
// services the kiosk depends on.
//
// These checks run in two contexts:
//   - The daemon logs RunAll results at startup so a misconfigured kiosk is
//     obvious before the first card touch.
//   - The CLI "kiosk status" command shows them when the daemon is offline.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
