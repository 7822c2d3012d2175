// Package directory maps normalized identifiers to member profiles.
//
// Member numbers (7 characters) and card serials (16 characters) each map to a
// canonical member id, which in turn carries the greeting name and avatar.
// Lookups are never cached: every resolution reads the backing store so
// directory edits take effect on the next identification.
package directory
