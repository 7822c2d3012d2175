// Command kiosk runs the presence daemon and administers it.
//
// `kiosk run` hosts the daemon in the foreground. The remaining commands talk
// to a running daemon over its IPC socket (status, enter, test-notify, stop)
// or work on the data files directly (present when offline, history, member,
// config).
package main
