package ipc

import "kiosk/internal/api"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the daemon status.
type StatusResponse = api.DaemonStatus

// PresenceRequest fetches the present set.
type PresenceRequest struct{}

// PresenceResponse is the present set and counters.
type PresenceResponse = api.PresenceView

// SubmitRequest carries raw manual input, as typed.
type SubmitRequest struct {
	Input string `json:"input"`
}

// SubmitResponse reports whether the input was queued.
type SubmitResponse struct {
	Accepted   bool   `json:"accepted"`
	Identifier string `json:"identifier,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Message    string `json:"message"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether it was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
