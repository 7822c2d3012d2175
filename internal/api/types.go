package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ItemSummary describes the most recently finished pipeline item.
type ItemSummary struct {
	Identifier string `json:"identifier"`
	Source     string `json:"source"`
	MemberID   string `json:"memberId,omitempty"`
	Action     string `json:"action,omitempty"`
	Dropped    string `json:"dropped,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// PipelineStatus summarizes coordinator state.
type PipelineStatus struct {
	Running    bool         `json:"running"`
	StartedAt  string       `json:"startedAt,omitempty"`
	Processed  int64        `json:"processed"`
	Dropped    int64        `json:"dropped"`
	QueueDepth int          `json:"queueDepth"`
	LastError  string       `json:"lastError,omitempty"`
	LastItem   *ItemSummary `json:"lastItem,omitempty"`
}

// ReaderStatus reports card reader health.
type ReaderStatus struct {
	Enabled   bool   `json:"enabled"`
	Healthy   bool   `json:"healthy"`
	LastFault string `json:"lastFault,omitempty"`
	Hotplug   bool   `json:"hotplug"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StateFile    string             `json:"stateFile"`
	LockFilePath string             `json:"lockFilePath"`
	LogPath      string             `json:"logPath,omitempty"`
	Pipeline     PipelineStatus     `json:"pipeline"`
	Reader       ReaderStatus       `json:"reader"`
	Subscribers  int                `json:"subscribers"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// PresentMember is one identifier currently inside.
type PresentMember struct {
	Identifier  string `json:"identifier"`
	MemberID    string `json:"memberId"`
	DisplayName string `json:"displayName,omitempty"`
}

// PresenceView is the current present set and counters.
type PresenceView struct {
	Day         string           `json:"day"`
	Present     []PresentMember  `json:"present"`
	TotalEnters int64            `json:"totalEnters"`
	TodayEnters int64            `json:"todayEnters"`
	DailyEnters map[string]int64 `json:"dailyEnters"`
	UpdatedAt   string           `json:"updatedAt,omitempty"`
}

// HistoryEntry is one recorded toggle.
type HistoryEntry struct {
	ID         int64  `json:"id"`
	Identifier string `json:"identifier"`
	MemberID   string `json:"memberId,omitempty"`
	Action     string `json:"action"`
	Source     string `json:"source"`
	Day        string `json:"day"`
	OccurredAt string `json:"occurredAt"`
	RequestID  string `json:"requestId,omitempty"`
}

// HistoryResponse wraps recent toggles.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}
