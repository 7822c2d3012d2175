package api

import (
	"context"
	"time"

	"kiosk/internal/deps"
	"kiosk/internal/directory"
	"kiosk/internal/history"
	"kiosk/internal/identifier"
	"kiosk/internal/pipeline"
	"kiosk/internal/presence"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromPipelineStatus converts coordinator status into its transport form.
func FromPipelineStatus(status pipeline.Status) PipelineStatus {
	out := PipelineStatus{
		Running:    status.Running,
		StartedAt:  formatTime(status.StartedAt),
		Processed:  status.Processed,
		Dropped:    status.Dropped,
		QueueDepth: status.QueueDepth,
		LastError:  status.LastError,
	}
	if item := status.LastItem; item != nil {
		out.LastItem = &ItemSummary{
			Identifier: item.Identifier,
			Source:     item.Source,
			MemberID:   item.MemberID,
			Action:     item.Action,
			Dropped:    item.Dropped,
			FinishedAt: formatTime(item.FinishedAt),
		}
	}
	return out
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, dep := range statuses {
		out = append(out, DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		})
	}
	return out
}

// FromPresence builds the presence view for day, resolving each present
// identifier through dir. Lookup failures fall back to the identifier.
func FromPresence(ctx context.Context, state presence.State, day string, dir directory.Directory) PresenceView {
	view := PresenceView{
		Day:         day,
		Present:     make([]PresentMember, 0, len(state.Present)),
		TotalEnters: state.TotalEnters,
		TodayEnters: state.DailyEnters[day],
		DailyEnters: make(map[string]int64, len(state.DailyEnters)),
		UpdatedAt:   formatTime(state.UpdatedAt),
	}
	for k, v := range state.DailyEnters {
		view.DailyEnters[k] = v
	}
	for _, raw := range state.Present {
		id := identifier.ID(raw)
		profile := directory.Resolve(ctx, dir, id, nil)
		view.Present = append(view.Present, PresentMember{
			Identifier:  raw,
			MemberID:    profile.MemberID,
			DisplayName: profile.DisplayName,
		})
	}
	return view
}

// FromHistory converts recorded toggles.
func FromHistory(entries []history.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:         e.ID,
			Identifier: e.Identifier,
			MemberID:   e.MemberID,
			Action:     e.Action,
			Source:     e.Source,
			Day:        e.Day,
			OccurredAt: formatTime(e.OccurredAt),
			RequestID:  e.RequestID,
		})
	}
	return out
}
