package presence

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"
)

// DayLayout formats the keys of State.DailyEnters.
const DayLayout = "2006-01-02"

const stateVersion = 2

var dayKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// State is the persisted presence record.
type State struct {
	Version     int              `json:"version"`
	Present     []string         `json:"present"`
	TotalEnters int64            `json:"total_enters"`
	DailyEnters map[string]int64 `json:"daily_enters"`
	UpdatedAt   time.Time        `json:"updated_at,omitzero"`
}

// IsPresent reports whether id is currently in the present set.
func (s State) IsPresent(id string) bool {
	return slices.Contains(s.Present, id)
}

func (s State) clone() State {
	out := State{
		Version:     s.Version,
		TotalEnters: s.TotalEnters,
		UpdatedAt:   s.UpdatedAt,
		Present:     slices.Clone(s.Present),
		DailyEnters: make(map[string]int64, len(s.DailyEnters)+1),
	}
	maps.Copy(out.DailyEnters, s.DailyEnters)
	if out.Present == nil {
		out.Present = []string{}
	}
	return out
}

func emptyState() State {
	return State{Version: stateVersion, Present: []string{}, DailyEnters: map[string]int64{}}
}

// decodeState accepts the current layout and the flat legacy layout written by
// the first kiosk release:
//
//	{"entrants": [...], "all": 12, "2024-05-01": 3}
//
// The boolean result reports whether the legacy layout was detected.
func decodeState(data []byte) (State, bool, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, false, fmt.Errorf("parse state: %w", err)
	}
	if _, ok := raw["entrants"]; ok {
		st, err := decodeLegacy(raw)
		return st, true, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false, fmt.Errorf("parse state: %w", err)
	}
	st = st.clone()
	st.Present = dedupe(st.Present)
	st.Version = stateVersion
	return st, false, nil
}

func decodeLegacy(raw map[string]json.RawMessage) (State, error) {
	st := emptyState()
	if err := json.Unmarshal(raw["entrants"], &st.Present); err != nil {
		return State{}, fmt.Errorf("parse legacy entrants: %w", err)
	}
	if st.Present == nil {
		st.Present = []string{}
	}
	st.Present = dedupe(st.Present)
	if all, ok := raw["all"]; ok {
		if err := json.Unmarshal(all, &st.TotalEnters); err != nil {
			return State{}, fmt.Errorf("parse legacy total: %w", err)
		}
	}
	for key, value := range raw {
		if !dayKeyPattern.MatchString(key) {
			continue
		}
		var count int64
		if err := json.Unmarshal(value, &count); err != nil {
			return State{}, fmt.Errorf("parse legacy day %s: %w", key, err)
		}
		st.DailyEnters[key] = count
	}
	return st, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if out == nil {
		out = []string{}
	}
	return out
}
