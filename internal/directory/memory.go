package directory

import (
	"context"
	"sync"

	"kiosk/internal/identifier"
)

// MemoryDirectory is an in-process Directory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	members  map[string]Profile
	links    map[identifier.ID]string
	failWith error
}

// NewMemoryDirectory returns an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		members: make(map[string]Profile),
		links:   make(map[identifier.ID]string),
	}
}

// Add registers profile and links each identifier to it.
func (m *MemoryDirectory) Add(profile Profile, ids ...identifier.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[profile.MemberID] = profile
	for _, id := range ids {
		m.links[id] = profile.MemberID
	}
}

// FailWith makes every subsequent Lookup return err. Pass nil to clear.
func (m *MemoryDirectory) FailWith(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *MemoryDirectory) Lookup(_ context.Context, id identifier.ID) (Profile, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return Profile{}, false, m.failWith
	}
	memberID, ok := m.links[id]
	if !ok {
		return Profile{}, false, nil
	}
	profile, ok := m.members[memberID]
	if !ok {
		return Profile{MemberID: memberID}, true, nil
	}
	return profile, true, nil
}
