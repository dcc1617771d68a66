package index

import (
	"context"
	"sync"
)

// Memory is an in-process index adapter. The read helpers make it usable as
// a test double for the scheduler; production deployments plug a real
// search backend in behind the Index interface.
type Memory struct {
	mu sync.RWMutex
	// entries[org][eventID]
	entries map[string]map[string]Entry
}

// NewMemory returns an in-process index adapter.
func NewMemory() *Memory {
	return &Memory{entries: map[string]map[string]Entry{}}
}

func (m *Memory) Upsert(ctx context.Context, org, eventID string, update UpdateFunc) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, found := m.entries[org][eventID]
	if !found {
		cur = Entry{EventID: eventID, Org: org}
	}
	next, err := update(cur, found)
	if err != nil {
		return err
	}
	next.EventID = eventID
	next.Org = org
	if m.entries[org] == nil {
		m.entries[org] = map[string]Entry{}
	}
	m.entries[org][eventID] = next
	return nil
}

func (m *Memory) Delete(ctx context.Context, org, eventID string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries[org], eventID)
	return nil
}

func (m *Memory) BulkUpsert(ctx context.Context, entries []Entry) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if m.entries[e.Org] == nil {
			m.entries[e.Org] = map[string]Entry{}
		}
		m.entries[e.Org][e.EventID] = e
	}
	return nil
}

// Get returns the stored entry, if any.
func (m *Memory) Get(org, eventID string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[org][eventID]
	return e, ok
}

// Len returns the number of entries for an organization.
func (m *Memory) Len(org string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[org])
}
