package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore keeps everything in process memory. It is the reference
// implementation for store semantics and backs most tests.
type memoryStore struct {
	mu sync.RWMutex

	// rows[org][eventID]
	rows map[string]map[string]Occurrence
	// lastModified[org][agentID]
	lastModified map[string]map[string]time.Time
}

// NewMemory returns a non-durable in-process store.
func NewMemory() Store {
	return &memoryStore{
		rows:         map[string]map[string]Occurrence{},
		lastModified: map[string]map[string]time.Time{},
	}
}

func (s *memoryStore) Get(ctx context.Context, org, eventID string) (Occurrence, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.rows[org][eventID]
	if !ok {
		return Occurrence{}, ErrNotFound
	}
	return copyOccurrence(o), nil
}

func (s *memoryStore) Search(ctx context.Context, org string, f Filter) ([]Occurrence, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Occurrence
	for _, o := range s.rows[org] {
		if f.matches(o) {
			out = append(out, copyOccurrence(o))
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *memoryStore) Conflicting(ctx context.Context, org, agentID string, start, end time.Time, separation time.Duration) ([]Occurrence, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Occurrence
	for _, o := range s.rows[org] {
		if o.AgentID != agentID {
			continue
		}
		if o.Start.Add(-separation).Before(end) && o.End.Add(separation).After(start) {
			out = append(out, copyOccurrence(o))
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *memoryStore) Upsert(ctx context.Context, o Occurrence) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows[o.Org] == nil {
		s.rows[o.Org] = map[string]Occurrence{}
	}
	s.rows[o.Org][o.EventID] = copyOccurrence(o)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, org, eventID string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[org][eventID]; !ok {
		return false, nil
	}
	delete(s.rows[org], eventID)
	return true, nil
}

func (s *memoryStore) CountAll(ctx context.Context) (int64, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rows := range s.rows {
		n += int64(len(rows))
	}
	return n, nil
}

func (s *memoryStore) Orgs(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for org, rows := range s.rows {
		if len(rows) > 0 {
			out = append(out, org)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStore) LastModifiedByAgent(ctx context.Context, org string) (map[string]time.Time, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.lastModified[org]))
	for agent, at := range s.lastModified[org] {
		out[agent] = at
	}
	return out, nil
}

func (s *memoryStore) TouchAgent(ctx context.Context, org, agentID string, at time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastModified[org] == nil {
		s.lastModified[org] = map[string]time.Time{}
	}
	s.lastModified[org][agentID] = at
	return nil
}

func (s *memoryStore) Close() error { return nil }

func sortByStart(out []Occurrence) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].Start.Before(out[j].Start)
	})
}

func copyOccurrence(o Occurrence) Occurrence {
	cp := o
	cp.Presenters = append([]string(nil), o.Presenters...)
	cp.WorkflowProperties = copyMap(o.WorkflowProperties)
	cp.CaptureAgentProperties = copyMap(o.CaptureAgentProperties)
	return cp
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
