package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no occurrence exists for the given event id.
	ErrNotFound = errors.New("occurrence not found")
)

// Config configures the interval store.
//
// Driver values:
//   - "sqlite": SQLite database file (default when Path is set)
//   - "postgres": PostgreSQL via pgx; Path holds the DSN
//   - "memory": in-process store, not durable
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Occurrence is one scheduled recording booking as persisted in the
// interval store. Times are UTC instants; End must be after Start.
//
// WorkflowProperties and CaptureAgentProperties are stored as JSON blobs;
// map iteration order is never significant.
type Occurrence struct {
	EventID string
	Org     string
	AgentID string

	Start time.Time
	End   time.Time

	// Source records booking provenance (single vs. recurrence batch).
	// Immutable once set at creation.
	Source string

	Presenters []string

	RecordingState string
	LastHeard      time.Time // zero when no heartbeat was ever received

	LastModified time.Time
	Checksum     string

	WorkflowProperties     map[string]string
	CaptureAgentProperties map[string]string
}

// Filter narrows Search results. Zero-valued fields are ignored.
type Filter struct {
	AgentID    string
	StartsFrom time.Time
	StartsTo   time.Time
	EndFrom    time.Time
	EndBefore  time.Time
}

func (f Filter) matches(o Occurrence) bool {
	if f.AgentID != "" && o.AgentID != f.AgentID {
		return false
	}
	if !f.StartsFrom.IsZero() && o.Start.Before(f.StartsFrom) {
		return false
	}
	if !f.StartsTo.IsZero() && o.Start.After(f.StartsTo) {
		return false
	}
	if !f.EndFrom.IsZero() && o.End.Before(f.EndFrom) {
		return false
	}
	if !f.EndBefore.IsZero() && !o.End.Before(f.EndBefore) {
		return false
	}
	return true
}
