// Package index defines the search index projection of scheduled events.
//
// The index is a derived view: it must never be treated as the source of
// truth and is fully reconstructable from the interval store plus the
// snapshot archive (see the scheduler's Repopulate).
package index

import (
	"context"
	"time"
)

// Entry is the denormalized projection of one scheduled event.
type Entry struct {
	EventID string
	Org     string

	AgentID    string
	Start      time.Time
	End        time.Time
	Presenters []string

	Title  string
	Series string

	Properties map[string]string

	RecordingState string
}

// UpdateFunc receives the current entry (found=false when absent) and
// returns the entry to store.
type UpdateFunc func(e Entry, found bool) (Entry, error)

// Index is the search index API used by the scheduler core.
type Index interface {
	Upsert(ctx context.Context, org, eventID string, update UpdateFunc) error
	Delete(ctx context.Context, org, eventID string) error
	BulkUpsert(ctx context.Context, entries []Entry) error
}
