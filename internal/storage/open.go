package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "github.com/Lyx52/opencast/pkg/logx"
)

// Store is the interval store API used by the scheduler core.
//
// All reads and writes are scoped to an organization. Implementations
// must treat the (org, event id) pair as the row key.
type Store interface {
	// Get returns the occurrence for eventID or ErrNotFound.
	Get(ctx context.Context, org, eventID string) (Occurrence, error)

	// Search returns occurrences matching the filter, ordered by start time.
	Search(ctx context.Context, org string, f Filter) ([]Occurrence, error)

	// Conflicting returns occurrences on agentID whose interval, widened by
	// separation on both ends, intersects [start, end). Ordered by start.
	Conflicting(ctx context.Context, org, agentID string, start, end time.Time, separation time.Duration) ([]Occurrence, error)

	// Upsert writes the full row for (o.Org, o.EventID).
	Upsert(ctx context.Context, o Occurrence) error

	// Delete removes the row and reports whether it existed.
	Delete(ctx context.Context, org, eventID string) (bool, error)

	// CountAll returns the number of occurrences across all organizations.
	CountAll(ctx context.Context) (int64, error)

	// Orgs lists the organizations that have at least one occurrence.
	Orgs(ctx context.Context) ([]string, error)

	// LastModifiedByAgent returns the per-agent calendar last-modified stamps.
	LastModifiedByAgent(ctx context.Context, org string) (map[string]time.Time, error)

	// TouchAgent marks the agent's calendar feed as modified at the given time.
	TouchAgent(ctx context.Context, org, agentID string, at time.Time) error

	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "pgx":
		return openPostgres(ctx, cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
