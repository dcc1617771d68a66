package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/Lyx52/opencast/internal/recurrence"
	"github.com/Lyx52/opencast/internal/storage"
)

// conflictsForInterval asks the store for overlapping bookings on the agent,
// widened by the configured minimum separation, excluding the event itself
// so an update does not collide with its own row.
func (s *Service) conflictsForInterval(ctx context.Context, p Principal, agentID string, start, end time.Time, excludeEventID string) ([]storage.Occurrence, error) {
	found, err := s.store.Conflicting(ctx, p.Org, agentID, start, end, s.config().MinSeparation)
	if err != nil {
		return nil, storageErr("search conflicting events", err)
	}
	if excludeEventID == "" {
		return found, nil
	}
	out := found[:0]
	for _, o := range found {
		if o.EventID != excludeEventID {
			out = append(out, o)
		}
	}
	return out, nil
}

// FindConflicts returns the bookings on agentID that overlap the given
// interval, honoring the minimum separation. An empty result means the
// interval is bookable.
func (s *Service) FindConflicts(ctx context.Context, p Principal, agentID string, start, end time.Time) ([]storage.Occurrence, error) {
	if agentID == "" {
		return nil, validationErr("agentId", "must not be empty")
	}
	if !end.After(start) {
		return nil, validationErr("endTime", "must be after start time")
	}
	return s.conflictsForInterval(ctx, p, agentID, start, end, "")
}

// FindConflictsRecurring expands the rule and reports the combined
// conflicts of all resulting periods.
func (s *Service) FindConflictsRecurring(ctx context.Context, p Principal, agentID, rule string, start, end time.Time, duration time.Duration, tz *time.Location) ([]storage.Occurrence, error) {
	if agentID == "" {
		return nil, validationErr("agentId", "must not be empty")
	}
	periods, err := recurrence.Expand(rule, start, end, duration, tz)
	if err != nil {
		return nil, ruleErr(rule, err)
	}
	return s.conflictsForPeriods(ctx, p, agentID, periods)
}

// conflictsForPeriods unions the conflicts of every period into one report,
// deduplicated by event id and sorted by start, so a long-running booking
// that collides with several periods appears once.
func (s *Service) conflictsForPeriods(ctx context.Context, p Principal, agentID string, periods []recurrence.Period) ([]storage.Occurrence, error) {
	seen := map[string]struct{}{}
	var out []storage.Occurrence
	for _, period := range periods {
		found, err := s.conflictsForInterval(ctx, p, agentID, period.Start, period.End, "")
		if err != nil {
			return nil, err
		}
		for _, o := range found {
			if _, dup := seen[o.EventID]; dup {
				continue
			}
			seen[o.EventID] = struct{}{}
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
