// Package recurrence expands recurrence rules into concrete capture periods.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrRuleOverlap marks a rule whose generated periods overlap each other.
// Such rules are rejected before any store is consulted.
var ErrRuleOverlap = errors.New("rule periods overlap")

// Period is one concrete capture interval. Times are UTC.
type Period struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two intervals intersect, with the given
// separation added to both ends of p.
func (p Period) Overlaps(other Period, separation time.Duration) bool {
	return p.Start.Add(-separation).Before(other.End) && p.End.Add(separation).After(other.Start)
}

// Expand turns a recurrence rule into the ordered periods it implies within
// [start, end). The rule's reference time is anchored to the window start in
// loc so BYDAY/BYHOUR clauses resolve in the caller's timezone, and every
// generated start is paired with duration.
//
// A rule yielding no periods returns an empty slice and no error. Periods
// that overlap each other fail with ErrRuleOverlap.
func Expand(rule string, start, end time.Time, duration time.Duration, loc *time.Location) ([]Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", duration)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("window end %s is not after start %s", end, start)
	}

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parse rule %q: %w", rule, err)
	}
	r.DTStart(start.In(loc))

	starts := r.Between(start.In(loc), end.In(loc), true)

	periods := make([]Period, 0, len(starts))
	for _, t := range starts {
		if !t.Before(end.In(loc)) {
			// Between is end-inclusive; the window is not.
			continue
		}
		periods = append(periods, Period{Start: t.UTC(), End: t.Add(duration).UTC()})
	}

	if err := checkOverlap(periods); err != nil {
		return nil, err
	}
	return periods, nil
}

// checkOverlap sorts a copy by start and verifies no period begins before
// the previous one ends.
func checkOverlap(periods []Period) error {
	if len(periods) < 2 {
		return nil
	}
	sorted := append([]Period(nil), periods...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })
	prev := sorted[0]
	for _, cur := range sorted[1:] {
		if cur.Start.Before(prev.End) {
			return fmt.Errorf("%w: %s < %s", ErrRuleOverlap, cur.Start.Format(time.RFC3339), prev.End.Format(time.RFC3339))
		}
		prev = cur
	}
	return nil
}
