package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFindConflicts(t *testing.T) {
	e := newTestEnv(t, Config{})
	ctx := context.Background()
	p := testPrincipal()

	mustCreate(t, e, testCreate("booked", "room-1", base, time.Hour))

	found, err := e.svc.FindConflicts(ctx, p, "room-1", base.Add(30*time.Minute), base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("FindConflicts: %v", err)
	}
	if len(found) != 1 || found[0].EventID != "booked" {
		t.Fatalf("found = %+v", found)
	}

	found, err = e.svc.FindConflicts(ctx, p, "room-1", base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil || len(found) != 0 {
		t.Fatalf("back-to-back: found = %+v, %v", found, err)
	}

	var verr *ValidationError
	if _, err := e.svc.FindConflicts(ctx, p, "", base, base.Add(time.Hour)); !errors.As(err, &verr) {
		t.Fatalf("empty agent: err = %v, want ValidationError", err)
	}
	if _, err := e.svc.FindConflicts(ctx, p, "room-1", base, base); !errors.As(err, &verr) {
		t.Fatalf("empty interval: err = %v, want ValidationError", err)
	}
}

func TestFindConflictsRecurringDeduplicates(t *testing.T) {
	e := newTestEnv(t, Config{})
	ctx := context.Background()
	p := testPrincipal()

	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)

	// One long-running booking spanning two daily periods.
	long := testCreate("marathon", "room-1", start.Add(30*time.Minute), 24*time.Hour)
	mustCreate(t, e, long)

	found, err := e.svc.FindConflictsRecurring(ctx, p, "room-1", "FREQ=DAILY", start, start.AddDate(0, 0, 3), time.Hour, time.UTC)
	if err != nil {
		t.Fatalf("FindConflictsRecurring: %v", err)
	}
	if len(found) != 1 || found[0].EventID != "marathon" {
		t.Fatalf("found = %+v, want marathon once", found)
	}
}

func TestFindConflictsRecurringClearWindow(t *testing.T) {
	e := newTestEnv(t, Config{})
	ctx := context.Background()
	p := testPrincipal()

	start := time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC)
	// Booked in the afternoons; the morning rule is clear.
	mustCreate(t, e, testCreate("afternoon", "room-1", start.Add(4*time.Hour), time.Hour))

	found, err := e.svc.FindConflictsRecurring(ctx, p, "room-1", "FREQ=DAILY", start, start.AddDate(0, 0, 2), time.Hour, time.UTC)
	if err != nil || len(found) != 0 {
		t.Fatalf("found = %+v, %v; want none", found, err)
	}
}
