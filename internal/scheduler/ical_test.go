package scheduler

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func TestCalendarFeed(t *testing.T) {
	e := newTestEnv(t, Config{})
	ctx := context.Background()
	p := testPrincipal()

	mustCreate(t, e, testCreate("e1", "room-1", base, time.Hour))

	feed, err := e.svc.Calendar(ctx, p, CalendarQuery{AgentID: "room-1"})
	if err != nil {
		t.Fatalf("Calendar: %v", err)
	}
	for _, want := range []string{"BEGIN:VCALENDAR", "BEGIN:VEVENT", "UID:e1", "SUMMARY:Lecture", "LOCATION:room-1", "ATTACH"} {
		if !strings.Contains(feed, want) {
			t.Fatalf("feed missing %q:\n%s", want, feed)
		}
	}

	// The agent properties attachment is base64 of key=value lines. Unfold
	// the serialized feed before matching: long lines wrap per RFC 5545.
	row, err := e.store.Get(ctx, p.Org, "e1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(propertiesToString(row.CaptureAgentProperties)))
	unfolded := strings.ReplaceAll(strings.ReplaceAll(feed, "\r\n ", ""), "\n ", "")
	if !strings.Contains(unfolded, encoded) {
		t.Fatalf("feed missing encoded agent properties:\n%s", feed)
	}
}

func TestCalendarFiltersSeries(t *testing.T) {
	e := newTestEnv(t, Config{})
	ctx := context.Background()
	p := testPrincipal()

	mustCreate(t, e, testCreate("in", "room-1", base, time.Hour))
	other := testCreate("out", "room-1", base.Add(2*time.Hour), time.Hour)
	other.Package.Series = "series-2"
	mustCreate(t, e, other)

	feed, err := e.svc.Calendar(ctx, p, CalendarQuery{AgentID: "room-1", SeriesID: "series-1"})
	if err != nil {
		t.Fatalf("Calendar: %v", err)
	}
	if !strings.Contains(feed, "UID:in") {
		t.Fatal("matching event missing from feed")
	}
	if strings.Contains(feed, "UID:out") {
		t.Fatal("other series leaked into feed")
	}
}

func TestCalendarCutoff(t *testing.T) {
	e := newTestEnv(t, Config{})
	ctx := context.Background()
	p := testPrincipal()

	mustCreate(t, e, testCreate("near", "room-1", base, time.Hour))
	mustCreate(t, e, testCreate("far", "room-1", base.AddDate(0, 2, 0), time.Hour))

	feed, err := e.svc.Calendar(ctx, p, CalendarQuery{AgentID: "room-1", Cutoff: base.AddDate(0, 1, 0)})
	if err != nil {
		t.Fatalf("Calendar: %v", err)
	}
	if !strings.Contains(feed, "UID:near") || strings.Contains(feed, "UID:far") {
		t.Fatalf("cutoff not applied:\n%s", feed)
	}
}

func TestCalendarSkipsEventsWithoutSnapshot(t *testing.T) {
	e := newTestEnv(t, Config{})
	ctx := context.Background()
	p := testPrincipal()

	mustCreate(t, e, testCreate("ok", "room-1", base, time.Hour))

	// An orphaned row without a snapshot must not break the whole feed.
	broken := testCreate("broken", "room-1", base.Add(2*time.Hour), time.Hour)
	row, _ := e.store.Get(ctx, p.Org, "ok")
	row.EventID = "broken"
	row.Start = broken.Start
	row.End = broken.End
	if err := e.store.Upsert(ctx, row); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	feed, err := e.svc.Calendar(ctx, p, CalendarQuery{AgentID: "room-1"})
	if err != nil {
		t.Fatalf("Calendar: %v", err)
	}
	if !strings.Contains(feed, "UID:ok") {
		t.Fatal("healthy event missing from feed")
	}
	if strings.Contains(feed, "UID:broken") {
		t.Fatal("snapshotless event rendered")
	}
}
