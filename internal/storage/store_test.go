package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "github.com/Lyx52/opencast/pkg/logx"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := Open(context.Background(), Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "scheduler.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func occurrence(eventID, agentID string, start time.Time, d time.Duration) Occurrence {
	return Occurrence{
		EventID:      eventID,
		Org:          "mh_default_org",
		AgentID:      agentID,
		Start:        start,
		End:          start.Add(d),
		Presenters:   []string{"lecturer"},
		LastModified: start,
		Checksum:     "cs-" + eventID,
		WorkflowProperties: map[string]string{
			"straightToPublishing": "true",
		},
		CaptureAgentProperties: map[string]string{
			"event.location": agentID,
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			want := occurrence("e1", "room-1", base, time.Hour)
			want.RecordingState = "capturing"
			want.LastHeard = base.Add(5 * time.Minute)
			if err := store.Upsert(ctx, want); err != nil {
				t.Fatalf("Upsert: %v", err)
			}

			got, err := store.Get(ctx, "mh_default_org", "e1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
				t.Fatalf("interval = [%v, %v], want [%v, %v]", got.Start, got.End, want.Start, want.End)
			}
			if got.AgentID != "room-1" || got.Checksum != "cs-e1" || got.RecordingState != "capturing" {
				t.Fatalf("row = %+v", got)
			}
			if len(got.Presenters) != 1 || got.Presenters[0] != "lecturer" {
				t.Fatalf("presenters = %v", got.Presenters)
			}
			if got.WorkflowProperties["straightToPublishing"] != "true" {
				t.Fatalf("wf properties = %v", got.WorkflowProperties)
			}
			if !got.LastHeard.Equal(want.LastHeard) {
				t.Fatalf("last heard = %v, want %v", got.LastHeard, want.LastHeard)
			}

			if _, err := store.Get(ctx, "mh_default_org", "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get missing: err = %v, want ErrNotFound", err)
			}
			if _, err := store.Get(ctx, "other_org", "e1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get cross-org: err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			o := occurrence("e1", "room-1", base, time.Hour)
			if err := store.Upsert(ctx, o); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			o.AgentID = "room-2"
			o.Start = base.Add(time.Hour)
			o.End = base.Add(2 * time.Hour)
			if err := store.Upsert(ctx, o); err != nil {
				t.Fatalf("Upsert replace: %v", err)
			}

			got, err := store.Get(ctx, "mh_default_org", "e1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.AgentID != "room-2" || !got.Start.Equal(base.Add(time.Hour)) {
				t.Fatalf("row after replace = %+v", got)
			}
			n, err := store.CountAll(ctx)
			if err != nil || n != 1 {
				t.Fatalf("CountAll = %d, %v; want 1", n, err)
			}
		})
	}
}

func TestStoreSearchFilters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for i, agent := range []string{"room-1", "room-1", "room-2"} {
				o := occurrence(string(rune('a'+i)), agent, base.Add(time.Duration(i)*2*time.Hour), time.Hour)
				if err := store.Upsert(ctx, o); err != nil {
					t.Fatalf("Upsert: %v", err)
				}
			}

			byAgent, err := store.Search(ctx, "mh_default_org", Filter{AgentID: "room-1"})
			if err != nil {
				t.Fatalf("Search by agent: %v", err)
			}
			if len(byAgent) != 2 {
				t.Fatalf("len(byAgent) = %d, want 2", len(byAgent))
			}
			if byAgent[0].EventID != "a" || byAgent[1].EventID != "b" {
				t.Fatalf("order = %s, %s", byAgent[0].EventID, byAgent[1].EventID)
			}

			ended, err := store.Search(ctx, "mh_default_org", Filter{EndBefore: base.Add(3 * time.Hour)})
			if err != nil {
				t.Fatalf("Search ended: %v", err)
			}
			if len(ended) != 1 || ended[0].EventID != "a" {
				t.Fatalf("ended = %+v", ended)
			}

			window, err := store.Search(ctx, "mh_default_org", Filter{
				StartsFrom: base.Add(time.Hour),
				StartsTo:   base.Add(3 * time.Hour),
			})
			if err != nil {
				t.Fatalf("Search window: %v", err)
			}
			if len(window) != 1 || window[0].EventID != "b" {
				t.Fatalf("window = %+v", window)
			}
		})
	}
}

func TestStoreConflicting(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Upsert(ctx, occurrence("booked", "room-1", base, time.Hour)); err != nil {
				t.Fatalf("Upsert: %v", err)
			}

			cases := []struct {
				name       string
				start, end time.Time
				agent      string
				separation time.Duration
				want       int
			}{
				{"overlap", base.Add(30 * time.Minute), base.Add(90 * time.Minute), "room-1", 0, 1},
				{"contained", base.Add(10 * time.Minute), base.Add(20 * time.Minute), "room-1", 0, 1},
				{"back_to_back", base.Add(time.Hour), base.Add(2 * time.Hour), "room-1", 0, 0},
				{"back_to_back_separated", base.Add(time.Hour), base.Add(2 * time.Hour), "room-1", time.Minute, 1},
				{"disjoint", base.Add(3 * time.Hour), base.Add(4 * time.Hour), "room-1", 0, 0},
				{"other_agent", base, base.Add(time.Hour), "room-2", 0, 0},
			}
			for _, tc := range cases {
				got, err := store.Conflicting(ctx, "mh_default_org", tc.agent, tc.start, tc.end, tc.separation)
				if err != nil {
					t.Fatalf("%s: Conflicting: %v", tc.name, err)
				}
				if len(got) != tc.want {
					t.Fatalf("%s: len(conflicts) = %d, want %d", tc.name, len(got), tc.want)
				}
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Upsert(ctx, occurrence("e1", "room-1", base, time.Hour)); err != nil {
				t.Fatalf("Upsert: %v", err)
			}

			existed, err := store.Delete(ctx, "mh_default_org", "e1")
			if err != nil || !existed {
				t.Fatalf("Delete = %v, %v; want true, nil", existed, err)
			}
			existed, err = store.Delete(ctx, "mh_default_org", "e1")
			if err != nil || existed {
				t.Fatalf("second Delete = %v, %v; want false, nil", existed, err)
			}
		})
	}
}

func TestStoreAgentLastModified(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.TouchAgent(ctx, "mh_default_org", "room-1", at); err != nil {
				t.Fatalf("TouchAgent: %v", err)
			}
			if err := store.TouchAgent(ctx, "mh_default_org", "room-1", at.Add(time.Minute)); err != nil {
				t.Fatalf("TouchAgent update: %v", err)
			}

			stamps, err := store.LastModifiedByAgent(ctx, "mh_default_org")
			if err != nil {
				t.Fatalf("LastModifiedByAgent: %v", err)
			}
			if got := stamps["room-1"]; !got.Equal(at.Add(time.Minute)) {
				t.Fatalf("stamp = %v, want %v", got, at.Add(time.Minute))
			}
		})
	}
}

func TestStoreOrgs(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			a := occurrence("e1", "room-1", base, time.Hour)
			b := occurrence("e2", "room-1", base, time.Hour)
			b.Org = "second_org"
			for _, o := range []Occurrence{a, b} {
				if err := store.Upsert(ctx, o); err != nil {
					t.Fatalf("Upsert: %v", err)
				}
			}

			orgs, err := store.Orgs(ctx)
			if err != nil {
				t.Fatalf("Orgs: %v", err)
			}
			if len(orgs) != 2 || orgs[0] != "mh_default_org" || orgs[1] != "second_org" {
				t.Fatalf("orgs = %v", orgs)
			}
		})
	}
}
