package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Lyx52/opencast/internal/storage"
)

func TestRepopulate(t *testing.T) {
	e := newTestEnv(t, Config{RepopulateBatch: 10})
	ctx := context.Background()
	p := testPrincipal()

	// Seed the durable stores directly; the index starts empty, as after a
	// process restart.
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("e%02d", i)
		row := storage.Occurrence{
			EventID:      id,
			Org:          p.Org,
			AgentID:      "room-1",
			Start:        base.Add(time.Duration(i) * 2 * time.Hour),
			End:          base.Add(time.Duration(i)*2*time.Hour + time.Hour),
			Presenters:   []string{"lecturer@example.org"},
			LastModified: base,
		}
		if err := e.store.Upsert(ctx, row); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if id == "e13" {
			// One corrupt event: a row without any snapshot.
			continue
		}
		if _, err := e.arch.Take(ctx, p.Org, SnapshotOwner, testPackage(id, "Lecture "+id)); err != nil {
			t.Fatalf("Take: %v", err)
		}
	}

	indexed, err := e.svc.Repopulate(ctx)
	if err != nil {
		t.Fatalf("Repopulate: %v", err)
	}
	if indexed != 24 {
		t.Fatalf("indexed = %d, want 24", indexed)
	}
	if got := e.idx.Len(p.Org); got != 24 {
		t.Fatalf("index len = %d, want 24", got)
	}
	if _, ok := e.idx.Get(p.Org, "e13"); ok {
		t.Fatal("snapshotless event made it into the index")
	}
	entry, ok := e.idx.Get(p.Org, "e07")
	if !ok || entry.Title != "Lecture e07" || entry.AgentID != "room-1" {
		t.Fatalf("entry = %+v, ok=%v", entry, ok)
	}
}

func TestRepopulateEmptyStore(t *testing.T) {
	e := newTestEnv(t, Config{})
	indexed, err := e.svc.Repopulate(context.Background())
	if err != nil || indexed != 0 {
		t.Fatalf("Repopulate = %d, %v; want 0, nil", indexed, err)
	}
}
