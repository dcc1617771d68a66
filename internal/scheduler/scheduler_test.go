package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/Lyx52/opencast/internal/archive"
	"github.com/Lyx52/opencast/internal/index"
	"github.com/Lyx52/opencast/internal/notify"
	"github.com/Lyx52/opencast/internal/storage"
	logx "github.com/Lyx52/opencast/pkg/logx"
)

type testEnv struct {
	svc   *Service
	store storage.Store
	arch  archive.Archive
	idx   *index.Memory
	out   <-chan notify.Message
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	return newTestEnvStore(t, cfg, storage.NewMemory())
}

func newTestEnvStore(t *testing.T, cfg Config, store storage.Store) *testEnv {
	t.Helper()
	arch := archive.NewMemory()
	idx := index.NewMemory()
	ch := notify.NewChannel(notify.Config{RetryMax: 2, RetryBase: time.Millisecond}, logx.Nop())
	out, detach := ch.Attach(256)
	t.Cleanup(detach)

	svc := New(cfg, store, arch, idx, ch, logx.Nop())
	return &testEnv{svc: svc, store: store, arch: arch, idx: idx, out: out}
}

// drain collects every message already accepted by the consumer buffer.
// Publish is synchronous, so once an operation returned its messages are in.
func (e *testEnv) drain() []notify.Message {
	var out []notify.Message
	for {
		select {
		case m := <-e.out:
			out = append(out, m)
		default:
			return out
		}
	}
}

func itemKinds(m notify.Message) []notify.Kind {
	kinds := make([]notify.Kind, len(m.Items))
	for i, it := range m.Items {
		kinds[i] = it.Kind
	}
	return kinds
}

func hasKind(m notify.Message, k notify.Kind) bool {
	for _, it := range m.Items {
		if it.Kind == k {
			return true
		}
	}
	return false
}

func testPrincipal() Principal {
	return Principal{Org: "mh_default_org", User: "admin"}
}

func testPackage(id, title string) archive.MediaPackage {
	return archive.MediaPackage{
		ID:      id,
		Title:   title,
		Series:  "series-1",
		Episode: archive.Catalog{"title": title},
		ACL: []archive.ACLEntry{
			{Role: "ROLE_ADMIN", Action: "read", Allow: true},
			{Role: "ROLE_ADMIN", Action: "write", Allow: true},
		},
	}
}

func testCreate(id, agentID string, start time.Time, d time.Duration) CreateRequest {
	return CreateRequest{
		Start:      start,
		End:        start.Add(d),
		AgentID:    agentID,
		Presenters: []string{"lecturer@example.org"},
		Package:    testPackage(id, "Lecture"),
		WorkflowProperties: map[string]string{
			"straightToPublishing": "true",
		},
		AgentMetadata: map[string]string{
			"capture.device.names": "defaults",
		},
		Source: "manual",
	}
}

func mustCreate(t *testing.T, e *testEnv, req CreateRequest) {
	t.Helper()
	if err := e.svc.Create(context.Background(), testPrincipal(), req); err != nil {
		t.Fatalf("Create %s: %v", req.Package.ID, err)
	}
}
