package archive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

type memoryArchive struct {
	mu sync.RWMutex
	// snaps[org][eventID] ordered by version, ascending
	snaps map[string]map[string][]Snapshot
}

// NewMemory returns a non-durable in-process archive.
func NewMemory() Archive {
	return &memoryArchive{snaps: map[string]map[string][]Snapshot{}}
}

func (a *memoryArchive) Close() error { return nil }

func (a *memoryArchive) Take(ctx context.Context, org, owner string, pkg MediaPackage) (Snapshot, error) {
	_ = ctx
	if strings.TrimSpace(pkg.ID) == "" {
		return Snapshot{}, errors.New("media package id is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snaps[org] == nil {
		a.snaps[org] = map[string][]Snapshot{}
	}
	prev := a.snaps[org][pkg.ID]
	next := 1
	if len(prev) > 0 {
		next = prev[len(prev)-1].Version + 1
	}
	snap := Snapshot{
		EventID:      pkg.ID,
		Org:          org,
		Owner:        owner,
		Version:      next,
		ArchivalDate: time.Now().UTC(),
		Package:      pkg.Clone(),
	}
	a.snaps[org][pkg.ID] = append(prev, snap)
	return snap, nil
}

func (a *memoryArchive) Latest(ctx context.Context, org, eventID string) (Snapshot, error) {
	_ = ctx
	a.mu.RLock()
	defer a.mu.RUnlock()
	snaps := a.snaps[org][eventID]
	if len(snaps) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	snap := snaps[len(snaps)-1]
	snap.Package = snap.Package.Clone()
	return snap, nil
}

func (a *memoryArchive) ReadAsset(ctx context.Context, org, eventID string, version int, elementID string) ([]byte, error) {
	_ = ctx
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, snap := range a.snaps[org][eventID] {
		if snap.Version != version {
			continue
		}
		for _, el := range snap.Package.Elements {
			if el.ID == elementID {
				return append([]byte(nil), el.Data...), nil
			}
		}
		return nil, ErrNoAsset
	}
	return nil, ErrNoSnapshot
}

func (a *memoryArchive) DeleteAll(ctx context.Context, org, eventID string) (int, error) {
	_ = ctx
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.snaps[org][eventID])
	if n == 0 {
		return 0, nil
	}
	delete(a.snaps[org], eventID)
	return n, nil
}
