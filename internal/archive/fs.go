package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "github.com/Lyx52/opencast/pkg/logx"
)

// fsArchive lays out snapshots as
//
//	<root>/<org>/<eventID>/v000001.json
//	<root>/<org>/<eventID>/v000002.json
//	...
//
// Writes go through a temp file + rename so a crashed write never leaves a
// half-written live version.
type fsArchive struct {
	root string
	log  logx.Logger

	mu sync.Mutex // serializes version allocation per process
}

func openFS(cfg Config, log logx.Logger) (Archive, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, errors.New("archive.root is required for fs driver")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &fsArchive{root: root, log: log}, nil
}

func (a *fsArchive) Close() error { return nil }

func (a *fsArchive) eventDir(org, eventID string) string {
	return filepath.Join(a.root, org, eventID)
}

func versionFile(version int) string {
	return fmt.Sprintf("v%06d.json", version)
}

func parseVersionFile(name string) (int, bool) {
	if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".json"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (a *fsArchive) versions(org, eventID string) ([]int, error) {
	entries, err := os.ReadDir(a.eventDir(org, eventID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := parseVersionFile(e.Name()); ok {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (a *fsArchive) Take(ctx context.Context, org, owner string, pkg MediaPackage) (Snapshot, error) {
	_ = ctx
	if strings.TrimSpace(pkg.ID) == "" {
		return Snapshot{}, errors.New("media package id is required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	versions, err := a.versions(org, pkg.ID)
	if err != nil {
		return Snapshot{}, err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	snap := Snapshot{
		EventID:      pkg.ID,
		Org:          org,
		Owner:        owner,
		Version:      next,
		ArchivalDate: time.Now().UTC(),
		Package:      pkg.Clone(),
	}

	dir := a.eventDir(org, pkg.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Snapshot{}, err
	}
	path := filepath.Join(dir, versionFile(next))
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return Snapshot{}, err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return Snapshot{}, err
	}
	if err := f.Close(); err != nil {
		return Snapshot{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return Snapshot{}, err
	}

	a.log.Debug("snapshot taken",
		logx.String("event", pkg.ID), logx.String("org", org), logx.Int("version", next))
	return snap, nil
}

func (a *fsArchive) load(org, eventID string, version int) (Snapshot, error) {
	f, err := os.Open(filepath.Join(a.eventDir(org, eventID), versionFile(version)))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, err
	}
	defer f.Close()
	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %s v%d: %w", eventID, version, err)
	}
	return snap, nil
}

func (a *fsArchive) Latest(ctx context.Context, org, eventID string) (Snapshot, error) {
	_ = ctx
	versions, err := a.versions(org, eventID)
	if err != nil {
		return Snapshot{}, err
	}
	if len(versions) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return a.load(org, eventID, versions[len(versions)-1])
}

func (a *fsArchive) ReadAsset(ctx context.Context, org, eventID string, version int, elementID string) ([]byte, error) {
	snap, err := a.load(org, eventID, version)
	if err != nil {
		return nil, err
	}
	_ = ctx
	for _, el := range snap.Package.Elements {
		if el.ID == elementID {
			return append([]byte(nil), el.Data...), nil
		}
	}
	return nil, ErrNoAsset
}

func (a *fsArchive) DeleteAll(ctx context.Context, org, eventID string) (int, error) {
	_ = ctx
	a.mu.Lock()
	defer a.mu.Unlock()

	versions, err := a.versions(org, eventID)
	if err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	if err := os.RemoveAll(a.eventDir(org, eventID)); err != nil {
		return 0, err
	}
	return len(versions), nil
}
