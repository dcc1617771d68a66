package archive

import (
	"context"
	"errors"
	"strings"

	logx "github.com/Lyx52/opencast/pkg/logx"
)

// Config configures the snapshot archive.
//
// Driver values:
//   - "fs": versioned JSON files under Root (default)
//   - "memory": in-process archive, not durable
type Config struct {
	Driver string
	Root   string
}

// Archive is the snapshot store API used by the scheduler core.
type Archive interface {
	// Take appends a new version for pkg.ID and stamps the archival date.
	Take(ctx context.Context, org, owner string, pkg MediaPackage) (Snapshot, error)

	// Latest returns the newest snapshot for eventID or ErrNoSnapshot.
	Latest(ctx context.Context, org, eventID string) (Snapshot, error)

	// ReadAsset returns the raw data of one element of a specific version.
	ReadAsset(ctx context.Context, org, eventID string, version int, elementID string) ([]byte, error)

	// DeleteAll removes every version of eventID and returns how many
	// versions were deleted. Zero with nil error means nothing existed.
	DeleteAll(ctx context.Context, org, eventID string) (int, error)

	Close() error
}

// Open initializes the configured archive.
func Open(cfg Config, log logx.Logger) (Archive, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "fs", "file":
		return openFS(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown archive driver: " + driver)
	}
}
