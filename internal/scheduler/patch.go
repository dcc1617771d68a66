package scheduler

import (
	"time"

	"github.com/Lyx52/opencast/internal/archive"
)

// Field is an optional patch value: either unset (leave the stored value
// alone) or set to a new value. The zero Field is unset.
type Field[T any] struct {
	set   bool
	value T
}

// Set returns a set Field carrying v.
func Set[T any](v T) Field[T] { return Field[T]{set: true, value: v} }

// IsSet reports whether the field carries a value.
func (f Field[T]) IsSet() bool { return f.set }

// Get returns the carried value, or fallback when unset.
func (f Field[T]) Get(fallback T) T {
	if f.set {
		return f.value
	}
	return fallback
}

// Value returns the carried value and whether it is set.
func (f Field[T]) Value() (T, bool) { return f.value, f.set }

// Patch describes a partial update. Every field is independently optional;
// unset fields retain the stored values.
type Patch struct {
	Start   Field[time.Time]
	End     Field[time.Time]
	AgentID Field[string]

	Presenters Field[[]string]

	Package Field[archive.MediaPackage]

	WorkflowProperties Field[map[string]string]
	AgentMetadata      Field[map[string]string]
}

func (p Patch) isEmpty() bool {
	return !p.Start.IsSet() && !p.End.IsSet() && !p.AgentID.IsSet() &&
		!p.Presenters.IsSet() && !p.Package.IsSet() &&
		!p.WorkflowProperties.IsSet() && !p.AgentMetadata.IsSet()
}

// schedulingChanged reports whether the patch touches a field relevant for
// conflict detection.
func (p Patch) schedulingChanged() bool {
	return p.Start.IsSet() || p.End.IsSet() || p.AgentID.IsSet()
}
