package scheduler

import (
	"time"

	"github.com/Lyx52/opencast/internal/archive"
)

// SnapshotOwner tags every snapshot this service takes.
const SnapshotOwner = "org.opencastproject.scheduler"

// WorkflowConfigPrefix re-namespaces workflow properties inside the derived
// capture-agent properties.
const WorkflowConfigPrefix = "org.opencastproject.workflow.config."

// Derived capture-agent property keys.
const (
	propEventTitle    = "event.title"
	propEventSeries   = "event.series"
	propEventLocation = "event.location"
)

// Recording states a capture agent may report. Heartbeats with a state
// outside this set are rejected, not silently accepted.
const (
	StateUnknown          = "unknown"
	StateCapturing        = "capturing"
	StateCaptureFinished  = "capture_finished"
	StateCaptureError     = "capture_error"
	StateManifest         = "manifest"
	StateManifestError    = "manifest_error"
	StateManifestFinished = "manifest_finished"
	StateCompressing      = "compressing"
	StateCompressingError = "compressing_error"
	StateUploading        = "uploading"
	StateUploadFinished   = "upload_finished"
	StateUploadError      = "upload_error"
)

var knownStates = map[string]struct{}{
	StateUnknown: {}, StateCapturing: {}, StateCaptureFinished: {},
	StateCaptureError: {}, StateManifest: {}, StateManifestError: {},
	StateManifestFinished: {}, StateCompressing: {}, StateCompressingError: {},
	StateUploading: {}, StateUploadFinished: {}, StateUploadError: {},
}

// KnownState reports whether state is one of the recording states above.
func KnownState(state string) bool {
	_, ok := knownStates[state]
	return ok
}

// Config controls the scheduler service.
//
// Defaults (when fields are zero): cache_ttl 60s, repopulate batch 20,
// recurring_workers 4. MinSeparation defaults to none.
type Config struct {
	// MinSeparation is the buffer required between two bookings on the
	// same agent, in addition to their nominal intervals.
	MinSeparation time.Duration

	// CacheTTL bounds the staleness of the per-agent last-modified tokens
	// served to polling capture agents.
	CacheTTL time.Duration

	// RetentionBuffer ages out occurrences that ended this long ago when
	// the maintenance sweep runs. 0 disables the sweep.
	RetentionBuffer time.Duration

	// RecurringWorkers bounds the fan-out of recurring creates.
	RecurringWorkers int

	// RepopulateBatch is the bulk size of index rebuilds.
	RepopulateBatch int

	// Maintenance rejects mutating calls while set.
	Maintenance bool
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 60 * time.Second
	}
	if c.RecurringWorkers <= 0 {
		c.RecurringWorkers = 4
	}
	if c.RepopulateBatch <= 0 {
		c.RepopulateBatch = 20
	}
	return c
}

// Principal is the explicit security context of a call: the tenant plus the
// acting user. It is passed into every concurrent task rather than living
// in goroutine-local state.
type Principal struct {
	Org  string
	User string
}

// CreateRequest books a single occurrence. The media package id doubles as
// the event id.
type CreateRequest struct {
	Start   time.Time
	End     time.Time
	AgentID string

	Presenters []string

	Package archive.MediaPackage

	WorkflowProperties map[string]string
	AgentMetadata      map[string]string

	// Source records booking provenance; immutable after creation.
	Source string
}

// RecurringRequest books one occurrence per period of a recurrence rule.
// The template package is cloned per period with a renumbered title.
type RecurringRequest struct {
	Rule     string
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Timezone *time.Location

	AgentID    string
	Presenters []string

	Template archive.MediaPackage

	WorkflowProperties map[string]string
	AgentMetadata      map[string]string

	Source string
}

// Recording is the heartbeat view of an occurrence.
type Recording struct {
	EventID   string
	State     string
	LastHeard time.Time
}

// TechnicalMetadata is the capture-agent-facing view of an occurrence.
type TechnicalMetadata struct {
	EventID        string
	AgentID        string
	Start          time.Time
	End            time.Time
	Presenters     []string
	WorkflowConfig map[string]string
	AgentConfig    map[string]string
	Recording      *Recording
}
