package config

// Config is the full on-disk configuration. JSON and YAML are both
// accepted; YAML is coerced to JSON so one strict decoder serves both.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "24h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Archive   ArchiveConfig   `json:"archive"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notify    NotifyConfig    `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the interval store backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./scheduler.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ArchiveConfig selects the snapshot archive backend.
type ArchiveConfig struct {
	Driver string `json:"driver"`
	Root   string `json:"root,omitempty"`
}

// SchedulerConfig tunes the scheduling engine.
//
// Defaults (when fields are omitted/zero):
//   - min_separation: "0s" (back-to-back bookings allowed)
//   - cache_ttl: "60s"
//   - retention_buffer: "0s" (sweep disabled)
//   - retention_cron: "" (sweep disabled)
//   - recurring_workers: 4
//   - repopulate_batch: 20
type SchedulerConfig struct {
	MinSeparation   string `json:"min_separation,omitempty"`
	CacheTTL        string `json:"cache_ttl,omitempty"`
	RetentionBuffer string `json:"retention_buffer,omitempty"`

	// RetentionCron is a cron expression for the retention sweep
	// (e.g. "0 3 * * *" for daily at 03:00).
	RetentionCron string `json:"retention_cron,omitempty"`

	RecurringWorkers int `json:"recurring_workers,omitempty"`
	RepopulateBatch  int `json:"repopulate_batch,omitempty"`

	// Maintenance rejects all mutating calls while true. Hot-reloadable.
	Maintenance bool `json:"maintenance,omitempty"`
}

// NotifyConfig tunes delivery of live scheduler updates.
type NotifyConfig struct {
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
}
