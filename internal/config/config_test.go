package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false}},
		"storage": {"driver": "sqlite", "path": "./scheduler.db", "busy_timeout": "5s"},
		"archive": {"driver": "fs", "root": "./archive"},
		"scheduler": {"cache_ttl": "30s", "retention_cron": "0 3 * * *", "maintenance": true}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./scheduler.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if !cfg.Scheduler.Maintenance || cfg.Scheduler.RetentionCron != "0 3 * * *" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  console: true
  file:
    enabled: true
    path: ./scheduler.log
storage:
  driver: memory
  path: ""
archive:
  driver: memory
scheduler:
  min_separation: 1m
  recurring_workers: 8
notify:
  retry_max: 3
  retry_base: 100ms
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.File.Path != "./scheduler.log" {
		t.Fatalf("file path = %q", cfg.Logging.File.Path)
	}
	if cfg.Scheduler.MinSeparation != "1m" || cfg.Scheduler.RecurringWorkers != 8 {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Notify.RetryMax != 3 || cfg.Notify.RetryBase != "100ms" {
		t.Fatalf("notify = %+v", cfg.Notify)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}, "no_such_section": {}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}}{"extra": 1}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseDurationField(t *testing.T) {
	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"90s", 90 * time.Second, false},
		{"24h", 24 * time.Hour, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %v, %v; want %v", tc.raw, got, err, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	got, err := ParseDurationOrDefault("test.field", "", time.Minute)
	if err != nil || got != time.Minute {
		t.Fatalf("empty: got %v, %v; want 1m", got, err)
	}
	got, err = ParseDurationOrDefault("test.field", "5s", time.Minute)
	if err != nil || got != 5*time.Second {
		t.Fatalf("explicit: got %v, %v; want 5s", got, err)
	}
}

func TestSubscribePublish(t *testing.T) {
	path := writeConfig(t, "config.json", `{"logging": {"level": "info"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	next := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.commit(next)
	m.publish(next)

	select {
	case got := <-sub:
		if got.Logging.Level != "debug" {
			t.Fatalf("received level %q, want debug", got.Logging.Level)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received config")
	}
}
