package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/Lyx52/opencast/internal/archive"
	"github.com/Lyx52/opencast/internal/config"
	"github.com/Lyx52/opencast/internal/index"
	"github.com/Lyx52/opencast/internal/notify"
	"github.com/Lyx52/opencast/internal/scheduler"
	"github.com/Lyx52/opencast/internal/storage"
	logx "github.com/Lyx52/opencast/pkg/logx"
)

// sweepUser is the system identity the retention cron runs under, one
// sweep per organization found in the store.
const sweepUser = "scheduler-retention"

// App wires config, logging, the stores, and the scheduler service into
// one process.
type App struct {
	cfgm *config.Manager

	logSvc *logx.Service
	log    logx.Logger

	store storage.Store
	arch  archive.Archive
	idx   *index.Memory
	ch    *notify.Channel

	sched *scheduler.Service
	cron  *cron.Cron

	mu      sync.Mutex
	started bool
	stop    context.CancelFunc
	done    sync.WaitGroup
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(c *config.Config) error {
		_, err := schedulerConfig(c)
		return err
	})

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open interval store: %w", err)
	}

	arch, err := archive.Open(archive.Config{
		Driver: cfg.Archive.Driver,
		Root:   cfg.Archive.Root,
	}, log.With(logx.String("comp", "archive")))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open snapshot archive: %w", err)
	}

	notifyCfg, err := notifyConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ch := notify.NewChannel(notifyCfg, log.With(logx.String("comp", "notify")))

	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	idx := index.NewMemory()
	sched := scheduler.New(schedCfg, store, arch, idx, ch, log.With(logx.String("comp", "scheduler")))

	return &App{
		cfgm:   cfgm,
		logSvc: logSvc,
		log:    log,
		store:  store,
		arch:   arch,
		idx:    idx,
		ch:     ch,
		sched:  sched,
	}, nil
}

// Scheduler exposes the wired service.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Notifications attaches a consumer to the live update channel.
func (a *App) Notifications(buffer int) (<-chan notify.Message, func()) {
	return a.ch.Attach(buffer)
}

// Start launches the config watcher, the index rebuild, and the retention
// cron, then signals service readiness.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return fmt.Errorf("app already started")
	}
	a.started = true

	runCtx, cancel := context.WithCancel(ctx)
	a.stop = cancel

	a.done.Add(1)
	go func() {
		defer a.done.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.done.Add(1)
	go func() {
		defer a.done.Done()
		a.watchReloads(runCtx)
	}()

	if n, err := a.sched.Repopulate(runCtx); err != nil {
		a.log.Error("index rebuild failed", logx.Int("indexed", n), logx.Err(err))
	}

	if err := a.startRetentionCron(); err != nil {
		return err
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd readiness notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd readiness notified")
	}

	a.log.Info("scheduler started")
	return nil
}

func (a *App) startRetentionCron() error {
	cfg := a.cfgm.Get()
	expr := cfg.Scheduler.RetentionCron
	if expr == "" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(expr, a.retentionSweep)
	if err != nil {
		return fmt.Errorf("invalid retention_cron %q: %w", expr, err)
	}
	c.Start()
	a.cron = c
	a.log.Info("retention sweep scheduled", logx.String("cron", expr))
	return nil
}

func (a *App) retentionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	orgs, err := a.store.Orgs(ctx)
	if err != nil {
		a.log.Error("retention sweep failed to list organizations", logx.Err(err))
		return
	}
	for _, org := range orgs {
		p := scheduler.Principal{Org: org, User: sweepUser}
		if _, err := a.sched.RemoveBeforeBuffer(ctx, p); err != nil {
			a.log.Error("retention sweep failed", logx.String("org", org), logx.Err(err))
		}
	}
}

// watchReloads applies hot-reloadable settings from committed config
// changes: log level/sinks and the scheduler's runtime knobs.
func (a *App) watchReloads(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
			})
			schedCfg, err := schedulerConfig(cfg)
			if err != nil {
				// Validator should have rejected this; keep the old settings.
				a.log.Warn("reloaded config has invalid scheduler section", logx.Err(err))
				continue
			}
			a.sched.Apply(schedCfg)
			a.log.Info("runtime settings applied",
				logx.Bool("maintenance", schedCfg.Maintenance),
				logx.Duration("cache_ttl", schedCfg.CacheTTL))
		}
	}
}

// Stop shuts the background workers down and closes the stores.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}
	a.started = false

	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
		a.cron = nil
	}
	if a.stop != nil {
		a.stop()
	}
	a.done.Wait()

	if err := a.store.Close(); err != nil {
		a.log.Error("failed to close interval store", logx.Err(err))
	}
	if err := a.arch.Close(); err != nil {
		a.log.Error("failed to close snapshot archive", logx.Err(err))
	}
	a.log.Info("scheduler stopped")
	return a.logSvc.Close()
}
