package app

import (
	"github.com/Lyx52/opencast/internal/config"
	"github.com/Lyx52/opencast/internal/notify"
	"github.com/Lyx52/opencast/internal/scheduler"
)

// schedulerConfig maps the on-disk scheduler section onto the service
// config, parsing the duration strings.
func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	sep, err := config.ParseDurationField("scheduler.min_separation", cfg.Scheduler.MinSeparation)
	if err != nil {
		return scheduler.Config{}, err
	}
	ttl, err := config.ParseDurationField("scheduler.cache_ttl", cfg.Scheduler.CacheTTL)
	if err != nil {
		return scheduler.Config{}, err
	}
	buffer, err := config.ParseDurationField("scheduler.retention_buffer", cfg.Scheduler.RetentionBuffer)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		MinSeparation:    sep,
		CacheTTL:         ttl,
		RetentionBuffer:  buffer,
		RecurringWorkers: cfg.Scheduler.RecurringWorkers,
		RepopulateBatch:  cfg.Scheduler.RepopulateBatch,
		Maintenance:      cfg.Scheduler.Maintenance,
	}, nil
}

func notifyConfig(cfg *config.Config) (notify.Config, error) {
	base, err := config.ParseDurationField("notify.retry_base", cfg.Notify.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notify.retry_max_delay", cfg.Notify.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		RetryMax:      cfg.Notify.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		RatePerSec:    cfg.Notify.RatePerSec,
	}, nil
}
