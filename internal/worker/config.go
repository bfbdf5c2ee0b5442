package worker

import (
	"strings"
	"time"

	"github.com/smallbiznis/salonbook/internal/config"
)

// Config controls job schedules and batch sizes.
type Config struct {
	Enabled          bool
	DispatchSchedule string
	SweepSchedule    string
	PushSchedule     string
	BatchSize        int
	JobTimeout       time.Duration
	LockTTL          time.Duration
	LockPrefix       string
}

func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		DispatchSchedule: "@every 15s",
		SweepSchedule:    "@every 5m",
		PushSchedule:     "@every 30m",
		BatchSize:        50,
		JobTimeout:       30 * time.Second,
		LockTTL:          45 * time.Second,
		LockPrefix:       "salonbook:worker:",
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:          cfg.Worker.Enabled,
		DispatchSchedule: cfg.Worker.DispatchSchedule,
		SweepSchedule:    cfg.Worker.SweepSchedule,
		PushSchedule:     cfg.Worker.PushSchedule,
		BatchSize:        cfg.Worker.BatchSize,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.DispatchSchedule) == "" {
		c.DispatchSchedule = defaults.DispatchSchedule
	}
	if strings.TrimSpace(c.SweepSchedule) == "" {
		c.SweepSchedule = defaults.SweepSchedule
	}
	if strings.TrimSpace(c.PushSchedule) == "" {
		c.PushSchedule = defaults.PushSchedule
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	// The lock must outlive the job so a slow run is not doubled.
	if c.LockTTL <= c.JobTimeout {
		c.LockTTL = c.JobTimeout + 15*time.Second
	}
	if c.LockPrefix == "" {
		c.LockPrefix = defaults.LockPrefix
	}
	return c
}
