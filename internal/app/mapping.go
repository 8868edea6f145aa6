package app

import (
	"fmt"
	"strings"
	"time"

	"crontask/internal/config"
	"crontask/internal/executor"
	"crontask/internal/httpapi"
	"crontask/internal/scheduler"
	"crontask/internal/storage"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	out := storage.Config{Driver: "sqlite", Path: "crontask.db"}
	if cfg.Storage == nil {
		return out, nil
	}
	if d := strings.TrimSpace(cfg.Storage.Driver); d != "" {
		out.Driver = d
	}
	if p := strings.TrimSpace(cfg.Storage.Path); p != "" {
		out.Path = p
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	out.BusyTimeout = busy
	return out, nil
}

func mapExecutorConfig(cfg *config.Config) (executor.Config, error) {
	timeout, err := config.ParseDurationOrDefault("executor.request_timeout",
		cfg.Executor.RequestTimeout, 10*time.Second)
	if err != nil {
		return executor.Config{}, err
	}
	if cfg.Executor.MaxInFlight < 0 {
		return executor.Config{}, fmt.Errorf("executor.max_in_flight must be >= 0")
	}
	return executor.Config{
		RequestTimeout: timeout,
		MaxInFlight:    cfg.Executor.MaxInFlight,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	grace, err := config.ParseDurationOrDefault("scheduler.grace_window",
		cfg.Scheduler.GraceWindow, 60*time.Second)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Timezone:    cfg.Scheduler.Timezone,
		GraceWindow: grace,
	}, nil
}

func mapServerConfig(cfg *config.Config) (httpapi.Config, error) {
	read, err := config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	write, err := config.ParseDurationField("server.write_timeout", cfg.Server.WriteTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	idle, err := config.ParseDurationField("server.idle_timeout", cfg.Server.IdleTimeout)
	if err != nil {
		return httpapi.Config{}, err
	}
	if cfg.Server.RatePerSec < 0 || cfg.Server.RateBurst < 0 {
		return httpapi.Config{}, fmt.Errorf("server rate limits must be >= 0")
	}
	return httpapi.Config{
		Enabled:      cfg.Server.Enabled,
		Addr:         cfg.Server.Addr,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		RatePerSec:   cfg.Server.RatePerSec,
		RateBurst:    cfg.Server.RateBurst,
	}, nil
}

// validateConfig rejects a bad hot-reload before it is committed.
func validateConfig(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapExecutorConfig(cfg); err != nil {
		return err
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapServerConfig(cfg); err != nil {
		return err
	}
	return nil
}
