package app

import (
	"github.com/campuskit/notifier/internal/database"
	"github.com/campuskit/notifier/internal/engine"
	"github.com/campuskit/notifier/internal/transport"
)

// EngineSettings converts the engine section into the engine package representation.
func (c EngineConfig) EngineSettings(cacheTTL CacheConfig) engine.Config {
	return engine.Config{
		CacheTTL:        cacheTTL.TTL,
		SkewTolerance:   c.SkewTolerance,
		MaxAttempts:     c.MaxAttempts,
		RetryBase:       c.RetryBase,
		DigestDailyHour: c.DigestDailyHour,
		DispatchBatch:   c.DispatchBatch,
	}
}

// WorkerOptions translates the engine section into worker options.
func (c EngineConfig) WorkerOptions() []engine.WorkerOption {
	return []engine.WorkerOption{
		engine.WithDispatchSchedule(c.DispatchSchedule),
		engine.WithScheduleSweep(c.ScheduleSweep),
		engine.WithRetentionSchedule(c.RetentionSchedule),
		engine.WithRetentionDays(c.RetentionDays),
	}
}

// TransportConfig converts a webhook binding into the transport package representation.
func (b WebhookBinding) TransportConfig() transport.WebhookConfig {
	return transport.WebhookConfig{
		URL:     b.URL,
		Token:   b.Token,
		Timeout: b.Timeout,
	}
}

// DatabaseSettings converts the database section into the database package representation.
func (c DatabaseConfig) DatabaseSettings() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	switch {
	case c.Driver == "postgres" && c.Postgres.Enabled:
		cfg.Host = c.Postgres.Host
		cfg.Port = c.Postgres.Port
		cfg.Name = c.Postgres.Database
		cfg.User = c.Postgres.Username
		cfg.Password = c.Postgres.Password
	case c.Driver == "mysql" && c.MySQL.Enabled:
		cfg.Host = c.MySQL.Host
		cfg.Port = c.MySQL.Port
		cfg.Name = c.MySQL.Database
		cfg.User = c.MySQL.Username
		cfg.Password = c.MySQL.Password
	}

	return cfg
}
