package engine

import (
	"time"

	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/cache"
	"github.com/campuskit/notifier/internal/transport"
)

// Engine bundles the notification subsystems behind one constructor so the
// server and the worker share a single wiring point.
type Engine struct {
	Store      *NotificationStore
	Templates  *TemplateRegistry
	Prefs      *PreferenceStore
	Scheduler  *Scheduler
	Dispatcher *Dispatcher
}

// Config carries the tunables the engine exposes to the application layer.
type Config struct {
	CacheTTL        time.Duration
	SkewTolerance   time.Duration
	MaxAttempts     int
	RetryBase       time.Duration
	DigestDailyHour int
	DispatchBatch   int
}

// New wires the engine components against shared infrastructure. The cache
// store may be nil, in which case lookups always hit the database.
func New(db *gorm.DB, cacheStore cache.Store, sinks *transport.Registry, cfg Config) (*Engine, error) {
	store, err := NewNotificationStore(db, WithSkewTolerance(cfg.SkewTolerance))
	if err != nil {
		return nil, err
	}

	templates, err := NewTemplateRegistry(db, cacheStore, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	prefs, err := NewPreferenceStore(db, cacheStore, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	scheduler, err := NewScheduler(db, store, templates)
	if err != nil {
		return nil, err
	}

	dispatcher, err := NewDispatcher(store, prefs, sinks,
		WithRetryPolicy(cfg.MaxAttempts, cfg.RetryBase),
		WithDigestDailyHour(cfg.DigestDailyHour),
		WithDispatchBatchSize(cfg.DispatchBatch),
	)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Store:      store,
		Templates:  templates,
		Prefs:      prefs,
		Scheduler:  scheduler,
		Dispatcher: dispatcher,
	}, nil
}
