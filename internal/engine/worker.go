package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/pkg/logger"
)

const (
	defaultRetentionDays = 90
	defaultDispatchSpec  = "@every 30s"
	defaultScheduleSpec  = "@every 1m"
	defaultRetentionSpec = "@daily"
)

// Worker drives the engine's periodic jobs: draining due notifications,
// sweeping recurring schedules, and purging old records.
type Worker struct {
	engine    *Engine
	db        *gorm.DB
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	dispatchSchedule  string
	scheduleSchedule  string
	retentionSchedule string
}

// WorkerOption customises the Worker.
type WorkerOption func(*Worker)

// WithWorkerCron injects a preconfigured cron instance, primarily for testing.
func WithWorkerCron(c *cron.Cron) WorkerOption {
	return func(w *Worker) {
		if c != nil {
			w.cron = c
		}
	}
}

// WithWorkerNow overrides the clock used for purge comparisons.
func WithWorkerNow(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// WithRetentionDays adjusts how long terminal notifications are retained.
func WithRetentionDays(days int) WorkerOption {
	return func(w *Worker) {
		if days > 0 {
			w.retention = days
		}
	}
}

// WithDispatchSchedule overrides the cron specification for dispatch passes.
func WithDispatchSchedule(spec string) WorkerOption {
	return func(w *Worker) {
		if spec != "" {
			w.dispatchSchedule = spec
		}
	}
}

// WithScheduleSweep overrides the cron specification for recurring-rule sweeps.
func WithScheduleSweep(spec string) WorkerOption {
	return func(w *Worker) {
		if spec != "" {
			w.scheduleSchedule = spec
		}
	}
}

// WithRetentionSchedule overrides the cron specification for retention purges.
func WithRetentionSchedule(spec string) WorkerOption {
	return func(w *Worker) {
		if spec != "" {
			w.retentionSchedule = spec
		}
	}
}

// NewWorker constructs a Worker with sensible defaults.
func NewWorker(engine *Engine, db *gorm.DB, opts ...WorkerOption) (*Worker, error) {
	if engine == nil {
		return nil, errors.New("worker: engine is required")
	}

	worker := &Worker{
		engine:            engine,
		db:                db,
		now:               time.Now,
		retention:         defaultRetentionDays,
		dispatchSchedule:  defaultDispatchSpec,
		scheduleSchedule:  defaultScheduleSpec,
		retentionSchedule: defaultRetentionSpec,
		log:               logger.WithModule("worker"),
	}

	for _, opt := range opts {
		opt(worker)
	}

	if worker.cron == nil {
		worker.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return worker, nil
}

// Start registers the periodic jobs and launches the scheduler.
func (w *Worker) Start() error {
	if _, err := w.cron.AddFunc(w.dispatchSchedule, func() {
		ctx := context.Background()
		report, err := w.engine.Dispatcher.DispatchDue(ctx)
		if err != nil {
			w.log.Warn("dispatch pass finished with errors", zap.Error(err))
		}
		if report != nil && report.Examined > 0 {
			w.log.Info("dispatch pass",
				zap.Int("examined", report.Examined),
				zap.Int("delivered", report.Delivered),
				zap.Int("failed", report.Failed),
				zap.Int("deferred", report.Deferred),
				zap.Int("skipped", report.Skipped))
		}
	}); err != nil {
		return err
	}

	if _, err := w.cron.AddFunc(w.scheduleSchedule, func() {
		ctx := context.Background()
		fired, err := w.engine.Scheduler.RunDueSchedules(ctx, w.now())
		if err != nil {
			w.log.Warn("schedule sweep finished with errors", zap.Error(err))
		}
		if fired > 0 {
			w.log.Info("schedule sweep", zap.Int("fired", fired))
		}
	}); err != nil {
		return err
	}

	if w.db != nil && w.retention > 0 {
		if _, err := w.cron.AddFunc(w.retentionSchedule, func() {
			ctx := context.Background()
			stats, err := PurgeExpired(ctx, w.db, w.now(), w.retention)
			if err != nil {
				w.log.Warn("retention purge failed", zap.Error(err))
				return
			}
			if stats.Notifications > 0 || stats.CacheEntries > 0 {
				w.log.Info("retention purge",
					zap.Int64("notifications", stats.Notifications),
					zap.Int64("cache_entries", stats.CacheEntries))
			}
		}); err != nil {
			return err
		}
	}

	w.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (w *Worker) Stop() context.Context {
	if w.cron == nil {
		return context.Background()
	}
	return w.cron.Stop()
}

// RunOnce executes every job sequentially. Primarily used in tests and during
// graceful shutdown to drain outstanding work.
func (w *Worker) RunOnce(ctx context.Context) error {
	ctx = ensureContext(ctx)

	var errs error

	if _, err := w.engine.Scheduler.RunDueSchedules(ctx, w.now()); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := w.engine.Dispatcher.DispatchDue(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if w.db != nil && w.retention > 0 {
		if _, err := PurgeExpired(ctx, w.db, w.now(), w.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// PurgeStats captures the number of records removed by one retention pass.
type PurgeStats struct {
	Notifications int64
	CacheEntries  int64
}

// PurgeExpired removes terminal notifications older than the retention window
// and cache entries past their expiry. Pending and sent records are never
// touched regardless of age.
func PurgeExpired(ctx context.Context, db *gorm.DB, now time.Time, retentionDays int) (PurgeStats, error) {
	if db == nil {
		return PurgeStats{}, errors.New("purge: db is required")
	}
	ctx = ensureContext(ctx)

	stats := PurgeStats{}
	cutoff := now.AddDate(0, 0, -retentionDays)

	result := db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]models.NotificationStatus{models.StatusDelivered, models.StatusFailed, models.StatusCancelled},
			cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return stats, fmt.Errorf("purge: notifications: %w", result.Error)
	}
	stats.Notifications = result.RowsAffected

	result = db.WithContext(ctx).
		Where("expires_at <> ? AND expires_at < ?", time.Time{}, now).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return stats, fmt.Errorf("purge: cache entries: %w", result.Error)
	}
	stats.CacheEntries = result.RowsAffected

	return stats, nil
}
