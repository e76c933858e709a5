package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/internal/transport"
	"github.com/campuskit/notifier/pkg/logger"
	"github.com/campuskit/notifier/pkg/metrics"
	apperrors "github.com/campuskit/notifier/pkg/errors"
)

const (
	defaultMaxAttempts     = 3
	defaultRetryBase       = 500 * time.Millisecond
	defaultDigestDailyHour = 8
	defaultDispatchBatch   = 100
)

// Dispatcher drains pending notifications and pushes them through the
// configured transport sinks. It claims each record with a conditional status
// update, so several dispatcher instances can run against the same database.
type Dispatcher struct {
	store *NotificationStore
	prefs *PreferenceStore
	sinks *transport.Registry
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	maxAttempts     int
	retryBase       time.Duration
	digestDailyHour int
	batchSize       int

	log *zap.Logger
}

// DispatcherOption customises the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherNow overrides the clock, primarily for testing.
func WithDispatcherNow(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithRetryPolicy sets the per-channel attempt cap and base backoff. Backoff
// doubles after every failed attempt.
func WithRetryPolicy(maxAttempts int, base time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if base > 0 {
			d.retryBase = base
		}
	}
}

// WithDigestDailyHour sets the local wall-clock hour at which daily digests
// release.
func WithDigestDailyHour(hour int) DispatcherOption {
	return func(d *Dispatcher) {
		if hour >= 0 && hour < 24 {
			d.digestDailyHour = hour
		}
	}
}

// WithDispatchBatchSize caps how many due notifications one pass claims.
func WithDispatchBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithSleepFunc overrides the backoff sleeper, primarily for testing.
func WithSleepFunc(sleep func(ctx context.Context, d time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store *NotificationStore, prefs *PreferenceStore, sinks *transport.Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil || prefs == nil || sinks == nil {
		return nil, errors.New("dispatcher: store, prefs and sinks are required")
	}
	d := &Dispatcher{
		store:           store,
		prefs:           prefs,
		sinks:           sinks,
		now:             time.Now,
		sleep:           sleepWithContext,
		maxAttempts:     defaultMaxAttempts,
		retryBase:       defaultRetryBase,
		digestDailyHour: defaultDigestDailyHour,
		batchSize:       defaultDispatchBatch,
		log:             logger.WithModule("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DispatchReport summarises one pass over due notifications.
type DispatchReport struct {
	Examined  int
	Delivered int
	Failed    int
	Deferred  int
	Skipped   int
}

// DispatchDue processes every currently due pending notification once. One
// broken record never blocks the rest of the pass.
func (d *Dispatcher) DispatchDue(ctx context.Context) (*DispatchReport, error) {
	ctx = ensureContext(ctx)
	started := d.now()
	defer func() {
		metrics.DispatchPassDuration.Observe(time.Since(started).Seconds())
	}()

	due, err := d.store.DueForDispatch(ctx, started, d.batchSize)
	if err != nil {
		return nil, err
	}

	report := &DispatchReport{}
	var combined error

	// Digest-frequency records past their boundary are collected here and
	// delivered as one coalesced batch per (user, type) at the end of the
	// pass. Everything else dispatches individually.
	type digestGroup struct {
		pref  *models.NotificationPreference
		batch []*models.Notification
	}
	type digestKey struct {
		userID string
		typ    models.NotificationType
	}
	groups := make(map[digestKey]*digestGroup)
	var order []digestKey

	for i := range due {
		if ctx.Err() != nil {
			combined = multierr.Append(combined, ctx.Err())
			break
		}
		notification := &due[i]
		report.Examined++

		pref, err := d.prefs.Get(ctx, notification.UserID, notification.Type)
		if err != nil {
			combined = multierr.Append(combined, fmt.Errorf("notification %s: %w", notification.ID, err))
			continue
		}

		if notification.Priority != models.PriorityUrgent && digestFrequency(pref.Frequency) {
			if release, held := d.digestHold(notification, pref, d.now()); held {
				report.Deferred++
				metrics.DispatchDeferrals.WithLabelValues("digest").Inc()
				if err := d.store.update(ctx, notification.ID, map[string]any{"scheduled_for": release}); err != nil {
					combined = multierr.Append(combined, fmt.Errorf("notification %s: %w", notification.ID, err))
				}
				continue
			}
			if InQuietHours(pref, d.now()) {
				report.Deferred++
				metrics.DispatchDeferrals.WithLabelValues("quiet_hours").Inc()
				continue
			}
			key := digestKey{userID: notification.UserID, typ: notification.Type}
			group, ok := groups[key]
			if !ok {
				group = &digestGroup{pref: pref}
				groups[key] = group
				order = append(order, key)
			}
			group.batch = append(group.batch, notification)
			continue
		}

		if dispatchErr := d.dispatchOne(ctx, notification, pref, report); dispatchErr != nil {
			combined = multierr.Append(combined, fmt.Errorf("notification %s: %w", notification.ID, dispatchErr))
		}
	}

	for _, key := range order {
		group := groups[key]
		if err := d.dispatchDigest(ctx, group.batch, group.pref, report); err != nil {
			combined = multierr.Append(combined, fmt.Errorf("digest %s/%s: %w", key.userID, key.typ, err))
		}
	}
	return report, combined
}

func (d *Dispatcher) dispatchOne(ctx context.Context, notification *models.Notification, pref *models.NotificationPreference, report *DispatchReport) error {
	now := d.now()

	urgent := notification.Priority == models.PriorityUrgent
	if !urgent && InQuietHours(pref, now) {
		// The record stays untouched. Once the window closes the next pass
		// picks it up with its original ScheduledFor.
		report.Deferred++
		metrics.DispatchDeferrals.WithLabelValues("quiet_hours").Inc()
		return nil
	}

	if claimed, err := d.claim(ctx, notification.ID, now, report); err != nil || !claimed {
		return err
	}

	channels := EnabledChannels(pref)
	if pref.Frequency == models.FrequencyMuted && !urgent {
		channels = nil
	}
	if len(channels) == 0 {
		// Nothing to invoke. The notification still reached its terminal
		// delivered state so the record is queryable in the user's feed.
		if err := d.store.MarkDelivered(ctx, notification.ID, d.now(), nil); err != nil {
			return err
		}
		report.Delivered++
		metrics.DispatchOutcomes.WithLabelValues(string(models.StatusDelivered)).Inc()
		return nil
	}

	delivery := transport.Delivery{
		Notification: notification,
		Title:        notification.Title,
		Message:      notification.Message,
	}
	receipts := d.fanOut(ctx, delivery, channels)
	return d.settle(ctx, []*models.Notification{notification}, receipts, report)
}

// dispatchDigest delivers a coalesced batch for one (user, type). Every
// member is claimed individually, the enabled channels are each invoked once
// with the combined content, and the shared receipts settle every claimed
// record together.
func (d *Dispatcher) dispatchDigest(ctx context.Context, batch []*models.Notification, pref *models.NotificationPreference, report *DispatchReport) error {
	now := d.now()

	var claimed []*models.Notification
	var combined error
	for _, notification := range batch {
		ok, err := d.claim(ctx, notification.ID, now, report)
		if err != nil {
			combined = multierr.Append(combined, err)
			continue
		}
		if ok {
			claimed = append(claimed, notification)
		}
	}
	if len(claimed) == 0 {
		return combined
	}

	channels := EnabledChannels(pref)
	if len(channels) == 0 {
		for _, notification := range claimed {
			if err := d.store.MarkDelivered(ctx, notification.ID, d.now(), nil); err != nil {
				combined = multierr.Append(combined, err)
				continue
			}
			report.Delivered++
			metrics.DispatchOutcomes.WithLabelValues(string(models.StatusDelivered)).Inc()
		}
		return combined
	}

	receipts := d.fanOut(ctx, digestDelivery(claimed), channels)
	return multierr.Append(combined, d.settle(ctx, claimed, receipts, report))
}

// claim moves one record from pending to sent. Losing the race to another
// dispatcher instance is not an error, the record is simply no longer ours.
func (d *Dispatcher) claim(ctx context.Context, id string, now time.Time, report *DispatchReport) (bool, error) {
	if err := d.store.MarkSent(ctx, id, now); err != nil {
		if errors.Is(err, apperrors.ErrInvalidTransition) || errors.Is(err, apperrors.ErrNotFound) {
			report.Skipped++
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// settle applies the aggregation rule to every record covered by one set of
// channel receipts: delivered when at least one channel succeeded, failed
// only when all of them did.
func (d *Dispatcher) settle(ctx context.Context, records []*models.Notification, receipts []ChannelReceipt, report *DispatchReport) error {
	succeeded := 0
	var failures []string
	for _, receipt := range receipts {
		if receipt.OK {
			succeeded++
			metrics.ChannelDeliveries.WithLabelValues(receipt.Channel, "delivered").Inc()
		} else {
			failures = append(failures, fmt.Sprintf("%s: %s", receipt.Channel, receipt.Error))
			metrics.ChannelDeliveries.WithLabelValues(receipt.Channel, "failed").Inc()
		}
	}

	var combined error
	if succeeded > 0 {
		for _, notification := range records {
			if err := d.store.MarkDelivered(ctx, notification.ID, d.now(), receipts); err != nil {
				combined = multierr.Append(combined, err)
				continue
			}
			report.Delivered++
			metrics.DispatchOutcomes.WithLabelValues(string(models.StatusDelivered)).Inc()
		}
		if len(failures) > 0 {
			d.log.Warn("partial delivery",
				zap.String("user_id", records[0].UserID),
				zap.Strings("failed_channels", failures))
		}
		return combined
	}

	reason := strings.Join(failures, "; ")
	for _, notification := range records {
		if err := d.store.MarkFailed(ctx, notification.ID, d.now(), reason, receipts); err != nil {
			combined = multierr.Append(combined, err)
			continue
		}
		report.Failed++
		metrics.DispatchOutcomes.WithLabelValues(string(models.StatusFailed)).Inc()
	}
	d.log.Error("delivery failed on every channel",
		zap.String("user_id", records[0].UserID),
		zap.String("reason", reason))
	return combined
}

func digestFrequency(frequency models.DeliveryFrequency) bool {
	return frequency == models.FrequencyHourlyDigest || frequency == models.FrequencyDailyDigest
}

// digestDelivery combines a claimed batch into one piece of rendered content.
// A batch of one keeps its own title and message.
func digestDelivery(batch []*models.Notification) transport.Delivery {
	lead := batch[0]
	if len(batch) == 1 {
		return transport.Delivery{
			Notification: lead,
			Batch:        batch,
			Title:        lead.Title,
			Message:      lead.Message,
		}
	}

	lines := make([]string, 0, len(batch))
	for _, notification := range batch {
		lines = append(lines, fmt.Sprintf("%s: %s", notification.Title, notification.Message))
	}
	label := strings.ReplaceAll(string(lead.Type), "_", " ")
	return transport.Delivery{
		Notification: lead,
		Batch:        batch,
		Title:        fmt.Sprintf("%d %s updates", len(batch), label),
		Message:      strings.Join(lines, "\n"),
	}
}

// digestHold reports whether a batched notification is still inside its
// digest window, returning the release instant when it is. Rewriting
// ScheduledFor to the boundary is what lines the batch up for a single
// later pass.
func (d *Dispatcher) digestHold(notification *models.Notification, pref *models.NotificationPreference, now time.Time) (time.Time, bool) {
	if !digestFrequency(pref.Frequency) {
		return time.Time{}, false
	}
	release := d.digestRelease(notification, pref)
	if now.Before(release) {
		return release, true
	}
	return time.Time{}, false
}

// digestRelease computes when a batched notification becomes deliverable.
// Hourly digests release at the first top of the hour after creation; daily
// digests release at the configured hour of the preference's timezone. The
// boundary is always anchored on CreatedAt, never on ScheduledFor, because
// holds rewrite ScheduledFor and an advancing anchor would push the release
// out forever.
func (d *Dispatcher) digestRelease(notification *models.Notification, pref *models.NotificationPreference) time.Time {
	base := notification.CreatedAt

	if pref.Frequency == models.FrequencyHourlyDigest {
		return base.Truncate(time.Hour).Add(time.Hour)
	}

	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := base.In(loc)
	release := time.Date(local.Year(), local.Month(), local.Day(), d.digestDailyHour, 0, 0, 0, loc)
	if !release.After(local) {
		release = release.AddDate(0, 0, 1)
	}
	return release
}

// fanOut attempts every requested channel independently and returns one
// receipt per channel.
func (d *Dispatcher) fanOut(ctx context.Context, delivery transport.Delivery, channels []transport.Channel) []ChannelReceipt {
	receipts := make([]ChannelReceipt, 0, len(channels))
	for _, channel := range channels {
		receipts = append(receipts, d.sendWithRetry(ctx, channel, delivery))
	}
	return receipts
}

// sendWithRetry drives one channel through the retry policy. Backoff doubles
// per attempt; a cancelled context stops retrying immediately.
func (d *Dispatcher) sendWithRetry(ctx context.Context, channel transport.Channel, delivery transport.Delivery) ChannelReceipt {
	receipt := ChannelReceipt{Channel: string(channel), At: d.now()}

	sink, ok := d.sinks.Sink(channel)
	if !ok {
		receipt.Error = "no sink configured"
		return receipt
	}

	backoff := d.retryBase
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		receipt.Attempts = attempt
		lastErr = sink.Send(ctx, delivery)
		if lastErr == nil {
			receipt.OK = true
			receipt.At = d.now()
			return receipt
		}
		if attempt == d.maxAttempts {
			break
		}
		if sleepErr := d.sleep(ctx, backoff); sleepErr != nil {
			lastErr = multierr.Append(lastErr, sleepErr)
			break
		}
		backoff *= 2
	}

	receipt.Error = lastErr.Error()
	receipt.At = d.now()
	return receipt
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
