package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuskit/notifier/internal/database/testutil"
	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/internal/transport"
)

func TestEngineNewWiresComponents(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	registry := transport.NewRegistry(transport.NewMemorySink(transport.ChannelInApp))

	engine, err := New(db, nil, registry, Config{})
	require.NoError(t, err)
	require.NotNil(t, engine.Store)
	require.NotNil(t, engine.Templates)
	require.NotNil(t, engine.Prefs)
	require.NotNil(t, engine.Scheduler)
	require.NotNil(t, engine.Dispatcher)
}

func TestWorkerRunOnceDrainsPipeline(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	inApp := transport.NewMemorySink(transport.ChannelInApp)
	registry := transport.NewRegistry(inApp)

	engine, err := New(db, nil, registry, Config{})
	require.NoError(t, err)

	base := time.Date(2026, time.March, 9, 8, 30, 0, 0, time.UTC)
	worker, err := NewWorker(engine, db, WithWorkerNow(func() time.Time { return base }))
	require.NoError(t, err)

	// A recurring rule already due.
	next := base.Add(-time.Minute)
	schedule := models.NotificationSchedule{
		Name:        "morning",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "30 8 * * *",
		Type:        models.TypeSystemAlert,
		Recipients:  []byte(`["alice"]`),
		Context:     []byte(`{"alert_title":"Morning","alert_message":"Hello"}`),
		NextTrigger: &next,
		IsActive:    true,
	}
	require.NoError(t, db.Create(&schedule).Error)

	require.NoError(t, worker.RunOnce(context.Background()))

	// The sweep created the notification and the same pass dispatched it.
	page, err := engine.Store.Query(context.Background(), NotificationFilter{UserID: "alice"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, models.StatusDelivered, page.Items[0].Status)
	require.Len(t, inApp.Sent(), 1)
}

func TestWorkerStartRegistersJobs(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	registry := transport.NewRegistry(transport.NewMemorySink(transport.ChannelInApp))

	engine, err := New(db, nil, registry, Config{})
	require.NoError(t, err)

	worker, err := NewWorker(engine, db,
		WithDispatchSchedule("@every 1h"),
		WithScheduleSweep("@every 1h"),
		WithRetentionSchedule("@daily"))
	require.NoError(t, err)

	require.NoError(t, worker.Start())
	<-worker.Stop().Done()
}

func TestWorkerStartRejectsBadSpec(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	registry := transport.NewRegistry()

	engine, err := New(db, nil, registry, Config{})
	require.NoError(t, err)

	worker, err := NewWorker(engine, db, WithDispatchSchedule("whenever"))
	require.NoError(t, err)
	require.Error(t, worker.Start())
}

func TestPurgeExpiredRemovesOldTerminalRecords(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := NewNotificationStore(db)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now().UTC()

	age := func(id string, days int) {
		require.NoError(t, db.Model(&models.Notification{}).
			Where("id = ?", id).
			Update("created_at", now.AddDate(0, 0, -days)).Error)
	}

	oldDelivered := createPending(t, store, "alice")
	require.NoError(t, store.MarkSent(ctx, oldDelivered.ID, now))
	require.NoError(t, store.MarkDelivered(ctx, oldDelivered.ID, now, nil))
	age(oldDelivered.ID, 120)

	oldPending := createPending(t, store, "alice")
	age(oldPending.ID, 120)

	freshDelivered := createPending(t, store, "alice")
	require.NoError(t, store.MarkSent(ctx, freshDelivered.ID, now))
	require.NoError(t, store.MarkDelivered(ctx, freshDelivered.ID, now, nil))

	stats, err := PurgeExpired(ctx, db, now, 90)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Notifications)

	_, err = store.Get(ctx, oldDelivered.ID)
	require.Error(t, err)

	// Old but still pending records are never purged.
	_, err = store.Get(ctx, oldPending.ID)
	require.NoError(t, err)
	_, err = store.Get(ctx, freshDelivered.ID)
	require.NoError(t, err)
}

func TestPurgeExpiredDropsExpiredCacheEntries(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Now().UTC()

	expired := models.CacheEntry{Key: "stale", Value: []byte("x"), ExpiresAt: now.Add(-time.Hour)}
	live := models.CacheEntry{Key: "live", Value: []byte("y"), ExpiresAt: now.Add(time.Hour)}
	eternal := models.CacheEntry{Key: "eternal", Value: []byte("z")}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&live).Error)
	require.NoError(t, db.Create(&eternal).Error)

	stats, err := PurgeExpired(context.Background(), db, now, 90)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.CacheEntries)

	var remaining int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&remaining).Error)
	require.EqualValues(t, 2, remaining)
}
