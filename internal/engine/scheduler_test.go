package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/database/testutil"
	"github.com/campuskit/notifier/internal/models"
	apperrors "github.com/campuskit/notifier/pkg/errors"
)

func newTestScheduler(t *testing.T, opts ...SchedulerOption) (*Scheduler, *NotificationStore, *gorm.DB) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	store, err := NewNotificationStore(db)
	require.NoError(t, err)
	templates, err := NewTemplateRegistry(db, nil, time.Minute)
	require.NoError(t, err)
	scheduler, err := NewScheduler(db, store, templates, opts...)
	require.NoError(t, err)
	return scheduler, store, db
}

func TestFireEventCreatesOnePerRecipient(t *testing.T) {
	scheduler, store, _ := newTestScheduler(t)
	ctx := context.Background()

	result, err := scheduler.FireEvent(ctx, Event{
		Type:       models.TypeAssignmentDue,
		Priority:   models.PriorityHigh,
		Recipients: []string{"alice", "bob", "alice"},
		Context: map[string]any{
			"assignment_name": "Essay 2",
			"course_name":     "Composition",
			"due_date":        "Friday",
		},
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 2)
	require.Empty(t, result.Failed)

	for _, created := range result.Created {
		require.Equal(t, models.StatusPending, created.Status)
		require.Equal(t, "Assignment due: Essay 2", created.Title)
		require.Contains(t, created.Message, "Composition")
	}

	page, err := store.Query(ctx, NotificationFilter{Type: models.TypeAssignmentDue})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
}

func TestFireEventRequiresContextKeys(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)

	_, err := scheduler.FireEvent(context.Background(), Event{
		Type:       models.TypeAssignmentDue,
		Recipients: []string{"alice"},
		Context:    map[string]any{"assignment_name": "Essay 2"},
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Contains(t, err.Error(), "due_date")
}

func TestFireEventRejectsMissingTemplate(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)

	// No default template is seeded for mentor messages.
	_, err := scheduler.FireEvent(context.Background(), Event{
		Type:       models.TypeMentorMessage,
		Recipients: []string{"alice"},
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestFireEventRequiresRecipients(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)

	_, err := scheduler.FireEvent(context.Background(), Event{Type: models.TypeSystemAlert})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestFireEventLeavesUnknownPlaceholders(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)

	result, err := scheduler.FireEvent(context.Background(), Event{
		Type:       models.TypeSystemAlert,
		Recipients: []string{"alice"},
		Context:    map[string]any{"alert_title": "Scheduled outage"},
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.Equal(t, "Scheduled outage", result.Created[0].Title)
	require.Equal(t, "{{alert_message}}", result.Created[0].Message)
}

func TestFireAssignmentDueHelper(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)

	result, err := scheduler.FireAssignmentDue(context.Background(), AssignmentDueEvent{
		Recipients:     []string{"alice"},
		AssignmentName: "Lab report",
		CourseName:     "Chemistry",
		DueDate:        time.Date(2026, time.April, 3, 17, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.Equal(t, models.PriorityHigh, result.Created[0].Priority)
	require.Equal(t, models.CategoryAcademic, result.Created[0].Category)
	require.Contains(t, result.Created[0].Title, "Lab report")
}

func TestFirePaymentDueIsUrgent(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)

	due := time.Date(2026, time.April, 10, 0, 0, 0, 0, time.UTC)
	result, err := scheduler.FirePaymentEvent(context.Background(), PaymentEvent{
		Recipients: []string{"alice"},
		Amount:     "€250",
		Reference:  "INV-0042",
		DueDate:    &due,
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.Equal(t, models.PriorityUrgent, result.Created[0].Priority)
	require.Equal(t, models.TypePaymentDue, result.Created[0].Type)
}

func TestFireClassEventReminderVsScheduled(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)
	ctx := context.Background()
	start := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)

	scheduled, err := scheduler.FireClassEvent(ctx, ClassEvent{
		Recipients: []string{"alice"},
		ClassName:  "Algebra",
		Location:   "B12",
		StartTime:  start,
	})
	require.NoError(t, err)
	require.Equal(t, models.TypeClassScheduled, scheduled.Created[0].Type)

	reminder, err := scheduler.FireClassEvent(ctx, ClassEvent{
		Recipients: []string{"alice"},
		ClassName:  "Algebra",
		Location:   "B12",
		StartTime:  start,
		Reminder:   true,
	})
	require.NoError(t, err)
	require.Equal(t, models.TypeClassReminder, reminder.Created[0].Type)
	require.Equal(t, models.PriorityHigh, reminder.Created[0].Priority)
}

func TestCreateScheduleValidatesCron(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)
	ctx := context.Background()

	_, err := scheduler.CreateSchedule(ctx, ScheduleInput{
		Name:        "weekly-digest",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "not a cron",
		Type:        models.TypeSystemAlert,
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	schedule, err := scheduler.CreateSchedule(ctx, ScheduleInput{
		Name:        "weekly-digest",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "0 8 * * MON",
		Type:        models.TypeSystemAlert,
		Recipients:  []string{"alice"},
		Context:     map[string]any{"alert_title": "Weekly digest", "alert_message": "See portal."},
	})
	require.NoError(t, err)
	require.NotNil(t, schedule.NextTrigger)
	require.True(t, schedule.IsActive)
}

func TestRunDueSchedulesFiresAndRecomputes(t *testing.T) {
	base := time.Date(2026, time.March, 9, 7, 59, 0, 0, time.UTC)
	scheduler, store, _ := newTestScheduler(t, WithSchedulerNow(func() time.Time { return base }))
	ctx := context.Background()

	schedule, err := scheduler.CreateSchedule(ctx, ScheduleInput{
		Name:        "morning-alert",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "0 8 * * *",
		Type:        models.TypeSystemAlert,
		Recipients:  []string{"alice", "bob"},
		Context:     map[string]any{"alert_title": "Good morning", "alert_message": "Classes start soon."},
	})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC), schedule.NextTrigger.UTC())

	// Before the trigger nothing fires.
	fired, err := scheduler.RunDueSchedules(ctx, base)
	require.NoError(t, err)
	require.Zero(t, fired)

	at := time.Date(2026, time.March, 9, 8, 0, 30, 0, time.UTC)
	fired, err = scheduler.RunDueSchedules(ctx, at)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	page, err := store.Query(ctx, NotificationFilter{Type: models.TypeSystemAlert})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)

	reloaded, err := scheduler.GetSchedule(ctx, schedule.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastTriggered)
	require.Equal(t, time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC), reloaded.NextTrigger.UTC())

	// Same instant again: the rule has advanced, so nothing fires twice.
	fired, err = scheduler.RunDueSchedules(ctx, at)
	require.NoError(t, err)
	require.Zero(t, fired)
}

func TestRunDueSchedulesSkipsInactive(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)
	ctx := context.Background()

	schedule, err := scheduler.CreateSchedule(ctx, ScheduleInput{
		Name:        "paused",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "* * * * *",
		Type:        models.TypeSystemAlert,
		Recipients:  []string{"alice"},
		Context:     map[string]any{"alert_title": "t", "alert_message": "m"},
	})
	require.NoError(t, err)

	_, err = scheduler.SetScheduleActive(ctx, schedule.ID, false)
	require.NoError(t, err)

	fired, err := scheduler.RunDueSchedules(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Zero(t, fired)
}

func TestRunDueSchedulesIsolatesBrokenRules(t *testing.T) {
	base := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	scheduler, store, db := newTestScheduler(t, WithSchedulerNow(func() time.Time { return base }))
	ctx := context.Background()

	healthy, err := scheduler.CreateSchedule(ctx, ScheduleInput{
		Name:        "healthy",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "0 * * * *",
		Type:        models.TypeSystemAlert,
		Recipients:  []string{"alice"},
		Context:     map[string]any{"alert_title": "t", "alert_message": "m"},
	})
	require.NoError(t, err)

	// Corrupt a second rule directly; validation would reject it up front.
	next := base.Add(-time.Minute)
	broken := models.NotificationSchedule{
		Name:        "broken",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "0 * * * *",
		Type:        models.TypeMentorMessage,
		NextTrigger: &next,
		IsActive:    true,
	}
	require.NoError(t, db.Create(&broken).Error)

	at := base.Add(2 * time.Hour)
	fired, err := scheduler.RunDueSchedules(ctx, at)
	require.Error(t, err)
	require.Equal(t, 1, fired)

	// The healthy rule produced its notification and advanced.
	page, queryErr := store.Query(ctx, NotificationFilter{UserID: "alice"})
	require.NoError(t, queryErr)
	require.EqualValues(t, 1, page.Total)

	reloaded, loadErr := scheduler.GetSchedule(ctx, healthy.ID)
	require.NoError(t, loadErr)
	require.True(t, reloaded.NextTrigger.After(at))

	// The broken rule advanced too, so it cannot wedge every sweep.
	reloadedBroken, loadErr := scheduler.GetSchedule(ctx, broken.ID)
	require.NoError(t, loadErr)
	require.True(t, reloadedBroken.NextTrigger.After(at))
}

func TestUpdateSchedulePreservesNextTriggerForSameSpec(t *testing.T) {
	scheduler, _, _ := newTestScheduler(t)
	ctx := context.Background()

	schedule, err := scheduler.CreateSchedule(ctx, ScheduleInput{
		Name:        "nightly",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "0 2 * * *",
		Type:        models.TypeSystemAlert,
	})
	require.NoError(t, err)
	originalNext := schedule.NextTrigger

	updated, err := scheduler.UpdateSchedule(ctx, schedule.ID, ScheduleInput{
		Name:        "nightly-renamed",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "0 2 * * *",
		Type:        models.TypeSystemAlert,
	})
	require.NoError(t, err)
	require.Equal(t, originalNext.UTC(), updated.NextTrigger.UTC())
	require.Equal(t, "nightly-renamed", updated.Name)
}

func TestDeleteScheduleKeepsNotifications(t *testing.T) {
	base := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	scheduler, store, _ := newTestScheduler(t, WithSchedulerNow(func() time.Time { return base }))
	ctx := context.Background()

	schedule, err := scheduler.CreateSchedule(ctx, ScheduleInput{
		Name:        "one-off",
		TriggerType: models.TriggerRecurring,
		CronSpec:    "0 * * * *",
		Type:        models.TypeSystemAlert,
		Recipients:  []string{"alice"},
		Context:     map[string]any{"alert_title": "t", "alert_message": "m"},
	})
	require.NoError(t, err)

	_, err = scheduler.RunDueSchedules(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)

	require.NoError(t, scheduler.DeleteSchedule(ctx, schedule.ID))
	require.ErrorIs(t, scheduler.DeleteSchedule(ctx, schedule.ID), apperrors.ErrNotFound)

	page, err := store.Query(ctx, NotificationFilter{UserID: "alice"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
}
