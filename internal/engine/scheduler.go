package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/pkg/logger"
	"github.com/campuskit/notifier/pkg/metrics"
	apperrors "github.com/campuskit/notifier/pkg/errors"
)

// requiredContextKeys lists the context every event of a type must carry.
// Types absent from the map accept any context.
var requiredContextKeys = map[models.NotificationType][]string{
	models.TypeAssignmentDue:   {"assignment_name", "due_date"},
	models.TypeAssignmentGrade: {"assignment_name", "grade"},
	models.TypeClassReminder:   {"class_name", "start_time"},
	models.TypeClassScheduled:  {"class_name", "start_time"},
	models.TypePaymentReceived: {"amount"},
	models.TypePaymentDue:      {"amount", "due_date"},
}

// Scheduler turns domain events and standing rules into pending notifications.
// It never touches delivery; the dispatcher picks up whatever it creates.
type Scheduler struct {
	store     *NotificationStore
	templates *TemplateRegistry
	db        *gorm.DB
	now       func() time.Time
	log       *zap.Logger
}

// SchedulerOption customises the Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerNow overrides the clock, primarily for testing.
func WithSchedulerNow(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler constructs a Scheduler.
func NewScheduler(db *gorm.DB, store *NotificationStore, templates *TemplateRegistry, opts ...SchedulerOption) (*Scheduler, error) {
	if db == nil || store == nil || templates == nil {
		return nil, errors.New("scheduler: db, store and templates are required")
	}
	s := &Scheduler{
		store:     store,
		templates: templates,
		db:        db,
		now:       time.Now,
		log:       logger.WithModule("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Event describes one occurrence in the wider system that should notify users.
type Event struct {
	Type         models.NotificationType
	Category     models.NotificationCategory
	Priority     models.NotificationPriority
	Recipients   []string
	Context      map[string]any
	ScheduledFor *time.Time
	// TemplateID selects a specific template; empty means the type's default.
	TemplateID string
}

// FireResult reports the outcome of one FireEvent call.
type FireResult struct {
	Created []models.Notification
	// Failed maps recipient ids to the error that prevented their record.
	Failed map[string]error
}

// FireEvent materialises one notification per recipient. A failure for one
// recipient never blocks the others; the combined error carries every
// per-recipient failure alongside the partial result.
func (s *Scheduler) FireEvent(ctx context.Context, event Event) (*FireResult, error) {
	ctx = ensureContext(ctx)

	if len(event.Recipients) == 0 {
		return nil, apperrors.NewValidation("at least one recipient is required")
	}
	if err := validateEventContext(event.Type, event.Context); err != nil {
		return nil, err
	}

	template, err := s.resolveTemplate(ctx, event)
	if err != nil {
		return nil, err
	}

	rendered := s.templates.Render(template, event.Context)
	if len(rendered.Unresolved) > 0 {
		s.log.Warn("template placeholders unresolved",
			zap.String("template", template.Name),
			zap.Strings("placeholders", rendered.Unresolved))
	}

	category := event.Category
	if category == "" {
		category = template.Category
	}
	priority := event.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}

	result := &FireResult{Failed: make(map[string]error)}
	var combined error
	seen := make(map[string]struct{}, len(event.Recipients))
	for _, recipient := range event.Recipients {
		recipient = strings.TrimSpace(recipient)
		if recipient == "" {
			continue
		}
		if _, dup := seen[recipient]; dup {
			continue
		}
		seen[recipient] = struct{}{}

		notification, createErr := s.store.Create(ctx, CreateNotificationInput{
			UserID:       recipient,
			Type:         event.Type,
			Category:     category,
			Priority:     priority,
			Title:        rendered.Title,
			Message:      rendered.Message,
			Payload:      event.Context,
			ScheduledFor: event.ScheduledFor,
		})
		if createErr != nil {
			result.Failed[recipient] = createErr
			combined = multierr.Append(combined, fmt.Errorf("recipient %s: %w", recipient, createErr))
			metrics.ScheduleFirings.WithLabelValues("recipient_error").Inc()
			continue
		}
		result.Created = append(result.Created, *notification)
	}

	if len(result.Created) == 0 && combined != nil {
		return result, combined
	}
	return result, combined
}

func (s *Scheduler) resolveTemplate(ctx context.Context, event Event) (*models.NotificationTemplate, error) {
	if event.TemplateID != "" {
		template, err := s.templates.Get(ctx, event.TemplateID)
		if err != nil {
			return nil, err
		}
		if !template.IsActive {
			return nil, apperrors.NewValidation(fmt.Sprintf("template %q is inactive", template.Name))
		}
		return template, nil
	}

	template, err := s.templates.GetDefault(ctx, event.Type)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NewValidation(fmt.Sprintf("no default template for type %q", event.Type))
	}
	return template, err
}

func validateEventContext(notificationType models.NotificationType, context map[string]any) error {
	if strings.TrimSpace(string(notificationType)) == "" {
		return apperrors.NewValidation("notification type is required")
	}

	required, ok := requiredContextKeys[notificationType]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range required {
		if _, present := context[key]; !present {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return apperrors.NewValidation(fmt.Sprintf(
			"type %q requires context keys: %s", notificationType, strings.Join(missing, ", ")))
	}
	return nil
}

// ScheduleInput carries the mutable attributes of a standing rule.
type ScheduleInput struct {
	Name        string
	TriggerType models.TriggerType
	CronSpec    string
	TemplateID  string
	Type        models.NotificationType
	Category    models.NotificationCategory
	Priority    models.NotificationPriority
	Recipients  []string
	Context     map[string]any
	IsActive    *bool
}

// CreateSchedule registers a standing rule. Recurring rules must carry a
// parseable cron expression; their first NextTrigger is computed immediately.
func (s *Scheduler) CreateSchedule(ctx context.Context, input ScheduleInput) (*models.NotificationSchedule, error) {
	ctx = ensureContext(ctx)

	schedule, err := s.buildSchedule(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(schedule).Error; err != nil {
		return nil, fmt.Errorf("scheduler: create schedule: %w", err)
	}
	return schedule, nil
}

// UpdateSchedule replaces the mutable attributes of a rule. Changing the cron
// expression recomputes NextTrigger from now.
func (s *Scheduler) UpdateSchedule(ctx context.Context, id string, input ScheduleInput) (*models.NotificationSchedule, error) {
	ctx = ensureContext(ctx)

	existing, err := s.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.buildSchedule(ctx, input)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.LastTriggered = existing.LastTriggered
	if updated.TriggerType == models.TriggerRecurring && existing.CronSpec == updated.CronSpec {
		updated.NextTrigger = existing.NextTrigger
	}

	if err := s.db.WithContext(ctx).Save(updated).Error; err != nil {
		return nil, fmt.Errorf("scheduler: update schedule: %w", err)
	}
	return updated, nil
}

// GetSchedule loads a rule by id.
func (s *Scheduler) GetSchedule(ctx context.Context, id string) (*models.NotificationSchedule, error) {
	ctx = ensureContext(ctx)

	var schedule models.NotificationSchedule
	err := s.db.WithContext(ctx).Take(&schedule, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduler: load schedule: %w", err)
	}
	return &schedule, nil
}

// ListSchedules returns every rule, active first then by name.
func (s *Scheduler) ListSchedules(ctx context.Context) ([]models.NotificationSchedule, error) {
	ctx = ensureContext(ctx)

	var schedules []models.NotificationSchedule
	err := s.db.WithContext(ctx).
		Order("is_active DESC, name ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("scheduler: list schedules: %w", err)
	}
	return schedules, nil
}

// DeleteSchedule removes a rule. Notifications it already created are kept.
func (s *Scheduler) DeleteSchedule(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.NotificationSchedule{})
	if result.Error != nil {
		return fmt.Errorf("scheduler: delete schedule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// SetScheduleActive toggles a rule. Reactivating a recurring rule recomputes
// NextTrigger so a long-dormant rule does not fire for missed occurrences.
func (s *Scheduler) SetScheduleActive(ctx context.Context, id string, active bool) (*models.NotificationSchedule, error) {
	ctx = ensureContext(ctx)

	schedule, err := s.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}

	schedule.IsActive = active
	if active && schedule.TriggerType == models.TriggerRecurring {
		next, parseErr := nextCronTime(schedule.CronSpec, s.now())
		if parseErr != nil {
			return nil, apperrors.NewValidation(fmt.Sprintf("invalid cron expression %q", schedule.CronSpec))
		}
		schedule.NextTrigger = &next
	}

	if err := s.db.WithContext(ctx).Save(schedule).Error; err != nil {
		return nil, fmt.Errorf("scheduler: toggle schedule: %w", err)
	}
	return schedule, nil
}

// RunDueSchedules fires every active recurring rule whose NextTrigger has
// elapsed. One broken rule never blocks the rest of the sweep.
func (s *Scheduler) RunDueSchedules(ctx context.Context, now time.Time) (int, error) {
	ctx = ensureContext(ctx)

	var due []models.NotificationSchedule
	err := s.db.WithContext(ctx).
		Where("trigger_type = ? AND is_active = ? AND next_trigger IS NOT NULL AND next_trigger <= ?",
			models.TriggerRecurring, true, now).
		Order("next_trigger ASC").
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("scheduler: due query: %w", err)
	}

	fired := 0
	var combined error
	for i := range due {
		schedule := &due[i]
		if fireErr := s.fireSchedule(ctx, schedule, now); fireErr != nil {
			combined = multierr.Append(combined, fmt.Errorf("schedule %s: %w", schedule.ID, fireErr))
			metrics.ScheduleFirings.WithLabelValues("error").Inc()
			s.log.Error("schedule firing failed",
				zap.String("schedule_id", schedule.ID),
				zap.String("name", schedule.Name),
				zap.Error(fireErr))
			continue
		}
		fired++
		metrics.ScheduleFirings.WithLabelValues("fired").Inc()
	}
	return fired, combined
}

func (s *Scheduler) fireSchedule(ctx context.Context, schedule *models.NotificationSchedule, now time.Time) error {
	recipients, err := decodeRecipients(schedule.Recipients)
	if err != nil {
		return fmt.Errorf("decode recipients: %w", err)
	}

	var eventContext map[string]any
	if len(schedule.Context) > 0 {
		if err := json.Unmarshal(schedule.Context, &eventContext); err != nil {
			return fmt.Errorf("decode context: %w", err)
		}
	}

	_, fireErr := s.FireEvent(ctx, Event{
		Type:       schedule.Type,
		Category:   schedule.Category,
		Priority:   schedule.Priority,
		Recipients: recipients,
		Context:    eventContext,
		TemplateID: schedule.TemplateID,
	})

	// Advance the rule even when firing failed so a permanently broken rule
	// cannot wedge the sweep on every pass.
	next, parseErr := nextCronTime(schedule.CronSpec, now)
	updates := map[string]any{"last_triggered": now}
	if parseErr == nil {
		updates["next_trigger"] = next
	} else {
		updates["next_trigger"] = nil
		updates["is_active"] = false
	}
	if dbErr := s.db.WithContext(ctx).Model(schedule).Updates(updates).Error; dbErr != nil {
		return multierr.Append(fireErr, fmt.Errorf("advance schedule: %w", dbErr))
	}
	return fireErr
}

func (s *Scheduler) buildSchedule(ctx context.Context, input ScheduleInput) (*models.NotificationSchedule, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidation("schedule name is required")
	}
	if input.TriggerType != models.TriggerEvent && input.TriggerType != models.TriggerRecurring {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown trigger type %q", input.TriggerType))
	}
	if strings.TrimSpace(string(input.Type)) == "" {
		return nil, apperrors.NewValidation("notification type is required")
	}
	if input.Category != "" && !models.ValidCategory(input.Category) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown category %q", input.Category))
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.ValidPriority(priority) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown priority %q", priority))
	}

	if input.TemplateID != "" {
		if _, err := s.templates.Get(ctx, input.TemplateID); err != nil {
			return nil, err
		}
	} else if _, err := s.templates.GetDefault(ctx, input.Type); err != nil {
		return nil, apperrors.NewValidation(fmt.Sprintf("no template available for type %q", input.Type))
	}

	schedule := &models.NotificationSchedule{
		Name:        strings.TrimSpace(input.Name),
		TriggerType: input.TriggerType,
		TemplateID:  input.TemplateID,
		Type:        input.Type,
		Category:    input.Category,
		Priority:    priority,
		IsActive:    true,
	}
	if input.IsActive != nil {
		schedule.IsActive = *input.IsActive
	}

	if len(input.Recipients) > 0 {
		data, err := json.Marshal(input.Recipients)
		if err != nil {
			return nil, fmt.Errorf("scheduler: marshal recipients: %w", err)
		}
		schedule.Recipients = datatypes.JSON(data)
	}
	if input.Context != nil {
		data, err := json.Marshal(input.Context)
		if err != nil {
			return nil, fmt.Errorf("scheduler: marshal context: %w", err)
		}
		schedule.Context = datatypes.JSON(data)
	}

	if input.TriggerType == models.TriggerRecurring {
		next, err := nextCronTime(input.CronSpec, s.now())
		if err != nil {
			return nil, apperrors.NewValidation(fmt.Sprintf("invalid cron expression %q", input.CronSpec))
		}
		schedule.CronSpec = strings.TrimSpace(input.CronSpec)
		schedule.NextTrigger = &next
	}

	return schedule, nil
}

func nextCronTime(spec string, after time.Time) (time.Time, error) {
	parsed, err := cron.ParseStandard(strings.TrimSpace(spec))
	if err != nil {
		return time.Time{}, err
	}
	return parsed.Next(after), nil
}

func decodeRecipients(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var recipients []string
	if err := json.Unmarshal(raw, &recipients); err != nil {
		return nil, err
	}
	return recipients, nil
}
