package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/pkg/metrics"
	apperrors "github.com/campuskit/notifier/pkg/errors"
)

// defaultSkewTolerance is how far in the past ScheduledFor may lie before
// Create rejects it. Requests inside the tolerance use immediate semantics.
const defaultSkewTolerance = time.Minute

// NotificationStore owns the durable notification records and enforces the
// delivery-axis lifecycle. Every mutation is an atomic conditional update
// keyed by id and current status, so concurrent dispatcher instances cannot
// double-deliver.
type NotificationStore struct {
	db   *gorm.DB
	now  func() time.Time
	skew time.Duration
}

// StoreOption customises the NotificationStore.
type StoreOption func(*NotificationStore)

// WithStoreNow overrides the clock, primarily for testing.
func WithStoreNow(now func() time.Time) StoreOption {
	return func(s *NotificationStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSkewTolerance adjusts the allowed clock skew for past ScheduledFor values.
func WithSkewTolerance(d time.Duration) StoreOption {
	return func(s *NotificationStore) {
		if d > 0 {
			s.skew = d
		}
	}
}

// NewNotificationStore constructs a NotificationStore.
func NewNotificationStore(db *gorm.DB, opts ...StoreOption) (*NotificationStore, error) {
	if db == nil {
		return nil, errors.New("notification store: db is required")
	}
	store := &NotificationStore{
		db:   db,
		now:  time.Now,
		skew: defaultSkewTolerance,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID       string
	Type         models.NotificationType
	Category     models.NotificationCategory
	Priority     models.NotificationPriority
	Title        string
	Message      string
	Payload      map[string]any
	ScheduledFor *time.Time
}

// Create persists a new notification in pending state.
func (s *NotificationStore) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewValidation("user id is required")
	}
	if strings.TrimSpace(string(input.Type)) == "" {
		return nil, apperrors.NewValidation("notification type is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.NewValidation("title is required")
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

	if input.ScheduledFor != nil {
		if s.now().Sub(*input.ScheduledFor) > s.skew {
			return nil, apperrors.NewValidation("scheduled_for is in the past; use immediate delivery instead")
		}
	}

	notification := models.Notification{
		UserID:       userID,
		Type:         input.Type,
		Category:     input.Category,
		Priority:     priority,
		Title:        strings.TrimSpace(input.Title),
		Message:      strings.TrimSpace(input.Message),
		Status:       models.StatusPending,
		ScheduledFor: input.ScheduledFor,
	}

	if input.Payload != nil {
		data, err := json.Marshal(input.Payload)
		if err != nil {
			return nil, fmt.Errorf("notification store: marshal payload: %w", err)
		}
		notification.Payload = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification store: create: %w", err)
	}

	metrics.NotificationsCreated.WithLabelValues(string(notification.Type)).Inc()
	return &notification, nil
}

// Get loads a single notification by id.
func (s *NotificationStore) Get(ctx context.Context, id string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	err := s.db.WithContext(ctx).Take(&notification, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notification store: load: %w", err)
	}
	return &notification, nil
}

// MarkSent claims a pending notification for dispatch. The conditional update
// is the claim: a second worker racing on the same record sees zero rows.
func (s *NotificationStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	return s.transition(ctx, id, []models.NotificationStatus{models.StatusPending}, map[string]any{
		"status":  models.StatusSent,
		"sent_at": at,
	})
}

// ChannelReceipt records the outcome of one channel's dispatch attempt.
type ChannelReceipt struct {
	Channel  string    `json:"channel"`
	OK       bool      `json:"ok"`
	Attempts int       `json:"attempts"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// MarkDelivered completes a sent notification successfully.
func (s *NotificationStore) MarkDelivered(ctx context.Context, id string, at time.Time, receipts []ChannelReceipt) error {
	updates := map[string]any{
		"status":       models.StatusDelivered,
		"delivered_at": at,
	}
	if data, err := marshalReceipts(receipts); err == nil && data != nil {
		updates["receipts"] = data
	}
	return s.transition(ctx, id, []models.NotificationStatus{models.StatusSent}, updates)
}

// MarkFailed records a terminal delivery failure. Failure is reachable from
// sent (all channels exhausted) and directly from pending (no sink bound).
func (s *NotificationStore) MarkFailed(ctx context.Context, id string, at time.Time, reason string, receipts []ChannelReceipt) error {
	updates := map[string]any{
		"status":      models.StatusFailed,
		"failed_at":   at,
		"fail_reason": strings.TrimSpace(reason),
	}
	if data, err := marshalReceipts(receipts); err == nil && data != nil {
		updates["receipts"] = data
	}
	return s.transition(ctx, id, []models.NotificationStatus{models.StatusSent, models.StatusPending}, updates)
}

// Cancel withdraws a notification that has not been claimed for dispatch.
func (s *NotificationStore) Cancel(ctx context.Context, id string) error {
	return s.transition(ctx, id, []models.NotificationStatus{models.StatusPending}, map[string]any{
		"status": models.StatusCancelled,
	})
}

// MarkRead flags a notification the recipient has seen. A notification that
// never reached the user cannot be read.
func (s *NotificationStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	return s.transition(ctx, id, []models.NotificationStatus{models.StatusSent, models.StatusDelivered}, map[string]any{
		"is_read": true,
		"read_at": at,
	})
}

// MarkUnread clears the read flag.
func (s *NotificationStore) MarkUnread(ctx context.Context, id string) error {
	return s.transition(ctx, id, []models.NotificationStatus{models.StatusSent, models.StatusDelivered}, map[string]any{
		"is_read": false,
		"read_at": nil,
	})
}

// MarkArchived archives a notification. Allowed in any delivery state.
func (s *NotificationStore) MarkArchived(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, map[string]any{
		"is_archived": true,
		"archived_at": at,
	})
}

// Unarchive clears the archive flag.
func (s *NotificationStore) Unarchive(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{
		"is_archived": false,
		"archived_at": nil,
	})
}

// Delete removes a notification permanently. This is a privacy operation,
// not a lifecycle step, so it is allowed from any state.
func (s *NotificationStore) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification store: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// transition applies updates only when the record is in one of the expected
// delivery states, distinguishing missing records from lifecycle violations.
func (s *NotificationStore) transition(ctx context.Context, id string, from []models.NotificationStatus, updates map[string]any) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("notification store: transition: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return apperrors.NewInvalidTransition(fmt.Sprintf("notification is %s", current.Status))
}

func (s *NotificationStore) update(ctx context.Context, id string, updates map[string]any) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("notification store: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DueForDispatch returns pending notifications whose scheduled time has
// arrived, oldest first.
func (s *NotificationStore) DueForDispatch(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 100
	}

	var rows []models.Notification
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusPending).
		Where("scheduled_for IS NULL OR scheduled_for <= ?", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("notification store: due query: %w", err)
	}
	return rows, nil
}

func marshalReceipts(receipts []ChannelReceipt) (datatypes.JSON, error) {
	if len(receipts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(receipts)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
