package engine

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/models"
	apperrors "github.com/campuskit/notifier/pkg/errors"
)

// NotificationFilter narrows a listing. Zero values mean "no constraint".
type NotificationFilter struct {
	UserID   string
	Type     models.NotificationType
	Category models.NotificationCategory
	Priority models.NotificationPriority
	Status   models.NotificationStatus
	Unread   *bool
	Archived *bool
	Search   string
	SortBy   string
	SortDesc bool
	Page     int
	PerPage  int
}

// NotificationPage is one page of results plus the unfiltered-by-page total.
type NotificationPage struct {
	Items   []models.Notification
	Total   int64
	Page    int
	PerPage int
}

func applyFilter(query *gorm.DB, filter NotificationFilter) *gorm.DB {
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Unread != nil {
		query = query.Where("is_read = ?", !*filter.Unread)
	}
	if filter.Archived != nil {
		query = query.Where("is_archived = ?", *filter.Archived)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(message) LIKE ?", pattern, pattern)
	}
	return query
}

var sortColumns = map[string]string{
	"created_at":   "created_at",
	"scheduled_at": "scheduled_for",
	"priority":     "priority",
	"status":       "status",
}

// Query lists notifications matching the filter with stable pagination.
func (s *NotificationStore) Query(ctx context.Context, filter NotificationFilter) (*NotificationPage, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Notification{})
	query = applyFilter(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("notification store: count: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 200 {
		perPage = 200
	}

	column, ok := sortColumns[filter.SortBy]
	if filter.SortBy != "" && !ok {
		return nil, apperrors.NewValidation(fmt.Sprintf("cannot sort by %q", filter.SortBy))
	}
	if column == "" {
		column = "created_at"
		filter.SortDesc = true
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	var rows []models.Notification
	err := query.
		Order(fmt.Sprintf("%s %s", column, direction)).
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("notification store: list: %w", err)
	}

	return &NotificationPage{Items: rows, Total: total, Page: page, PerPage: perPage}, nil
}

// MarkAllRead flags every sent or delivered notification for a user as read
// and reports how many rows changed.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ? AND status IN ?", userID, false,
			[]models.NotificationStatus{models.StatusSent, models.StatusDelivered}).
		Updates(map[string]any{
			"is_read": true,
			"read_at": s.now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("notification store: mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UnreadCount returns the number of unread, unarchived notifications that
// have reached the user.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ? AND is_archived = ? AND status IN ?",
			userID, false, false,
			[]models.NotificationStatus{models.StatusSent, models.StatusDelivered}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("notification store: unread count: %w", err)
	}
	return count, nil
}

// DeliveryStats summarises lifecycle outcomes for a scope of notifications.
type DeliveryStats struct {
	Total        int64              `json:"total"`
	ByStatus     map[string]int64   `json:"by_status"`
	ByType       map[string]int64   `json:"by_type"`
	Read         int64              `json:"read"`
	DeliveryRate float64            `json:"delivery_rate"`
	ReadRate     float64            `json:"read_rate"`
}

// ComputeStats aggregates counts for a user, or globally when userID is empty.
// Cancelled notifications never count against delivery rate, and read rate is
// taken over delivered notifications only.
func (s *NotificationStore) ComputeStats(ctx context.Context, userID string) (*DeliveryStats, error) {
	ctx = ensureContext(ctx)

	scope := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Notification{})
		if strings.TrimSpace(userID) != "" {
			q = q.Where("user_id = ?", userID)
		}
		return q
	}

	stats := &DeliveryStats{
		ByStatus: make(map[string]int64),
		ByType:   make(map[string]int64),
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var statusRows []bucket
	if err := scope().Select("status AS key, COUNT(*) AS count").Group("status").Scan(&statusRows).Error; err != nil {
		return nil, fmt.Errorf("notification store: stats by status: %w", err)
	}
	for _, row := range statusRows {
		stats.ByStatus[row.Key] = row.Count
		stats.Total += row.Count
	}

	var typeRows []bucket
	if err := scope().Select("type AS key, COUNT(*) AS count").Group("type").Scan(&typeRows).Error; err != nil {
		return nil, fmt.Errorf("notification store: stats by type: %w", err)
	}
	for _, row := range typeRows {
		stats.ByType[row.Key] = row.Count
	}

	if err := scope().Where("is_read = ?", true).Count(&stats.Read).Error; err != nil {
		return nil, fmt.Errorf("notification store: stats read count: %w", err)
	}

	sent := stats.ByStatus[string(models.StatusSent)]
	delivered := stats.ByStatus[string(models.StatusDelivered)]
	failed := stats.ByStatus[string(models.StatusFailed)]
	if attempted := sent + delivered + failed; attempted > 0 {
		stats.DeliveryRate = float64(delivered) / float64(attempted)
	}
	if delivered > 0 {
		var readDelivered int64
		err := scope().Where("is_read = ? AND status = ?", true, models.StatusDelivered).Count(&readDelivered).Error
		if err != nil {
			return nil, fmt.Errorf("notification store: stats read rate: %w", err)
		}
		stats.ReadRate = float64(readDelivered) / float64(delivered)
	}

	return stats, nil
}
