package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/campuskit/notifier/internal/cache"
	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/internal/transport"
	apperrors "github.com/campuskit/notifier/pkg/errors"
)

// PreferenceStore resolves per-user, per-type delivery preferences. Resolution
// happens on every dispatch, so lookups are cached; Upsert invalidates the
// cache synchronously before returning.
type PreferenceStore struct {
	db       *gorm.DB
	cache    cache.Store
	cacheTTL time.Duration
}

// NewPreferenceStore constructs a PreferenceStore. The cache is optional.
func NewPreferenceStore(db *gorm.DB, store cache.Store, ttl time.Duration) (*PreferenceStore, error) {
	if db == nil {
		return nil, errors.New("preference store: db is required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PreferenceStore{db: db, cache: store, cacheTTL: ttl}, nil
}

// defaultPreference is what a user gets when they never saved anything.
func defaultPreference(userID string, notificationType models.NotificationType) *models.NotificationPreference {
	return &models.NotificationPreference{
		UserID:       userID,
		Type:         notificationType,
		EmailEnabled: true,
		PushEnabled:  true,
		SMSEnabled:   true,
		InAppEnabled: true,
		Frequency:    models.FrequencyImmediate,
		Timezone:     "UTC",
	}
}

// Get resolves the effective preference for a user and type. A missing row
// yields the system default rather than an error.
func (p *PreferenceStore) Get(ctx context.Context, userID string, notificationType models.NotificationType) (*models.NotificationPreference, error) {
	ctx = ensureContext(ctx)

	if cached := p.cached(ctx, userID, notificationType); cached != nil {
		return cached, nil
	}

	var pref models.NotificationPreference
	err := p.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, notificationType).
		Take(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultPreference(userID, notificationType), nil
	}
	if err != nil {
		return nil, fmt.Errorf("preference store: load: %w", err)
	}

	p.cachePreference(ctx, &pref)
	return &pref, nil
}

// ListForUser returns every stored preference row for a user.
func (p *PreferenceStore) ListForUser(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
	ctx = ensureContext(ctx)

	var prefs []models.NotificationPreference
	err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("type ASC").
		Find(&prefs).Error
	if err != nil {
		return nil, fmt.Errorf("preference store: list: %w", err)
	}
	return prefs, nil
}

// PreferenceInput carries the mutable attributes of a preference row.
type PreferenceInput struct {
	UserID            string
	Type              models.NotificationType
	EmailEnabled      bool
	PushEnabled       bool
	SMSEnabled        bool
	InAppEnabled      bool
	Frequency         models.DeliveryFrequency
	QuietHoursEnabled bool
	QuietHoursStart   string
	QuietHoursEnd     string
	Timezone          string
}

// Upsert creates or replaces the preference row for (user, type).
func (p *PreferenceStore) Upsert(ctx context.Context, input PreferenceInput) (*models.NotificationPreference, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewValidation("user id is required")
	}
	if strings.TrimSpace(string(input.Type)) == "" {
		return nil, apperrors.NewValidation("notification type is required")
	}

	frequency := input.Frequency
	if frequency == "" {
		frequency = models.FrequencyImmediate
	}
	if !models.ValidFrequency(frequency) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown frequency %q", frequency))
	}

	timezone := strings.TrimSpace(input.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown timezone %q", timezone))
	}

	if input.QuietHoursEnabled {
		if _, err := parseClock(input.QuietHoursStart); err != nil {
			return nil, apperrors.NewValidation("quiet_hours_start must be HH:MM")
		}
		if _, err := parseClock(input.QuietHoursEnd); err != nil {
			return nil, apperrors.NewValidation("quiet_hours_end must be HH:MM")
		}
	}

	pref := models.NotificationPreference{
		UserID:            userID,
		Type:              input.Type,
		EmailEnabled:      input.EmailEnabled,
		PushEnabled:       input.PushEnabled,
		SMSEnabled:        input.SMSEnabled,
		InAppEnabled:      input.InAppEnabled,
		Frequency:         frequency,
		QuietHoursEnabled: input.QuietHoursEnabled,
		QuietHoursStart:   input.QuietHoursStart,
		QuietHoursEnd:     input.QuietHoursEnd,
		Timezone:          timezone,
	}

	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"email_enabled", "push_enabled", "sms_enabled", "in_app_enabled",
				"frequency", "quiet_hours_enabled", "quiet_hours_start",
				"quiet_hours_end", "timezone", "updated_at",
			}),
		}).
		Create(&pref).Error
	if err != nil {
		return nil, fmt.Errorf("preference store: upsert: %w", err)
	}

	p.invalidate(ctx, userID, input.Type)
	return &pref, nil
}

// Delete removes a stored preference row, reverting the user to defaults.
func (p *PreferenceStore) Delete(ctx context.Context, userID string, notificationType models.NotificationType) error {
	ctx = ensureContext(ctx)

	result := p.db.WithContext(ctx).
		Where("user_id = ? AND type = ?", userID, notificationType).
		Delete(&models.NotificationPreference{})
	if result.Error != nil {
		return fmt.Errorf("preference store: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	p.invalidate(ctx, userID, notificationType)
	return nil
}

// ChannelEnabled reports whether a delivery channel is switched on.
func ChannelEnabled(pref *models.NotificationPreference, channel transport.Channel) bool {
	switch channel {
	case transport.ChannelEmail:
		return pref.EmailEnabled
	case transport.ChannelPush:
		return pref.PushEnabled
	case transport.ChannelSMS:
		return pref.SMSEnabled
	case transport.ChannelInApp:
		return pref.InAppEnabled
	}
	return false
}

// EnabledChannels lists the channels the preference allows, in the stable
// order email, push, sms, in_app.
func EnabledChannels(pref *models.NotificationPreference) []transport.Channel {
	var channels []transport.Channel
	for _, channel := range transport.AllChannels() {
		if ChannelEnabled(pref, channel) {
			channels = append(channels, channel)
		}
	}
	return channels
}

// InQuietHours reports whether the instant falls inside the preference's
// quiet window, evaluated on the wall clock of the preference's timezone.
// Windows that wrap midnight (start > end) cover [start, 24h) plus [0, end).
// An unknown timezone fails open so a bad row never silences delivery.
func InQuietHours(pref *models.NotificationPreference, at time.Time) bool {
	if pref == nil || !pref.QuietHoursEnabled {
		return false
	}

	start, err := parseClock(pref.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := parseClock(pref.QuietHoursEnd)
	if err != nil {
		return false
	}
	if start == end {
		return false
	}

	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := at.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// QuietHoursEnd returns the next instant at which the quiet window closes.
// The result is the window end on the current or following day in the
// preference's timezone, converted back to the caller's reference.
func QuietHoursEnd(pref *models.NotificationPreference, at time.Time) time.Time {
	end, err := parseClock(pref.QuietHoursEnd)
	if err != nil {
		return at
	}

	loc, locErr := time.LoadLocation(pref.Timezone)
	if locErr != nil {
		loc = time.UTC
	}
	local := at.In(loc)

	candidate := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// parseClock converts "HH:MM" into minutes past midnight.
func parseClock(value string) (int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

func (p *PreferenceStore) cacheKey(userID string, notificationType models.NotificationType) string {
	return fmt.Sprintf("preference:%s:%s", userID, notificationType)
}

func (p *PreferenceStore) cached(ctx context.Context, userID string, notificationType models.NotificationType) *models.NotificationPreference {
	if p.cache == nil {
		return nil
	}
	raw, ok, err := p.cache.Get(ctx, p.cacheKey(userID, notificationType))
	if err != nil || !ok {
		return nil
	}
	var pref models.NotificationPreference
	if err := json.Unmarshal(raw, &pref); err != nil {
		return nil
	}
	return &pref
}

func (p *PreferenceStore) cachePreference(ctx context.Context, pref *models.NotificationPreference) {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(pref)
	if err != nil {
		return
	}
	_ = p.cache.Set(ctx, p.cacheKey(pref.UserID, pref.Type), data, p.cacheTTL)
}

func (p *PreferenceStore) invalidate(ctx context.Context, userID string, notificationType models.NotificationType) {
	if p.cache == nil {
		return
	}
	_ = p.cache.Delete(ctx, p.cacheKey(userID, notificationType))
}
