package models

// DeliveryFrequency governs batching of non-urgent deliveries.
type DeliveryFrequency string

const (
	FrequencyImmediate    DeliveryFrequency = "immediate"
	FrequencyHourlyDigest DeliveryFrequency = "hourly_digest"
	FrequencyDailyDigest  DeliveryFrequency = "daily_digest"
	FrequencyMuted        DeliveryFrequency = "muted"
)

// ValidFrequency reports whether the value is a known delivery frequency.
func ValidFrequency(f DeliveryFrequency) bool {
	switch f {
	case FrequencyImmediate, FrequencyHourlyDigest, FrequencyDailyDigest, FrequencyMuted:
		return true
	}
	return false
}

// NotificationPreference holds one user's channel and timing choices for a
// single notification type. Absence of a row means the system default
// applies: every channel enabled, immediate delivery, no quiet hours.
type NotificationPreference struct {
	BaseModel

	UserID string           `gorm:"type:uuid;not null;uniqueIndex:idx_pref_user_type" json:"user_id"`
	Type   NotificationType `gorm:"type:varchar(64);not null;uniqueIndex:idx_pref_user_type" json:"type"`

	EmailEnabled bool `gorm:"default:true" json:"email_enabled"`
	PushEnabled  bool `gorm:"default:true" json:"push_enabled"`
	SMSEnabled   bool `gorm:"default:true" json:"sms_enabled"`
	InAppEnabled bool `gorm:"default:true" json:"in_app_enabled"`

	Frequency DeliveryFrequency `gorm:"type:varchar(16);default:'immediate'" json:"frequency"`

	// Quiet hours are expressed as "HH:MM" wall-clock times in Timezone.
	// Windows where start > end wrap across midnight.
	QuietHoursEnabled bool   `gorm:"default:false" json:"quiet_hours_enabled"`
	QuietHoursStart   string `gorm:"type:varchar(5)" json:"quiet_hours_start"`
	QuietHoursEnd     string `gorm:"type:varchar(5)" json:"quiet_hours_end"`
	Timezone          string `gorm:"type:varchar(64);default:'UTC'" json:"timezone"`
}
