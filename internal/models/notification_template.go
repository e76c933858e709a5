package models

// NotificationTemplate is a reusable content blueprint. Title and Message may
// contain {{placeholder}} markers substituted at creation time.
type NotificationTemplate struct {
	BaseModel

	Name     string               `gorm:"type:varchar(128);not null;uniqueIndex" json:"name"`
	Type     NotificationType     `gorm:"type:varchar(64);index;not null" json:"type"`
	Category NotificationCategory `gorm:"type:varchar(32)" json:"category"`

	Title   string `gorm:"type:varchar(255);not null" json:"title"`
	Message string `gorm:"type:text;not null" json:"message"`

	// IsDefault marks the template the scheduler picks when an event does not
	// name an explicit template. At most one active default exists per Type.
	IsDefault bool `gorm:"default:false;index" json:"is_default"`
	IsActive  bool `gorm:"default:true;index" json:"is_active"`
}
