package models

import (
	"time"

	"gorm.io/datatypes"
)

// TriggerType distinguishes rules fired by domain code from time-based rules.
type TriggerType string

const (
	// TriggerEvent rules are invoked directly via Scheduler.FireEvent and are
	// never polled; NextTrigger stays nil.
	TriggerEvent TriggerType = "event"
	// TriggerRecurring rules fire whenever NextTrigger elapses and recompute
	// the next occurrence from CronSpec.
	TriggerRecurring TriggerType = "recurring"
)

// NotificationSchedule is a standing rule that produces notifications.
// Deactivating a schedule stops future firings but never touches already
// created notification records.
type NotificationSchedule struct {
	BaseModel

	Name        string      `gorm:"type:varchar(128);not null" json:"name"`
	TriggerType TriggerType `gorm:"type:varchar(16);not null" json:"trigger_type"`
	// CronSpec holds a standard 5-field cron expression for recurring rules.
	CronSpec string `gorm:"type:varchar(64)" json:"cron_spec,omitempty"`

	TemplateID string               `gorm:"type:uuid;not null" json:"template_id"`
	Type       NotificationType     `gorm:"type:varchar(64);not null" json:"type"`
	Category   NotificationCategory `gorm:"type:varchar(32)" json:"category"`
	Priority   NotificationPriority `gorm:"type:varchar(16);default:'medium'" json:"priority"`

	// Recipients is a JSON array of user ids the rule addresses.
	Recipients datatypes.JSON `json:"recipients,omitempty"`
	// Context is the template substitution context captured with the rule.
	Context datatypes.JSON `json:"context,omitempty"`

	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	NextTrigger   *time.Time `gorm:"index" json:"next_trigger,omitempty"`
	IsActive      bool       `gorm:"default:true;index" json:"is_active"`
}
