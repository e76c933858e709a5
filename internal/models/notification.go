package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType classifies the domain event a notification originates from.
type NotificationType string

const (
	TypeAssignmentDue   NotificationType = "assignment_due"
	TypeAssignmentGrade NotificationType = "assignment_graded"
	TypeClassReminder   NotificationType = "class_reminder"
	TypeClassScheduled  NotificationType = "class_scheduled"
	TypePaymentReceived NotificationType = "payment_received"
	TypePaymentDue      NotificationType = "payment_due"
	TypeSystemAlert     NotificationType = "system_alert"
	TypeMentorMessage   NotificationType = "mentor_message"
)

// NotificationCategory groups types for filtering and preference display.
type NotificationCategory string

const (
	CategoryAcademic  NotificationCategory = "academic"
	CategorySchedule  NotificationCategory = "schedule"
	CategoryFinancial NotificationCategory = "financial"
	CategorySystem    NotificationCategory = "system"
	CategorySocial    NotificationCategory = "social"
	CategoryReminder  NotificationCategory = "reminder"
)

// NotificationPriority orders delivery urgency. Urgent bypasses quiet hours
// and digest batching.
type NotificationPriority string

const (
	PriorityUrgent NotificationPriority = "urgent"
	PriorityHigh   NotificationPriority = "high"
	PriorityMedium NotificationPriority = "medium"
	PriorityLow    NotificationPriority = "low"
)

// NotificationStatus is the delivery-axis lifecycle state. The read/archive
// flags form an independent axis.
type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusSent      NotificationStatus = "sent"
	StatusDelivered NotificationStatus = "delivered"
	StatusFailed    NotificationStatus = "failed"
	StatusCancelled NotificationStatus = "cancelled"
)

// Terminal reports whether no further delivery-axis transition is possible.
func (s NotificationStatus) Terminal() bool {
	switch s {
	case StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ValidPriority reports whether the value is a known priority.
func ValidPriority(p NotificationPriority) bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ValidCategory reports whether the value is a known category.
func ValidCategory(c NotificationCategory) bool {
	switch c {
	case CategoryAcademic, CategorySchedule, CategoryFinancial,
		CategorySystem, CategorySocial, CategoryReminder:
		return true
	}
	return false
}

// Notification is one message instance addressed to one recipient. Content is
// rendered from a template at creation time and never re-rendered.
type Notification struct {
	BaseModel

	UserID   string               `gorm:"type:uuid;index;not null" json:"user_id"`
	Type     NotificationType     `gorm:"type:varchar(64);index;not null" json:"type"`
	Category NotificationCategory `gorm:"type:varchar(32);index" json:"category"`
	Priority NotificationPriority `gorm:"type:varchar(16);default:'medium'" json:"priority"`

	Title   string         `gorm:"type:varchar(255);not null" json:"title"`
	Message string         `gorm:"type:text" json:"message"`
	Payload datatypes.JSON `json:"payload,omitempty"`

	Status     NotificationStatus `gorm:"type:varchar(16);index;default:'pending'" json:"status"`
	FailReason string             `gorm:"type:text" json:"fail_reason,omitempty"`
	// Receipts records the per-channel outcome of the dispatch pass that
	// completed this notification.
	Receipts datatypes.JSON `json:"receipts,omitempty"`

	IsRead     bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	IsArchived bool       `gorm:"default:false;index" json:"is_archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	// ScheduledFor nil means deliver on the next dispatch pass.
	ScheduledFor *time.Time `gorm:"index" json:"scheduled_for,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
}
