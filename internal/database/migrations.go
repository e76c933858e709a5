package database

import (
	"gorm.io/gorm"

	"github.com/campuskit/notifier/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Notification{},
		&models.NotificationTemplate{},
		&models.NotificationPreference{},
		&models.NotificationSchedule{},
		&models.CacheEntry{},
	)
}

// SeedData installs the default templates for the core event types so a fresh
// deployment can fire events without operator setup. Existing rows win.
func SeedData(db *gorm.DB) error {
	templates := []models.NotificationTemplate{
		{
			BaseModel: models.BaseModel{ID: "tpl-assignment-due"},
			Name:      "Assignment due reminder",
			Type:      models.TypeAssignmentDue,
			Category:  models.CategoryAcademic,
			Title:     "Assignment due: {{assignment_name}}",
			Message:   "Your assignment {{assignment_name}} for {{course_name}} is due on {{due_date}}.",
			IsDefault: true,
			IsActive:  true,
		},
		{
			BaseModel: models.BaseModel{ID: "tpl-class-reminder"},
			Name:      "Class reminder",
			Type:      models.TypeClassReminder,
			Category:  models.CategorySchedule,
			Title:     "Upcoming class: {{class_name}}",
			Message:   "{{class_name}} starts at {{start_time}} in {{location}}.",
			IsDefault: true,
			IsActive:  true,
		},
		{
			BaseModel: models.BaseModel{ID: "tpl-class-scheduled"},
			Name:      "Class scheduled",
			Type:      models.TypeClassScheduled,
			Category:  models.CategorySchedule,
			Title:     "New class scheduled: {{class_name}}",
			Message:   "{{class_name}} has been scheduled for {{start_time}} in {{location}}.",
			IsDefault: true,
			IsActive:  true,
		},
		{
			BaseModel: models.BaseModel{ID: "tpl-payment-received"},
			Name:      "Payment received",
			Type:      models.TypePaymentReceived,
			Category:  models.CategoryFinancial,
			Title:     "Payment received",
			Message:   "We received your payment of {{amount}} (ref {{reference}}). Thank you!",
			IsDefault: true,
			IsActive:  true,
		},
		{
			BaseModel: models.BaseModel{ID: "tpl-payment-due"},
			Name:      "Payment due",
			Type:      models.TypePaymentDue,
			Category:  models.CategoryFinancial,
			Title:     "Payment due on {{due_date}}",
			Message:   "A payment of {{amount}} is due on {{due_date}}.",
			IsDefault: true,
			IsActive:  true,
		},
		{
			BaseModel: models.BaseModel{ID: "tpl-system-alert"},
			Name:      "System alert",
			Type:      models.TypeSystemAlert,
			Category:  models.CategorySystem,
			Title:     "{{alert_title}}",
			Message:   "{{alert_message}}",
			IsDefault: true,
			IsActive:  true,
		},
	}

	for _, tpl := range templates {
		if err := db.Where(models.NotificationTemplate{Name: tpl.Name}).
			Attrs(tpl).
			FirstOrCreate(&models.NotificationTemplate{}).Error; err != nil {
			return err
		}
	}

	return nil
}
