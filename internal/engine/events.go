package engine

import (
	"context"
	"time"

	"github.com/campuskit/notifier/internal/models"
)

// The helpers below wrap FireEvent for the campus events that fire most
// often, so callers pass typed fields instead of assembling context maps.

// AssignmentDueEvent announces an upcoming assignment deadline.
type AssignmentDueEvent struct {
	Recipients     []string
	AssignmentName string
	CourseName     string
	DueDate        time.Time
}

// FireAssignmentDue notifies students about an approaching deadline.
func (s *Scheduler) FireAssignmentDue(ctx context.Context, event AssignmentDueEvent) (*FireResult, error) {
	return s.FireEvent(ctx, Event{
		Type:       models.TypeAssignmentDue,
		Category:   models.CategoryAcademic,
		Priority:   models.PriorityHigh,
		Recipients: event.Recipients,
		Context: map[string]any{
			"assignment_name": event.AssignmentName,
			"course_name":     event.CourseName,
			"due_date":        event.DueDate.Format("Mon, 2 Jan 15:04"),
		},
	})
}

// ClassEvent announces a scheduled or imminent class session.
type ClassEvent struct {
	Recipients []string
	ClassName  string
	Location   string
	StartTime  time.Time
	// Reminder distinguishes the pre-class nudge from the initial scheduling
	// announcement.
	Reminder bool
}

// FireClassEvent notifies participants about a class session.
func (s *Scheduler) FireClassEvent(ctx context.Context, event ClassEvent) (*FireResult, error) {
	notificationType := models.TypeClassScheduled
	priority := models.PriorityMedium
	if event.Reminder {
		notificationType = models.TypeClassReminder
		priority = models.PriorityHigh
	}
	return s.FireEvent(ctx, Event{
		Type:       notificationType,
		Category:   models.CategorySchedule,
		Priority:   priority,
		Recipients: event.Recipients,
		Context: map[string]any{
			"class_name": event.ClassName,
			"location":   event.Location,
			"start_time": event.StartTime.Format("Mon, 2 Jan 15:04"),
		},
	})
}

// PaymentEvent announces a balance change or an upcoming payment deadline.
type PaymentEvent struct {
	Recipients []string
	Amount     string
	Reference  string
	// DueDate set marks this as a payment-due notice instead of a receipt.
	DueDate *time.Time
}

// FirePaymentEvent notifies a user about payment activity. Payment-due
// notices are urgent so they bypass quiet hours and digests.
func (s *Scheduler) FirePaymentEvent(ctx context.Context, event PaymentEvent) (*FireResult, error) {
	eventContext := map[string]any{
		"amount":    event.Amount,
		"reference": event.Reference,
	}
	notificationType := models.TypePaymentReceived
	priority := models.PriorityMedium
	if event.DueDate != nil {
		notificationType = models.TypePaymentDue
		priority = models.PriorityUrgent
		eventContext["due_date"] = event.DueDate.Format("Mon, 2 Jan 2006")
	}
	return s.FireEvent(ctx, Event{
		Type:       notificationType,
		Category:   models.CategoryFinancial,
		Priority:   priority,
		Recipients: event.Recipients,
		Context:    eventContext,
	})
}
