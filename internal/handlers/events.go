package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/notifier/internal/engine"
	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/pkg/errors"
	"github.com/campuskit/notifier/pkg/response"
)

// EventHandler accepts domain events from upstream services and turns them
// into per-recipient notifications through the scheduler.
type EventHandler struct {
	scheduler *engine.Scheduler
}

// NewEventHandler constructs an event handler.
func NewEventHandler(scheduler *engine.Scheduler) (*EventHandler, error) {
	if scheduler == nil {
		return nil, errors.New("HANDLER_INIT", "scheduler is required", http.StatusInternalServerError)
	}
	return &EventHandler{scheduler: scheduler}, nil
}

type fireEventRequest struct {
	Type         string         `json:"type" validate:"required"`
	Category     string         `json:"category"`
	Priority     string         `json:"priority"`
	Recipients   []string       `json:"recipients" validate:"required,min=1"`
	Context      map[string]any `json:"context"`
	ScheduledFor *time.Time     `json:"scheduled_for"`
	TemplateID   string         `json:"template_id"`
}

// Fire renders the event's template and creates one notification per
// recipient. Recipients that fail are reported individually; the rest are
// still created.
func (h *EventHandler) Fire(c *gin.Context) {
	var req fireEventRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.scheduler.FireEvent(requestContext(c), engine.Event{
		Type:         models.NotificationType(req.Type),
		Category:     models.NotificationCategory(req.Category),
		Priority:     models.NotificationPriority(req.Priority),
		Recipients:   req.Recipients,
		Context:      req.Context,
		ScheduledFor: req.ScheduledFor,
		TemplateID:   req.TemplateID,
	})
	if result == nil {
		response.Error(c, err)
		return
	}
	respondFireResult(c, result)
}

type assignmentDueRequest struct {
	Recipients     []string  `json:"recipients" validate:"required,min=1"`
	AssignmentName string    `json:"assignment_name" validate:"required"`
	CourseName     string    `json:"course_name"`
	DueDate        time.Time `json:"due_date" validate:"required"`
}

// AssignmentDue fires the deadline reminder helper.
func (h *EventHandler) AssignmentDue(c *gin.Context) {
	var req assignmentDueRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.scheduler.FireAssignmentDue(requestContext(c), engine.AssignmentDueEvent{
		Recipients:     req.Recipients,
		AssignmentName: req.AssignmentName,
		CourseName:     req.CourseName,
		DueDate:        req.DueDate,
	})
	if result == nil {
		response.Error(c, err)
		return
	}
	respondFireResult(c, result)
}

type classEventRequest struct {
	Recipients []string  `json:"recipients" validate:"required,min=1"`
	ClassName  string    `json:"class_name" validate:"required"`
	Location   string    `json:"location"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	Reminder   bool      `json:"reminder"`
}

// Class fires the class scheduling or reminder helper.
func (h *EventHandler) Class(c *gin.Context) {
	var req classEventRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.scheduler.FireClassEvent(requestContext(c), engine.ClassEvent{
		Recipients: req.Recipients,
		ClassName:  req.ClassName,
		Location:   req.Location,
		StartTime:  req.StartTime,
		Reminder:   req.Reminder,
	})
	if result == nil {
		response.Error(c, err)
		return
	}
	respondFireResult(c, result)
}

type paymentEventRequest struct {
	Recipients []string   `json:"recipients" validate:"required,min=1"`
	Amount     string     `json:"amount" validate:"required"`
	Reference  string     `json:"reference"`
	DueDate    *time.Time `json:"due_date"`
}

// Payment fires the payment receipt or payment-due helper.
func (h *EventHandler) Payment(c *gin.Context) {
	var req paymentEventRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.scheduler.FirePaymentEvent(requestContext(c), engine.PaymentEvent{
		Recipients: req.Recipients,
		Amount:     req.Amount,
		Reference:  req.Reference,
		DueDate:    req.DueDate,
	})
	if result == nil {
		response.Error(c, err)
		return
	}
	respondFireResult(c, result)
}

func respondFireResult(c *gin.Context, result *engine.FireResult) {
	failed := make(map[string]string, len(result.Failed))
	for recipient, err := range result.Failed {
		failed[recipient] = err.Error()
	}

	status := http.StatusCreated
	if len(result.Created) == 0 {
		// Every recipient failed; nothing was created.
		status = http.StatusUnprocessableEntity
	}
	response.Success(c, status, gin.H{
		"created": result.Created,
		"failed":  failed,
	})
}
