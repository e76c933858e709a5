package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/notifier/internal/engine"
	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/pkg/errors"
	"github.com/campuskit/notifier/pkg/response"
)

// ScheduleHandler manages recurring notification rules.
type ScheduleHandler struct {
	scheduler *engine.Scheduler
}

// NewScheduleHandler constructs a schedule handler.
func NewScheduleHandler(scheduler *engine.Scheduler) (*ScheduleHandler, error) {
	if scheduler == nil {
		return nil, errors.New("HANDLER_INIT", "scheduler is required", http.StatusInternalServerError)
	}
	return &ScheduleHandler{scheduler: scheduler}, nil
}

// List returns all schedules, active first.
func (h *ScheduleHandler) List(c *gin.Context) {
	schedules, err := h.scheduler.ListSchedules(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, schedules)
}

// Get returns a schedule by id.
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.scheduler.GetSchedule(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, schedule)
}

type scheduleRequest struct {
	Name        string         `json:"name" validate:"required,max=255"`
	TriggerType string         `json:"trigger_type" validate:"required,oneof=recurring event"`
	CronSpec    string         `json:"cron_spec"`
	TemplateID  string         `json:"template_id"`
	Type        string         `json:"type" validate:"required"`
	Category    string         `json:"category"`
	Priority    string         `json:"priority"`
	Recipients  []string       `json:"recipients" validate:"required,min=1"`
	Context     map[string]any `json:"context"`
	IsActive    *bool          `json:"is_active"`
}

func (r scheduleRequest) toInput() engine.ScheduleInput {
	return engine.ScheduleInput{
		Name:        r.Name,
		TriggerType: models.TriggerType(r.TriggerType),
		CronSpec:    r.CronSpec,
		TemplateID:  r.TemplateID,
		Type:        models.NotificationType(r.Type),
		Category:    models.NotificationCategory(r.Category),
		Priority:    models.NotificationPriority(r.Priority),
		Recipients:  r.Recipients,
		Context:     r.Context,
		IsActive:    r.IsActive,
	}
}

// Create registers a recurring rule and computes its first trigger time.
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req scheduleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	schedule, err := h.scheduler.CreateSchedule(requestContext(c), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, schedule)
}

// Update replaces a schedule's definition. Changing the cron spec recomputes
// the next trigger; keeping it preserves the current one.
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req scheduleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	schedule, err := h.scheduler.UpdateSchedule(requestContext(c), strings.TrimSpace(c.Param("id")), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, schedule)
}

// Delete removes a schedule. Notifications it already fired stay untouched.
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.scheduler.DeleteSchedule(requestContext(c), strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Activate re-enables a schedule and recomputes its next trigger.
func (h *ScheduleHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate pauses a schedule without deleting it.
func (h *ScheduleHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *ScheduleHandler) setActive(c *gin.Context, active bool) {
	schedule, err := h.scheduler.SetScheduleActive(requestContext(c), strings.TrimSpace(c.Param("id")), active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, schedule)
}
