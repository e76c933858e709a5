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

// TemplateHandler manages the notification template catalogue.
type TemplateHandler struct {
	templates *engine.TemplateRegistry
}

// NewTemplateHandler constructs a template handler.
func NewTemplateHandler(templates *engine.TemplateRegistry) (*TemplateHandler, error) {
	if templates == nil {
		return nil, errors.New("HANDLER_INIT", "template registry is required", http.StatusInternalServerError)
	}
	return &TemplateHandler{templates: templates}, nil
}

// List returns templates, optionally filtered by notification type.
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.templates.List(requestContext(c), models.NotificationType(c.Query("type")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, templates)
}

// Get returns a template by id.
func (h *TemplateHandler) Get(c *gin.Context) {
	template, err := h.templates.Get(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, template)
}

// GetDefault returns the active default template for a notification type.
func (h *TemplateHandler) GetDefault(c *gin.Context) {
	notificationType := models.NotificationType(strings.TrimSpace(c.Param("type")))
	template, err := h.templates.GetDefault(requestContext(c), notificationType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, template)
}

type templateRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	Type      string `json:"type" validate:"required"`
	Category  string `json:"category"`
	Title     string `json:"title" validate:"required,max=255"`
	Message   string `json:"message" validate:"required"`
	IsDefault bool   `json:"is_default"`
	IsActive  *bool  `json:"is_active"`
}

func (r templateRequest) toInput() engine.TemplateInput {
	return engine.TemplateInput{
		Name:      r.Name,
		Type:      models.NotificationType(r.Type),
		Category:  models.NotificationCategory(r.Category),
		Title:     r.Title,
		Message:   r.Message,
		IsDefault: r.IsDefault,
		IsActive:  r.IsActive,
	}
}

// Create registers a new template.
func (h *TemplateHandler) Create(c *gin.Context) {
	var req templateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	template, err := h.templates.Register(requestContext(c), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, template)
}

// Update replaces a template's content and default/active flags.
func (h *TemplateHandler) Update(c *gin.Context) {
	var req templateRequest
	if !bindAndValidate(c, &req) {
		return
	}

	template, err := h.templates.Update(requestContext(c), strings.TrimSpace(c.Param("id")), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, template)
}

// Delete removes a template.
func (h *TemplateHandler) Delete(c *gin.Context) {
	if err := h.templates.Delete(requestContext(c), strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type previewRequest struct {
	Context map[string]any `json:"context"`
}

// Preview renders a template against a caller-supplied context without
// creating any notifications. Unresolved placeholders are reported so template
// authors can spot typos before publishing.
func (h *TemplateHandler) Preview(c *gin.Context) {
	var req previewRequest
	if !bindAndValidate(c, &req) {
		return
	}

	template, err := h.templates.Get(requestContext(c), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	rendered := h.templates.Render(template, req.Context)
	response.Success(c, http.StatusOK, gin.H{
		"title":      rendered.Title,
		"message":    rendered.Message,
		"unresolved": rendered.Unresolved,
	})
}
