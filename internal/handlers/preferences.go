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

// PreferenceHandler manages per-user, per-type delivery preferences.
type PreferenceHandler struct {
	prefs *engine.PreferenceStore
}

// NewPreferenceHandler constructs a preference handler.
func NewPreferenceHandler(prefs *engine.PreferenceStore) (*PreferenceHandler, error) {
	if prefs == nil {
		return nil, errors.New("HANDLER_INIT", "preference store is required", http.StatusInternalServerError)
	}
	return &PreferenceHandler{prefs: prefs}, nil
}

// List returns every stored preference row for the current user. Types with no
// row fall back to the system default and are not listed here.
func (h *PreferenceHandler) List(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return
	}

	prefs, err := h.prefs.ListForUser(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, prefs)
}

// Get returns the effective preference for one notification type, falling back
// to the system default when the user never customized it.
func (h *PreferenceHandler) Get(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return
	}

	notificationType := models.NotificationType(strings.TrimSpace(c.Param("type")))
	pref, err := h.prefs.Get(requestContext(c), userID, notificationType)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}

type preferenceRequest struct {
	EmailEnabled      *bool  `json:"email_enabled"`
	PushEnabled       *bool  `json:"push_enabled"`
	SMSEnabled        *bool  `json:"sms_enabled"`
	InAppEnabled      *bool  `json:"in_app_enabled"`
	Frequency         string `json:"frequency"`
	QuietHoursEnabled bool   `json:"quiet_hours_enabled"`
	QuietHoursStart   string `json:"quiet_hours_start"`
	QuietHoursEnd     string `json:"quiet_hours_end"`
	Timezone          string `json:"timezone"`
}

// Channel toggles omitted from the body keep the system default of enabled.
func channelToggle(flag *bool) bool {
	if flag == nil {
		return true
	}
	return *flag
}

// Put creates or replaces the preference row for one notification type.
func (h *PreferenceHandler) Put(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return
	}

	var req preferenceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	notificationType := models.NotificationType(strings.TrimSpace(c.Param("type")))
	pref, err := h.prefs.Upsert(requestContext(c), engine.PreferenceInput{
		UserID:            userID,
		Type:              notificationType,
		EmailEnabled:      channelToggle(req.EmailEnabled),
		PushEnabled:       channelToggle(req.PushEnabled),
		SMSEnabled:        channelToggle(req.SMSEnabled),
		InAppEnabled:      channelToggle(req.InAppEnabled),
		Frequency:         models.DeliveryFrequency(req.Frequency),
		QuietHoursEnabled: req.QuietHoursEnabled,
		QuietHoursStart:   req.QuietHoursStart,
		QuietHoursEnd:     req.QuietHoursEnd,
		Timezone:          req.Timezone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pref)
}

// Delete removes the stored row so the type reverts to the system default.
func (h *PreferenceHandler) Delete(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return
	}

	notificationType := models.NotificationType(strings.TrimSpace(c.Param("type")))
	if err := h.prefs.Delete(requestContext(c), userID, notificationType); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
