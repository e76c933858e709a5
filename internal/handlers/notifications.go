package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/notifier/internal/engine"
	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/internal/realtime"
	"github.com/campuskit/notifier/pkg/errors"
	"github.com/campuskit/notifier/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for the user's notification feed.
type NotificationHandler struct {
	store *engine.NotificationStore
	hub   *realtime.Hub
	now   func() time.Time
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(store *engine.NotificationStore, hub *realtime.Hub) (*NotificationHandler, error) {
	if store == nil {
		return nil, errors.New("HANDLER_INIT", "notification store is required", http.StatusInternalServerError)
	}
	return &NotificationHandler{store: store, hub: hub, now: time.Now}, nil
}

// List returns the current user's notifications with filtering and pagination.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return
	}

	filter := engine.NotificationFilter{
		UserID:   userID,
		Type:     models.NotificationType(c.Query("type")),
		Category: models.NotificationCategory(c.Query("category")),
		Priority: models.NotificationPriority(c.Query("priority")),
		Status:   models.NotificationStatus(c.Query("status")),
		Unread:   parseBoolQuery(c, "unread"),
		Archived: parseBoolQuery(c, "archived"),
		Search:   c.Query("search"),
		SortBy:   c.Query("sort_by"),
		SortDesc: c.Query("sort_dir") != "asc",
		Page:     parseIntQuery(c, "page", 1),
		PerPage:  parseIntQuery(c, "per_page", 20),
	}

	page, err := h.store.Query(requestContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	totalPages := 0
	if page.PerPage > 0 {
		totalPages = int((page.Total + int64(page.PerPage) - 1) / int64(page.PerPage))
	}
	response.SuccessWithMeta(c, http.StatusOK, page.Items, &response.Meta{
		Page:       page.Page,
		PerPage:    page.PerPage,
		Total:      int(page.Total),
		TotalPages: totalPages,
	})
}

// Get returns a single notification owned by the current user.
func (h *NotificationHandler) Get(c *gin.Context) {
	notification, ok := h.ownedNotification(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, notification)
}

// UnreadCount returns the badge counter for the current user.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return
	}

	count, err := h.store.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread": count})
}

// Stats returns delivery and read rates for the current user.
func (h *NotificationHandler) Stats(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return
	}

	stats, err := h.store.ComputeStats(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// GlobalStats returns delivery and read rates across all users.
func (h *NotificationHandler) GlobalStats(c *gin.Context) {
	stats, err := h.store.ComputeStats(requestContext(c), "")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// MarkRead flags a notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.mutateOwned(c, func(id string) error {
		return h.store.MarkRead(requestContext(c), id, h.now().UTC())
	})
}

// MarkUnread clears the read flag.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.mutateOwned(c, func(id string) error {
		return h.store.MarkUnread(requestContext(c), id)
	})
}

// Archive moves a notification out of the user's active feed.
func (h *NotificationHandler) Archive(c *gin.Context) {
	h.mutateOwned(c, func(id string) error {
		return h.store.MarkArchived(requestContext(c), id, h.now().UTC())
	})
}

// Unarchive restores an archived notification.
func (h *NotificationHandler) Unarchive(c *gin.Context) {
	h.mutateOwned(c, func(id string) error {
		return h.store.Unarchive(requestContext(c), id)
	})
}

// Cancel withdraws a pending notification before dispatch claims it.
func (h *NotificationHandler) Cancel(c *gin.Context) {
	h.mutateOwned(c, func(id string) error {
		return h.store.Cancel(requestContext(c), id)
	})
}

// Delete removes a notification permanently.
func (h *NotificationHandler) Delete(c *gin.Context) {
	notification, ok := h.ownedNotification(c)
	if !ok {
		return
	}
	if err := h.store.Delete(requestContext(c), notification.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// MarkAllRead flags every arrived notification for the user as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return
	}

	updated, err := h.store.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

type createNotificationRequest struct {
	UserID       string         `json:"user_id" validate:"required"`
	Type         string         `json:"type" validate:"required"`
	Category     string         `json:"category"`
	Priority     string         `json:"priority"`
	Title        string         `json:"title" validate:"required,max=255"`
	Message      string         `json:"message"`
	Payload      map[string]any `json:"payload"`
	ScheduledFor *time.Time     `json:"scheduled_for"`
}

// Create persists a pre-rendered notification directly. Event-driven creation
// through the scheduler is the normal path; this endpoint serves operator
// tooling and integrations that render their own content.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req createNotificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	notification, err := h.store.Create(requestContext(c), engine.CreateNotificationInput{
		UserID:       req.UserID,
		Type:         models.NotificationType(req.Type),
		Category:     models.NotificationCategory(req.Category),
		Priority:     models.NotificationPriority(req.Priority),
		Title:        req.Title,
		Message:      req.Message,
		Payload:      req.Payload,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, notification)
}

func (h *NotificationHandler) ownedNotification(c *gin.Context) (*models.Notification, bool) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return nil, false
	}

	id := strings.TrimSpace(c.Param("id"))
	notification, err := h.store.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	// Another user's record is indistinguishable from a missing one.
	if notification.UserID != userID {
		response.Error(c, errors.ErrNotFound)
		return nil, false
	}
	return notification, true
}

func (h *NotificationHandler) mutateOwned(c *gin.Context, mutate func(id string) error) {
	notification, ok := h.ownedNotification(c)
	if !ok {
		return
	}
	if err := mutate(notification.ID); err != nil {
		response.Error(c, err)
		return
	}

	updated, err := h.store.Get(requestContext(c), notification.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.hub != nil {
		h.hub.BroadcastToUser(updated.UserID, realtime.Message{
			Event:          "notification.updated",
			Notification:   updated,
			NotificationID: updated.ID,
		})
	}
	response.Success(c, http.StatusOK, updated)
}
