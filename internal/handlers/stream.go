package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/notifier/internal/realtime"
	"github.com/campuskit/notifier/pkg/errors"
	"github.com/campuskit/notifier/pkg/response"
)

// StreamHandler upgrades feed subscribers to a WebSocket connection.
type StreamHandler struct {
	hub *realtime.Hub
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(hub *realtime.Hub) (*StreamHandler, error) {
	if hub == nil {
		return nil, errors.New("HANDLER_INIT", "realtime hub is required", http.StatusInternalServerError)
	}
	return &StreamHandler{hub: hub}, nil
}

// Subscribe attaches the caller to their live notification stream.
func (h *StreamHandler) Subscribe(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.NewBadRequest("missing X-User-ID header"))
		return
	}
	h.hub.Serve(userID, c.Writer, c.Request)
}
