package transport

import (
	"context"

	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/internal/realtime"
)

// InAppSink marks the notification visible to the UI query layer and, when a
// hub is attached, pushes it to any live websocket subscribers. It cannot
// fail: the durable record is already queryable, the stream is best-effort.
type InAppSink struct {
	hub *realtime.Hub
}

// NewInAppSink constructs an InAppSink. A nil hub yields a record-only sink.
func NewInAppSink(hub *realtime.Hub) *InAppSink {
	return &InAppSink{hub: hub}
}

func (s *InAppSink) Channel() Channel { return ChannelInApp }

func (s *InAppSink) Send(ctx context.Context, d Delivery) error {
	if s.hub == nil || d.Notification == nil {
		return nil
	}

	// A digest still surfaces every record individually in the feed.
	records := d.Batch
	if len(records) == 0 {
		records = []*models.Notification{d.Notification}
	}
	for _, record := range records {
		s.hub.BroadcastToUser(record.UserID, realtime.Message{
			Event:          "notification.delivered",
			Notification:   record,
			NotificationID: record.ID,
		})
	}
	return nil
}
