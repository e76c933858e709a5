package transport

import (
	"context"
	"fmt"

	"github.com/campuskit/notifier/internal/models"
)

// Channel identifies one delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// AllChannels lists every channel in dispatch order. Order carries no
// delivery guarantee; channels are attempted independently.
func AllChannels() []Channel {
	return []Channel{ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp}
}

// Delivery is the rendered content handed to a sink for one channel attempt.
// A digest delivery covers several records at once: Batch lists all of them,
// Title and Message carry the combined content, and Notification points at
// the lead record for addressing.
type Delivery struct {
	Notification *models.Notification
	Batch        []*models.Notification
	Title        string
	Message      string
}

// Sink sends a rendered notification over one channel. Implementations wrap
// the actual provider; the engine treats all four identically.
type Sink interface {
	Channel() Channel
	Send(ctx context.Context, d Delivery) error
}

// Error is a per-channel delivery failure. It stays inside the dispatcher
// and is only visible to callers as the notification's terminal status.
type Error struct {
	Channel Channel
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("transport %s: %v", e.Channel, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError wraps a provider failure with its channel.
func NewError(channel Channel, err error) *Error {
	return &Error{Channel: channel, Err: err}
}

// Registry maps channels to their configured sinks. Channels without a sink
// are treated as failing immediately; the in-app channel should always have
// one.
type Registry struct {
	sinks map[Channel]Sink
}

// NewRegistry builds a Registry from the provided sinks, keyed by their channel.
func NewRegistry(sinks ...Sink) *Registry {
	r := &Registry{sinks: make(map[Channel]Sink, len(sinks))}
	for _, sink := range sinks {
		if sink != nil {
			r.sinks[sink.Channel()] = sink
		}
	}
	return r
}

// Sink returns the sink bound to the channel.
func (r *Registry) Sink(channel Channel) (Sink, bool) {
	if r == nil {
		return nil, false
	}
	sink, ok := r.sinks[channel]
	return sink, ok
}
