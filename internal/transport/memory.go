package transport

import (
	"context"
	"errors"
	"sync"
)

// MemorySink records deliveries in memory. Used in tests and as a stand-in
// binding for channels without a configured provider in development mode.
type MemorySink struct {
	channel Channel

	mu        sync.Mutex
	sent      []Delivery
	failTimes int
	failErr   error
}

// NewMemorySink constructs a MemorySink for the given channel.
func NewMemorySink(channel Channel) *MemorySink {
	return &MemorySink{channel: channel}
}

func (s *MemorySink) Channel() Channel { return s.channel }

// FailTimes makes the next n Send calls fail with err.
func (s *MemorySink) FailTimes(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTimes = n
	if err == nil {
		err = errors.New("injected failure")
	}
	s.failErr = err
}

func (s *MemorySink) Send(ctx context.Context, d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failTimes != 0 {
		if s.failTimes > 0 {
			s.failTimes--
		}
		return NewError(s.channel, s.failErr)
	}

	s.sent = append(s.sent, d)
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (s *MemorySink) Sent() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivery, len(s.sent))
	copy(out, s.sent)
	return out
}

// Reset clears recorded deliveries and failure scripting.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
	s.failTimes = 0
	s.failErr = nil
}
