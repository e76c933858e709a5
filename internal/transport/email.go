package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campuskit/notifier/pkg/mail"
)

// AddressResolver maps a recipient user id to an email address. The engine
// stores user ids only; directory lookups belong to the caller.
type AddressResolver func(ctx context.Context, userID string) (string, error)

// EmailSink delivers notifications through the SMTP mailer.
type EmailSink struct {
	mailer  mail.Mailer
	resolve AddressResolver
}

// NewEmailSink constructs an EmailSink.
func NewEmailSink(mailer mail.Mailer, resolve AddressResolver) (*EmailSink, error) {
	if mailer == nil {
		return nil, errors.New("email sink: mailer is required")
	}
	if resolve == nil {
		return nil, errors.New("email sink: address resolver is required")
	}
	return &EmailSink{mailer: mailer, resolve: resolve}, nil
}

func (s *EmailSink) Channel() Channel { return ChannelEmail }

func (s *EmailSink) Send(ctx context.Context, d Delivery) error {
	if d.Notification == nil {
		return NewError(ChannelEmail, errors.New("nil notification"))
	}

	address, err := s.resolve(ctx, d.Notification.UserID)
	if err != nil {
		return NewError(ChannelEmail, fmt.Errorf("resolve recipient: %w", err))
	}
	if strings.TrimSpace(address) == "" {
		return NewError(ChannelEmail, fmt.Errorf("no email address for user %s", d.Notification.UserID))
	}

	err = s.mailer.Send(ctx, mail.Message{
		To:      address,
		Subject: d.Title,
		Body:    d.Message,
	})
	if err != nil {
		return NewError(ChannelEmail, err)
	}
	return nil
}
