package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/campuskit/notifier/internal/transport"
	"github.com/campuskit/notifier/pkg/mail"
)

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// AddressResolver builds the recipient lookup used by the email sink. User
// ids that already look like addresses pass through; anything else gets the
// configured recipient domain appended.
func (c EmailConfig) AddressResolver() transport.AddressResolver {
	domain := strings.TrimSpace(c.RecipientDomain)
	return func(_ context.Context, userID string) (string, error) {
		userID = strings.TrimSpace(userID)
		if strings.Contains(userID, "@") {
			return userID, nil
		}
		if domain == "" {
			return "", fmt.Errorf("no email address known for user %s", userID)
		}
		return userID + "@" + domain, nil
	}
}
