package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookSink posts the rendered notification to an external provider
// endpoint as JSON. Push and SMS gateways are both bound this way; only the
// channel tag and endpoint differ.
type WebhookSink struct {
	channel Channel
	url     string
	token   string
	client  *http.Client
}

// WebhookConfig describes one provider binding.
type WebhookConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// NewWebhookSink constructs a WebhookSink for the given channel.
func NewWebhookSink(channel Channel, cfg WebhookConfig) (*WebhookSink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webhook sink %s: url is required", channel)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookSink{
		channel: channel,
		url:     strings.TrimSpace(cfg.URL),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (s *WebhookSink) Channel() Channel { return s.channel }

type webhookPayload struct {
	NotificationID string `json:"notification_id"`
	UserID         string `json:"user_id"`
	Type           string `json:"type"`
	Priority       string `json:"priority"`
	Title          string `json:"title"`
	Message        string `json:"message"`
}

func (s *WebhookSink) Send(ctx context.Context, d Delivery) error {
	if d.Notification == nil {
		return NewError(s.channel, errors.New("nil notification"))
	}

	body, err := json.Marshal(webhookPayload{
		NotificationID: d.Notification.ID,
		UserID:         d.Notification.UserID,
		Type:           string(d.Notification.Type),
		Priority:       string(d.Notification.Priority),
		Title:          d.Title,
		Message:        d.Message,
	})
	if err != nil {
		return NewError(s.channel, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return NewError(s.channel, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return NewError(s.channel, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewError(s.channel, fmt.Errorf("provider returned %d", resp.StatusCode))
	}
	return nil
}
