package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campuskit/notifier/internal/models"
	"github.com/campuskit/notifier/pkg/mail"
)

type recordingMailer struct {
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func testNotification() *models.Notification {
	return &models.Notification{
		BaseModel: models.BaseModel{ID: "n-1"},
		UserID:    "user-1",
		Type:      models.TypeAssignmentDue,
		Priority:  models.PriorityMedium,
	}
}

func TestRegistryLookup(t *testing.T) {
	email := NewMemorySink(ChannelEmail)
	registry := NewRegistry(email, NewMemorySink(ChannelInApp))

	sink, ok := registry.Sink(ChannelEmail)
	require.True(t, ok)
	require.Equal(t, ChannelEmail, sink.Channel())

	_, ok = registry.Sink(ChannelSMS)
	require.False(t, ok)
}

func TestEmailSinkSends(t *testing.T) {
	mailer := &recordingMailer{}
	sink, err := NewEmailSink(mailer, func(ctx context.Context, userID string) (string, error) {
		return userID + "@example.com", nil
	})
	require.NoError(t, err)

	err = sink.Send(context.Background(), Delivery{
		Notification: testNotification(),
		Title:        "Assignment due",
		Message:      "Due tomorrow",
	})
	require.NoError(t, err)
	require.Len(t, mailer.messages, 1)
	require.Equal(t, "user-1@example.com", mailer.messages[0].To)
	require.Equal(t, "Assignment due", mailer.messages[0].Subject)
}

func TestEmailSinkWrapsResolverFailure(t *testing.T) {
	sink, err := NewEmailSink(&recordingMailer{}, func(ctx context.Context, userID string) (string, error) {
		return "", errors.New("directory offline")
	})
	require.NoError(t, err)

	err = sink.Send(context.Background(), Delivery{Notification: testNotification()})
	require.Error(t, err)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ChannelEmail, terr.Channel)
}

func TestWebhookSinkPostsPayload(t *testing.T) {
	var received webhookPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(ChannelPush, WebhookConfig{URL: server.URL, Token: "tok-1"})
	require.NoError(t, err)

	err = sink.Send(context.Background(), Delivery{
		Notification: testNotification(),
		Title:        "Class reminder",
		Message:      "Starts at noon",
	})
	require.NoError(t, err)
	require.Equal(t, "n-1", received.NotificationID)
	require.Equal(t, "assignment_due", received.Type)
	require.Equal(t, "Bearer tok-1", auth)
}

func TestWebhookSinkProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(ChannelSMS, WebhookConfig{URL: server.URL})
	require.NoError(t, err)

	err = sink.Send(context.Background(), Delivery{Notification: testNotification()})
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ChannelSMS, terr.Channel)
}

func TestWebhookSinkRequiresURL(t *testing.T) {
	_, err := NewWebhookSink(ChannelPush, WebhookConfig{})
	require.Error(t, err)
}

func TestInAppSinkNeverFails(t *testing.T) {
	sink := NewInAppSink(nil)
	require.NoError(t, sink.Send(context.Background(), Delivery{Notification: testNotification()}))
	require.NoError(t, sink.Send(context.Background(), Delivery{}))

	lead := testNotification()
	require.NoError(t, sink.Send(context.Background(), Delivery{
		Notification: lead,
		Batch:        []*models.Notification{lead, testNotification()},
	}))
}

func TestMemorySinkScriptedFailures(t *testing.T) {
	sink := NewMemorySink(ChannelEmail)
	sink.FailTimes(2, errors.New("smtp down"))

	require.Error(t, sink.Send(context.Background(), Delivery{}))
	require.Error(t, sink.Send(context.Background(), Delivery{}))
	require.NoError(t, sink.Send(context.Background(), Delivery{}))
	require.Len(t, sink.Sent(), 1)
}
