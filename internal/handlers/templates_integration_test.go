package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campuskit/notifier/internal/handlers/testutil"
	"github.com/campuskit/notifier/internal/models"
)

func TestTemplateCreateAndGetDefault(t *testing.T) {
	env := testutil.NewEnv(t)

	body := map[string]any{
		"name":       "mentor-message",
		"type":       "mentor_message",
		"category":   "social",
		"title":      "Message from {{mentor_name}}",
		"message":    "{{mentor_name}} wrote: {{body}}",
		"is_default": true,
	}
	w := env.Request(http.MethodPost, "/api/admin/templates", body, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var created models.NotificationTemplate
	testutil.DecodeInto(t, resp.Data, &created)
	require.True(t, created.IsDefault)

	w = env.Request(http.MethodGet, "/api/admin/templates/default/mentor_message", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = testutil.DecodeResponse(t, w)
	var fetched models.NotificationTemplate
	testutil.DecodeInto(t, resp.Data, &fetched)
	require.Equal(t, created.ID, fetched.ID)
}

func TestTemplateCreateRejectsDuplicateName(t *testing.T) {
	env := testutil.NewEnv(t)

	body := map[string]any{
		"name":    "dup-template",
		"type":    "system_alert",
		"title":   "t",
		"message": "m",
	}
	w := env.Request(http.MethodPost, "/api/admin/templates", body, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.Request(http.MethodPost, "/api/admin/templates", body, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestTemplateUpdatePromotesDefault(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/admin/templates", map[string]any{
		"name":    "alert-alt",
		"type":    "system_alert",
		"title":   "Heads up: {{alert_title}}",
		"message": "{{alert_message}}",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	var alt models.NotificationTemplate
	testutil.DecodeInto(t, resp.Data, &alt)
	require.False(t, alt.IsDefault)

	// Promotion is refused while the seeded default stands.
	promote := map[string]any{
		"name":       "alert-alt",
		"type":       "system_alert",
		"title":      "Heads up: {{alert_title}}",
		"message":    "{{alert_message}}",
		"is_default": true,
	}
	w = env.Request(http.MethodPut, "/api/admin/templates/"+alt.ID, promote, "")
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	// Demote the seeded default first, then promote.
	w = env.Request(http.MethodPut, "/api/admin/templates/tpl-system-alert", map[string]any{
		"name":       "System alert",
		"type":       "system_alert",
		"title":      "{{alert_title}}",
		"message":    "{{alert_message}}",
		"is_default": false,
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodPut, "/api/admin/templates/"+alt.ID, promote, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/admin/templates/default/system_alert", nil, "")
	resp = testutil.DecodeResponse(t, w)
	var current models.NotificationTemplate
	testutil.DecodeInto(t, resp.Data, &current)
	require.Equal(t, alt.ID, current.ID)
}

func TestTemplateListFiltersByType(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/admin/templates?type=payment_due", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	var templates []models.NotificationTemplate
	testutil.DecodeInto(t, resp.Data, &templates)
	require.Len(t, templates, 1)
	require.Equal(t, models.TypePaymentDue, templates[0].Type)
}

func TestTemplateDelete(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodDelete, "/api/admin/templates/tpl-system-alert", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/admin/templates/tpl-system-alert", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestTemplatePreviewReportsUnresolved(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPost, "/api/admin/templates/tpl-system-alert/preview", map[string]any{
		"context": map[string]any{"alert_title": "Disk pressure"},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var preview struct {
		Title      string   `json:"title"`
		Message    string   `json:"message"`
		Unresolved []string `json:"unresolved"`
	}
	testutil.DecodeInto(t, resp.Data, &preview)
	require.Contains(t, preview.Title, "Disk pressure")
	require.Contains(t, preview.Message, "{{alert_message}}")
	require.Equal(t, []string{"alert_message"}, preview.Unresolved)
}
