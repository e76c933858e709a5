package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campuskit/notifier/internal/handlers/testutil"
	"github.com/campuskit/notifier/internal/models"
)

func TestPreferenceGetFallsBackToDefault(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/preferences/assignment_due", nil, "user-a")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := testutil.DecodeResponse(t, w)
	var pref models.NotificationPreference
	testutil.DecodeInto(t, resp.Data, &pref)
	require.True(t, pref.EmailEnabled)
	require.True(t, pref.InAppEnabled)
	require.Equal(t, models.FrequencyImmediate, pref.Frequency)
	require.Equal(t, "UTC", pref.Timezone)
}

func TestPreferencePutThenGet(t *testing.T) {
	env := testutil.NewEnv(t)

	body := map[string]any{
		"email_enabled":       false,
		"sms_enabled":         false,
		"frequency":           "daily_digest",
		"quiet_hours_enabled": true,
		"quiet_hours_start":   "22:00",
		"quiet_hours_end":     "07:00",
		"timezone":            "Europe/Paris",
	}
	w := env.Request(http.MethodPut, "/api/preferences/assignment_due", body, "user-a")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/preferences/assignment_due", nil, "user-a")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	var pref models.NotificationPreference
	testutil.DecodeInto(t, resp.Data, &pref)
	require.False(t, pref.EmailEnabled)
	require.False(t, pref.SMSEnabled)
	// Omitted toggles keep the enabled default.
	require.True(t, pref.PushEnabled)
	require.True(t, pref.InAppEnabled)
	require.Equal(t, models.FrequencyDailyDigest, pref.Frequency)
	require.Equal(t, "22:00", pref.QuietHoursStart)
	require.Equal(t, "Europe/Paris", pref.Timezone)

	// Other users keep the system default.
	w = env.Request(http.MethodGet, "/api/preferences/assignment_due", nil, "user-b")
	resp = testutil.DecodeResponse(t, w)
	testutil.DecodeInto(t, resp.Data, &pref)
	require.True(t, pref.EmailEnabled)
}

func TestPreferencePutValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	cases := []map[string]any{
		{"frequency": "weekly_digest"},
		{"timezone": "Mars/Olympus"},
		{"quiet_hours_enabled": true, "quiet_hours_start": "25:00", "quiet_hours_end": "07:00"},
	}
	for _, body := range cases {
		w := env.Request(http.MethodPut, "/api/preferences/assignment_due", body, "user-a")
		require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	}
}

func TestPreferenceDeleteRevertsToDefault(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPut, "/api/preferences/payment_due", map[string]any{
		"frequency": "muted",
	}, "user-a")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodDelete, "/api/preferences/payment_due", nil, "user-a")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/preferences/payment_due", nil, "user-a")
	resp := testutil.DecodeResponse(t, w)
	var pref models.NotificationPreference
	testutil.DecodeInto(t, resp.Data, &pref)
	require.Equal(t, models.FrequencyImmediate, pref.Frequency)

	// Nothing left to delete.
	w = env.Request(http.MethodDelete, "/api/preferences/payment_due", nil, "user-a")
	require.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestPreferenceListShowsOnlyCustomisedTypes(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodPut, "/api/preferences/class_reminder", map[string]any{
		"frequency": "hourly_digest",
	}, "user-a")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/preferences", nil, "user-a")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	var prefs []models.NotificationPreference
	testutil.DecodeInto(t, resp.Data, &prefs)
	require.Len(t, prefs, 1)
	require.Equal(t, models.TypeClassReminder, prefs[0].Type)
}
