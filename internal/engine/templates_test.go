package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuskit/notifier/internal/cache"
	"github.com/campuskit/notifier/internal/database/testutil"
	"github.com/campuskit/notifier/internal/models"
	apperrors "github.com/campuskit/notifier/pkg/errors"
)

func newTestRegistry(t *testing.T) *TemplateRegistry {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	registry, err := NewTemplateRegistry(db, cache.NewDatabaseStore(db), time.Minute)
	require.NoError(t, err)
	return registry
}

func TestRegisterAndGetDefault(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	created, err := registry.Register(ctx, TemplateInput{
		Name:      "assignment-due",
		Type:      models.TypeAssignmentDue,
		Category:  models.CategoryAcademic,
		Title:     "{{assignment_name}} is due",
		Message:   "Due {{due_date}}.",
		IsDefault: true,
	})
	require.NoError(t, err)
	require.True(t, created.IsDefault)
	require.True(t, created.IsActive)

	found, err := registry.GetDefault(ctx, models.TypeAssignmentDue)
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)
}

func TestRegisterRejectsSecondDefault(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	first, err := registry.Register(ctx, TemplateInput{
		Name: "alert-v1", Type: models.TypeSystemAlert,
		Title: "Alert", IsDefault: true,
	})
	require.NoError(t, err)

	_, err = registry.Register(ctx, TemplateInput{
		Name: "alert-v2", Type: models.TypeSystemAlert,
		Title: "Alert v2", IsDefault: true,
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	// The standing default is untouched by the failed registration.
	current, err := registry.GetDefault(ctx, models.TypeSystemAlert)
	require.NoError(t, err)
	require.Equal(t, first.ID, current.ID)

	// Demoting the old default first clears the way.
	inactive := false
	_, err = registry.Update(ctx, first.ID, TemplateInput{
		Name: "alert-v1", Type: models.TypeSystemAlert,
		Title: "Alert", IsDefault: false, IsActive: &inactive,
	})
	require.NoError(t, err)

	second, err := registry.Register(ctx, TemplateInput{
		Name: "alert-v2", Type: models.TypeSystemAlert,
		Title: "Alert v2", IsDefault: true,
	})
	require.NoError(t, err)

	current, err = registry.GetDefault(ctx, models.TypeSystemAlert)
	require.NoError(t, err)
	require.Equal(t, second.ID, current.ID)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Register(ctx, TemplateInput{
		Name: "welcome", Type: models.TypeSystemAlert, Title: "Hi",
	})
	require.NoError(t, err)

	_, err = registry.Register(ctx, TemplateInput{
		Name: "welcome", Type: models.TypeSystemAlert, Title: "Hi again",
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestUpdatePromotionInvalidatesCache(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	first, err := registry.Register(ctx, TemplateInput{
		Name: "grade-v1", Type: models.TypeAssignmentGrade,
		Title: "Grade posted", IsDefault: true,
	})
	require.NoError(t, err)

	second, err := registry.Register(ctx, TemplateInput{
		Name: "grade-v2", Type: models.TypeAssignmentGrade,
		Title: "Your grade is in",
	})
	require.NoError(t, err)

	// Warm the cache with the current default.
	cached, err := registry.GetDefault(ctx, models.TypeAssignmentGrade)
	require.NoError(t, err)
	require.Equal(t, first.ID, cached.ID)

	// Promotion while another default stands is refused.
	_, err = registry.Update(ctx, second.ID, TemplateInput{
		Name: "grade-v2", Type: models.TypeAssignmentGrade,
		Title: "Your grade is in", IsDefault: true,
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = registry.Update(ctx, first.ID, TemplateInput{
		Name: "grade-v1", Type: models.TypeAssignmentGrade,
		Title: "Grade posted", IsDefault: false,
	})
	require.NoError(t, err)

	_, err = registry.Update(ctx, second.ID, TemplateInput{
		Name: "grade-v2", Type: models.TypeAssignmentGrade,
		Title: "Your grade is in", IsDefault: true,
	})
	require.NoError(t, err)

	// The demote and the promote both invalidated the cached default.
	current, err := registry.GetDefault(ctx, models.TypeAssignmentGrade)
	require.NoError(t, err)
	require.Equal(t, second.ID, current.ID)
}

func TestUpdateTypeChangeInvalidatesBothCacheEntries(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	template, err := registry.Register(ctx, TemplateInput{
		Name: "grade-note", Type: models.TypeAssignmentGrade,
		Title: "Grade posted", IsDefault: true,
	})
	require.NoError(t, err)

	// Warm the cache under the original type.
	cached, err := registry.GetDefault(ctx, models.TypeAssignmentGrade)
	require.NoError(t, err)
	require.Equal(t, template.ID, cached.ID)

	_, err = registry.Update(ctx, template.ID, TemplateInput{
		Name: "grade-note", Type: models.TypeMentorMessage,
		Title: "Grade posted", IsDefault: true,
	})
	require.NoError(t, err)

	// The old type's cached default must not survive the move.
	_, err = registry.GetDefault(ctx, models.TypeAssignmentGrade)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	moved, err := registry.GetDefault(ctx, models.TypeMentorMessage)
	require.NoError(t, err)
	require.Equal(t, template.ID, moved.ID)
}

func TestGetDefaultIgnoresInactive(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	inactive := false
	_, err := registry.Register(ctx, TemplateInput{
		Name: "retired", Type: models.TypeMentorMessage,
		Title: "Old", IsDefault: true, IsActive: &inactive,
	})
	require.NoError(t, err)

	_, err = registry.GetDefault(ctx, models.TypeMentorMessage)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeleteTemplate(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	created, err := registry.Register(ctx, TemplateInput{
		Name: "temp", Type: models.TypeSystemAlert, Title: "x",
	})
	require.NoError(t, err)

	require.NoError(t, registry.Delete(ctx, created.ID))
	require.ErrorIs(t, registry.Delete(ctx, created.ID), apperrors.ErrNotFound)
}

func TestListByType(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"a-alert", "b-alert"} {
		_, err := registry.Register(ctx, TemplateInput{
			Name: name, Type: models.TypeSystemAlert, Title: "x",
		})
		require.NoError(t, err)
	}
	_, err := registry.Register(ctx, TemplateInput{
		Name: "due", Type: models.TypeAssignmentDue, Title: "x",
	})
	require.NoError(t, err)

	alerts, err := registry.List(ctx, models.TypeSystemAlert)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, "a-alert", alerts[0].Name)

	all, err := registry.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	registry := newTestRegistry(t)

	template := &models.NotificationTemplate{
		Title:   "{{assignment_name}} due soon",
		Message: "Submit {{assignment_name}} before {{due_date}}. Weight: {{weight}}%",
	}
	rendered := registry.Render(template, map[string]any{
		"assignment_name": "Essay 2",
		"due_date":        "Friday",
		"weight":          float64(30),
	})

	require.Equal(t, "Essay 2 due soon", rendered.Title)
	require.Equal(t, "Submit Essay 2 before Friday. Weight: 30%", rendered.Message)
	require.Empty(t, rendered.Unresolved)
}

func TestRenderLeavesUnknownPlaceholdersVerbatim(t *testing.T) {
	registry := newTestRegistry(t)

	template := &models.NotificationTemplate{
		Title:   "Hello {{ first_name }}",
		Message: "Room {{room}} at {{start_time}}",
	}
	rendered := registry.Render(template, map[string]any{"room": "B12"})

	require.Equal(t, "Hello {{ first_name }}", rendered.Title)
	require.Equal(t, "Room B12 at {{start_time}}", rendered.Message)
	require.ElementsMatch(t, []string{"first_name", "start_time"}, rendered.Unresolved)
}

func TestTemplateInputValidation(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	_, err := registry.Register(ctx, TemplateInput{Type: models.TypeSystemAlert, Title: "x"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = registry.Register(ctx, TemplateInput{Name: "n", Title: "x"})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = registry.Register(ctx, TemplateInput{
		Name: "n", Type: models.TypeSystemAlert, Title: "x",
		Category: models.NotificationCategory("vibes"),
	})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}
