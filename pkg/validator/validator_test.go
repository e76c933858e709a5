package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type samplePreference struct {
	UserID    string `json:"user_id" validate:"required"`
	Frequency string `json:"frequency" validate:"oneof=immediate hourly_digest daily_digest muted"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(samplePreference{UserID: "u-1", Frequency: "immediate"})
	require.NoError(t, err)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(samplePreference{Frequency: "weekly"})
	require.Error(t, err)

	failures, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, failures, 2)
	require.Equal(t, "user_id", failures[0].Field)
	require.Equal(t, "required", failures[0].Tag)
	require.Equal(t, "frequency", failures[1].Field)
	require.Equal(t, "oneof", failures[1].Tag)
	require.Contains(t, err.Error(), "frequency failed on oneof")
}
