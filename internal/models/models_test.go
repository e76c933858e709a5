package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusSent.Terminal())
	require.True(t, StatusDelivered.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.True(t, StatusCancelled.Terminal())
}

func TestValidPriority(t *testing.T) {
	require.True(t, ValidPriority(PriorityUrgent))
	require.True(t, ValidPriority(PriorityLow))
	require.False(t, ValidPriority("critical"))
	require.False(t, ValidPriority(""))
}

func TestValidCategory(t *testing.T) {
	require.True(t, ValidCategory(CategoryAcademic))
	require.True(t, ValidCategory(CategoryReminder))
	require.False(t, ValidCategory("marketing"))
}

func TestValidFrequency(t *testing.T) {
	require.True(t, ValidFrequency(FrequencyImmediate))
	require.True(t, ValidFrequency(FrequencyDailyDigest))
	require.False(t, ValidFrequency("weekly"))
}
