package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskStatusIsTerminal(t *testing.T) {
	require.True(t, TaskStatusDone.IsTerminal())
	require.True(t, TaskStatusArchived.IsTerminal())
	require.False(t, TaskStatusPending.IsTerminal())
	require.False(t, TaskStatusInProgress.IsTerminal())
	require.False(t, TaskStatusBlocked.IsTerminal())
}

func TestActionOutcomeRan(t *testing.T) {
	require.True(t, ActionOutcome{Status: ActionSuccess}.Ran())
	require.True(t, ActionOutcome{Status: ActionWarning}.Ran())
	require.True(t, ActionOutcome{Status: ActionTimeout}.Ran())
	require.False(t, ActionOutcome{Status: ActionSkipped}.Ran())
	require.False(t, ActionOutcome{Status: ActionBlocked}.Ran())
	require.False(t, ActionOutcome{Status: ActionRateLimited}.Ran())
}
