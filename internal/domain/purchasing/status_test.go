package purchasing

import (
	"testing"

	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Transitions(t *testing.T) {
	t.Run("draft cannot jump to received", func(t *testing.T) {
		assert.NotContains(t, ValidTransitions(StatusDraft), StatusReceived)
		assert.ElementsMatch(t, []Status{StatusSent, StatusCancelled}, ValidTransitions(StatusDraft))
	})

	t.Run("no backward transitions", func(t *testing.T) {
		assert.False(t, IsValidTransition(StatusReceived, StatusDraft))
		assert.False(t, IsValidTransition(StatusConfirmed, StatusSent))
		assert.False(t, IsValidTransition(StatusPartiallyReceived, StatusConfirmed))
	})

	t.Run("terminal states have no edges", func(t *testing.T) {
		for _, from := range []Status{StatusReceived, StatusCancelled, StatusClosed} {
			assert.True(t, from.IsTerminal(), from)
			assert.Empty(t, ValidTransitions(from))
			for _, to := range AllStatuses() {
				assert.False(t, IsValidTransition(from, to), "%s -> %s", from, to)
			}
		}
	})

	t.Run("non terminal states", func(t *testing.T) {
		for _, s := range []Status{StatusDraft, StatusSent, StatusConfirmed, StatusPartiallyReceived} {
			assert.False(t, s.IsTerminal(), s)
		}
	})

	t.Run("short close only from partially received", func(t *testing.T) {
		assert.True(t, IsValidTransition(StatusPartiallyReceived, StatusClosed))
		assert.False(t, IsValidTransition(StatusConfirmed, StatusClosed))
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		got := ValidTransitions(StatusDraft)
		got[0] = StatusClosed
		assert.Equal(t, StatusSent, ValidTransitions(StatusDraft)[0])
	})

	t.Run("unknown status has no transitions", func(t *testing.T) {
		assert.Empty(t, ValidTransitions(Status("archived")))
		assert.False(t, Status("archived").IsTerminal())
	})
}

func TestCanReceiveItems(t *testing.T) {
	want := map[Status]bool{
		StatusDraft:             false,
		StatusSent:              true,
		StatusConfirmed:         true,
		StatusPartiallyReceived: true,
		StatusReceived:          false,
		StatusCancelled:         false,
		StatusClosed:            false,
	}
	for status, ok := range want {
		assert.Equal(t, ok, CanReceiveItems(status), status)
	}
}

func TestCheckTransition(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		assert.NoError(t, checkTransition(StatusDraft, StatusSent))
	})

	t.Run("cancel after receipt is a terminal state violation", func(t *testing.T) {
		err := checkTransition(StatusReceived, StatusCancelled)
		require.Error(t, err)
		assert.Equal(t, shared.KindTerminalState, shared.KindOf(err))
		assert.False(t, shared.IsRetryable(err))
	})

	t.Run("skipping a step is a validation error", func(t *testing.T) {
		err := checkTransition(StatusDraft, StatusConfirmed)
		require.Error(t, err)
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	})
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("partially_received")
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyReceived, s)

	_, err = ParseStatus("shipped")
	assert.Error(t, err)
}
