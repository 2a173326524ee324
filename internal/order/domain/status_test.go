package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("pending")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)

	_, err = ParseStatus("exploded")
	assert.Error(t, err)
}

func TestCanCancel(t *testing.T) {
	assert.True(t, StatusPending.CanCancel())
	assert.True(t, StatusPaid.CanCancel())

	assert.False(t, StatusShipped.CanCancel())
	assert.False(t, StatusCompleted.CanCancel())
	assert.False(t, StatusCancelled.CanCancel())
	assert.False(t, StatusRefundPending.CanCancel())
	assert.False(t, StatusRefunding.CanCancel())
	assert.False(t, StatusRefunded.CanCancel())
}

func TestCanRefund(t *testing.T) {
	assert.True(t, StatusPaid.CanRefund())
	assert.True(t, StatusShipped.CanRefund())
	assert.True(t, StatusCompleted.CanRefund())

	assert.False(t, StatusPending.CanRefund())
	assert.False(t, StatusCancelled.CanRefund())
	assert.False(t, StatusRefunded.CanRefund())
}

func TestCanConfirm(t *testing.T) {
	assert.True(t, StatusShipped.CanConfirm())

	assert.False(t, StatusPending.CanConfirm())
	assert.False(t, StatusPaid.CanConfirm())
	assert.False(t, StatusCompleted.CanConfirm())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())

	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRefundPending.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	legal := [][2]OrderStatus{
		{StatusPending, StatusPaid},
		{StatusPending, StatusCancelled},
		{StatusPaid, StatusShipped},
		{StatusPaid, StatusCancelled},
		{StatusPaid, StatusRefundPending},
		{StatusShipped, StatusCompleted},
		{StatusShipped, StatusRefundPending},
		{StatusCompleted, StatusRefundPending},
		{StatusRefundPending, StatusRefunding},
		{StatusRefundPending, StatusRefunded},
		{StatusRefundPending, StatusPaid},
		{StatusRefunding, StatusRefunded},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc[0], tc[1]), "%s -> %s should be legal", tc[0], tc[1])
	}

	illegal := [][2]OrderStatus{
		{StatusPending, StatusShipped},
		{StatusPending, StatusCompleted},
		{StatusShipped, StatusCancelled},
		{StatusCancelled, StatusPaid},
		{StatusCompleted, StatusPaid},
		{StatusRefunded, StatusPaid},
		{StatusPaid, StatusPaid},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc[0], tc[1]), "%s -> %s should be illegal", tc[0], tc[1])
	}
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for _, terminal := range []OrderStatus{StatusCancelled, StatusRefunded} {
		assert.Empty(t, transitions[terminal], "terminal state %s must have no exits", terminal)
	}
	// completed is terminal for the lifecycle but still refundable
	for to := range transitions[StatusCompleted] {
		assert.Equal(t, StatusRefundPending, to)
	}
}
