package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus("dispensed")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusDispensed, status)

	_, err = ParseOrderStatus("shipped")
	assert.Error(t, err)
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.False(t, OrderStatusPaid.IsTerminal())
	assert.False(t, OrderStatusDispensed.IsTerminal())
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.True(t, OrderStatusFailed.IsTerminal())
	assert.True(t, OrderStatusExpired.IsTerminal())
}

func TestParsePaymentStatusIsCaseInsensitive(t *testing.T) {
	status, err := ParsePaymentStatus(" completed ")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusCompleted, status)

	_, err = ParsePaymentStatus("REFUNDED")
	assert.Error(t, err)
}

func TestParsePaymentOutcome(t *testing.T) {
	outcome, err := ParsePaymentOutcome("USER_CANCEL")
	require.NoError(t, err)
	assert.Equal(t, PaymentOutcomeUserCancel, outcome)

	outcome, err = ParsePaymentOutcome("concluded")
	require.NoError(t, err)
	assert.Equal(t, PaymentOutcomeConcluded, outcome)

	_, err = ParsePaymentOutcome("")
	assert.Error(t, err)
}

func TestCheckoutStatusTerminal(t *testing.T) {
	assert.False(t, CheckoutStatusPending.IsTerminal())
	assert.True(t, CheckoutStatusFinalized.IsTerminal())
	assert.False(t, CheckoutStatus("bogus").IsTerminal())
}

func TestHoldAndEventParsers(t *testing.T) {
	hold, err := ParseHoldStatus("committed")
	require.NoError(t, err)
	assert.Equal(t, HoldStatusCommitted, hold)

	event, err := ParseOutboxEventType("order_paid")
	require.NoError(t, err)
	assert.Equal(t, EventOrderPaid, event)

	_, err = ParseOutboxAggregateType("vendor_order")
	assert.Error(t, err)
}

func TestOutboxDLQErrorReason(t *testing.T) {
	reason, err := ParseOutboxDLQErrorReason("unroutable")
	require.NoError(t, err)
	assert.True(t, reason.IsValid())
	assert.True(t, reason.Replayable())
	assert.False(t, OutboxDLQReasonNonRetryable.Replayable())

	_, err = ParseOutboxDLQErrorReason("gave_up")
	assert.Error(t, err)
}
