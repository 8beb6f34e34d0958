package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatusForwardChain(t *testing.T) {
	assert.True(t, CanTransitionOrderStatus(OrderStatusPending, OrderStatusConfirmed))
	assert.True(t, CanTransitionOrderStatus(OrderStatusConfirmed, OrderStatusProcessing))
	assert.True(t, CanTransitionOrderStatus(OrderStatusProcessing, OrderStatusShipped))
	assert.True(t, CanTransitionOrderStatus(OrderStatusShipped, OrderStatusOutForDelivery))
	assert.True(t, CanTransitionOrderStatus(OrderStatusOutForDelivery, OrderStatusDelivered))

	// no skipping steps
	assert.False(t, CanTransitionOrderStatus(OrderStatusPending, OrderStatusShipped))
	assert.False(t, CanTransitionOrderStatus(OrderStatusConfirmed, OrderStatusDelivered))
}

func TestOrderStatusCancellation(t *testing.T) {
	for _, from := range []string{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusOutForDelivery,
	} {
		assert.True(t, CanTransitionOrderStatus(from, OrderStatusCancelled), from)
		assert.True(t, CanTransitionOrderStatus(from, OrderStatusReturned), from)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	for _, terminal := range []string{OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned} {
		assert.True(t, IsTerminalOrderStatus(terminal))
		assert.False(t, CanTransitionOrderStatus(terminal, OrderStatusPending))
		assert.False(t, CanTransitionOrderStatus(terminal, OrderStatusCancelled))
	}
}

func TestInitialPaymentStatus(t *testing.T) {
	assert.Equal(t, PaymentStatusPending, InitialPaymentStatus(PaymentMethodCOD))
	assert.Equal(t, PaymentStatusUnpaid, InitialPaymentStatus(PaymentMethodBkash))
	assert.Equal(t, PaymentStatusUnpaid, InitialPaymentStatus(PaymentMethodCard))
}

func TestIsValidPaymentMethod(t *testing.T) {
	assert.True(t, IsValidPaymentMethod(PaymentMethodCOD))
	assert.True(t, IsValidPaymentMethod(PaymentMethodNagad))
	assert.False(t, IsValidPaymentMethod(""))
	assert.False(t, IsValidPaymentMethod("cheque"))
}
