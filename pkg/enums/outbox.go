package enums

import "fmt"

// OutboxAggregateType identifies the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateCheckoutSession,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the domain event stored in outbox_events.
type OutboxEventType string

const (
	EventCheckoutInitiated  OutboxEventType = "checkout_initiated"
	EventCheckoutCancelled  OutboxEventType = "checkout_cancelled"
	EventCheckoutFailed     OutboxEventType = "checkout_failed"
	EventCheckoutExpired    OutboxEventType = "checkout_expired"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderDispensed     OutboxEventType = "order_dispensed"
	EventOrderCompleted     OutboxEventType = "order_completed"
	EventOrderFailed        OutboxEventType = "order_failed"
	EventOrderExpired       OutboxEventType = "order_expired"
	EventFinalizationFailed OutboxEventType = "finalization_failed"
)

var validEventTypes = []OutboxEventType{
	EventCheckoutInitiated,
	EventCheckoutCancelled,
	EventCheckoutFailed,
	EventCheckoutExpired,
	EventOrderPaid,
	EventOrderDispensed,
	EventOrderCompleted,
	EventOrderFailed,
	EventOrderExpired,
	EventFinalizationFailed,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
