package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregatePurchaseOrder OutboxAggregateType = "purchase_order"
	AggregateHold          OutboxAggregateType = "hold"
	AggregateCreditLot     OutboxAggregateType = "credit_lot"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePurchaseOrder,
	AggregateHold,
	AggregateCreditLot,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(value, validAggregateTypes, "aggregate type")
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventHoldCreated         OutboxEventType = "hold_created"
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderPaid           OutboxEventType = "order_paid"
	EventOrderPaymentFailed  OutboxEventType = "order_payment_failed"
	EventOrderRefunded       OutboxEventType = "order_refunded"
	EventOrderBrokerApproved OutboxEventType = "order_broker_approved"
)

var validOutboxEventTypes = []OutboxEventType{
	EventHoldCreated,
	EventOrderCreated,
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderRefunded,
	EventOrderBrokerApproved,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(value, validOutboxEventTypes, "event type")
}

// OutboxDLQErrorReason explains why a row was parked in outbox_dlq.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
