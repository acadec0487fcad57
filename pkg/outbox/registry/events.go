package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/db/models"
	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox"
)

// aggregateOf pins every event type to the aggregate that emits it.
var aggregateOf = map[enums.OutboxEventType]enums.OutboxAggregateType{
	enums.EventHoldCreated:         enums.AggregateHold,
	enums.EventOrderCreated:        enums.AggregatePurchaseOrder,
	enums.EventOrderPaid:           enums.AggregatePurchaseOrder,
	enums.EventOrderPaymentFailed:  enums.AggregatePurchaseOrder,
	enums.EventOrderRefunded:       enums.AggregatePurchaseOrder,
	enums.EventOrderBrokerApproved: enums.AggregatePurchaseOrder,
}

// PermanentError marks an outbox row that will never publish. The
// dispatcher parks such rows in the DLQ instead of retrying them.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent outbox error"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p PermanentError
	return errors.As(err, &p)
}

// ResolvedEvent is an outbox row that passed validation and is ready to send.
type ResolvedEvent struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// EventRegistry checks outbox rows against the known event catalogue and
// routes them to the domain topic.
type EventRegistry struct {
	topic    string
	decoders *Decoders
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	return &EventRegistry{topic: cfg.DomainTopic, decoders: CurrentDecoders()}, nil
}

// Resolve fails with a PermanentError for any row that retrying cannot fix.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	want, known := aggregateOf[event.EventType]
	switch {
	case !known:
		return nil, Permanent(fmt.Errorf("unsupported event type %q", event.EventType))
	case want != event.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s, row says %s", event.EventType, want, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		return nil, Permanent(fmt.Errorf("envelope event id: %w", err))
	}
	payload, err := r.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, Permanent(err)
	}
	return &ResolvedEvent{Topic: r.topic, Envelope: envelope, Payload: payload}, nil
}
