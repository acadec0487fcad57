package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/taxcredit-backend/pkg/enums"
	"github.com/angelmondragon/taxcredit-backend/pkg/outbox/payloads"
)

var (
	ErrNoDecoder    = errors.New("no decoder registered")
	ErrEmptyPayload = errors.New("payload is empty")
)

// Decoder turns envelope data into a typed payload pointer.
type Decoder func(data json.RawMessage) (any, error)

type schemaKey struct {
	event   enums.OutboxEventType
	version int
}

// Decoders maps an event type and schema version to its payload decoder.
type Decoders struct {
	mu     sync.RWMutex
	byKey  map[schemaKey]Decoder
	latest map[enums.OutboxEventType]int
}

func NewDecoders() *Decoders {
	return &Decoders{
		byKey:  map[schemaKey]Decoder{},
		latest: map[enums.OutboxEventType]int{},
	}
}

// Bind registers *T as the payload of version for every listed event type.
func Bind[T any](d *Decoders, version int, events ...enums.OutboxEventType) {
	decode := func(data json.RawMessage) (any, error) {
		payload := new(T)
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, event := range events {
		d.byKey[schemaKey{event: event, version: version}] = decode
		if version > d.latest[event] {
			d.latest[event] = version
		}
	}
}

// Decode treats version 0 as 1, the only schema emitted before versioning.
func (d *Decoders) Decode(event enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	if version == 0 {
		version = 1
	}
	d.mu.RLock()
	decode, ok := d.byKey[schemaKey{event: event, version: version}]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s v%d", ErrNoDecoder, event, version)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%s v%d: %w", event, version, ErrEmptyPayload)
	}
	payload, err := decode(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode %s v%d: %w", event, version, err)
	}
	return payload, nil
}

// Latest reports the newest registered schema version for event, or 0.
func (d *Decoders) Latest(event enums.OutboxEventType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest[event]
}

// CurrentDecoders covers every event the backend emits today.
func CurrentDecoders() *Decoders {
	d := NewDecoders()
	Bind[payloads.HoldCreatedEvent](d, 1, enums.EventHoldCreated)
	Bind[payloads.OrderCreatedEvent](d, 1, enums.EventOrderCreated)
	Bind[payloads.OrderPaymentEvent](d, 1, enums.EventOrderPaid, enums.EventOrderPaymentFailed, enums.EventOrderRefunded)
	Bind[payloads.OrderBrokerApprovedEvent](d, 1, enums.EventOrderBrokerApproved)
	return d
}
