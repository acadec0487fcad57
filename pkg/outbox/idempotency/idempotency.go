// Package idempotency gives at-least-once consumers (Pub/Sub subscribers,
// processor webhooks) exactly-once side effects by claiming each event id in
// Redis before handling it.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

var (
	// ErrDuplicate means another delivery already claimed the event.
	ErrDuplicate = errors.New("event already processed")
	// ErrStoreUnavailable wraps failures talking to the claim store. Callers
	// should ask for redelivery rather than drop the event.
	ErrStoreUnavailable = errors.New("idempotency store unavailable")
)

// Store is the subset of pkg/redis.Client a Guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard claims event ids for one named consumer. Two consumers of the same
// event keep independent claims.
type Guard struct {
	store    Store
	consumer string
	ttl      time.Duration
}

func NewGuard(store Store, consumer string, ttl time.Duration) (*Guard, error) {
	consumer = strings.TrimSpace(consumer)
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case consumer == "":
		return nil, errors.New("consumer name is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, consumer: consumer, ttl: ttl}, nil
}

// Once runs fn the first time eventID is seen and returns ErrDuplicate
// afterwards. A failing fn releases the claim so the next delivery retries;
// a failed release is appended to fn's error.
func (g *Guard) Once(ctx context.Context, eventID string, fn func(context.Context) error) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	claimed, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return fmt.Errorf("claim %s: %w: %w", eventID, ErrStoreUnavailable, err)
	}
	if !claimed {
		return ErrDuplicate
	}

	if err := fn(ctx); err != nil {
		if relErr := g.store.Del(context.WithoutCancel(ctx), key); relErr != nil {
			err = multierr.Append(err, fmt.Errorf("release claim %s: %w", eventID, relErr))
		}
		return err
	}
	return nil
}

func (g *Guard) key(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:"+g.consumer, eventID), nil
}
