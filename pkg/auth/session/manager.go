// Package session keeps a server-side record of every issued access token so
// logout revokes it immediately instead of waiting for JWT expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
)

var errAccessIDRequired = errors.New("access id is required")

// Store is the Redis surface the manager uses. *pkg/redis.Client satisfies it.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is what the auth middleware consults on each request.
type AccessSessionChecker interface {
	Active(ctx context.Context, accessID string, userID uuid.UUID) (bool, error)
}

// Manager maps a token's jti to the user it was issued to. The entry lives
// exactly as long as the token.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.AccessTTL() <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	return &Manager{store: store, ttl: cfg.AccessTTL()}, nil
}

// NewAccessID returns a fresh jti.
func NewAccessID() string {
	return uuid.NewString()
}

func (m *Manager) key(accessID string) (string, error) {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return "", errAccessIDRequired
	}
	return m.store.AccessSessionKey(accessID), nil
}

// Generate records a session for accessID owned by userID.
func (m *Manager) Generate(ctx context.Context, accessID string, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return errors.New("user id is required")
	}
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, userID.String(), m.ttl)
}

// Active reports whether accessID is live and was issued to userID. A token
// replayed under another user's id counts as inactive.
func (m *Manager) Active(ctx context.Context, accessID string, userID uuid.UUID) (bool, error) {
	key, err := m.key(accessID)
	if err != nil {
		return false, err
	}
	owner, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read session: %w", err)
	}
	return owner == userID.String(), nil
}

// Revoke is idempotent; revoking an unknown session is not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}
