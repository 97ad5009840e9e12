package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tiny11/tiny11-backend/pkg/redis"
)

// InFlightGuard collapses concurrent callbacks for the same token onto one
// winner. The marker expires after ttl so a crashed worker cannot block retries.
type InFlightGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewInFlightGuard builds a guard whose keys live under scope.
func NewInFlightGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*InFlightGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &InFlightGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Acquire reports whether the caller won the marker for id.
func (g *InFlightGuard) Acquire(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, id), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set in-flight key: %w", err)
	}
	return set, nil
}

// Release drops the marker so a later retry can proceed.
func (g *InFlightGuard) Release(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, id))
}
