package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/quanghuyng/feastly-backend/pkg/enums"
	pkgerrors "github.com/quanghuyng/feastly-backend/pkg/errors"
	"github.com/quanghuyng/feastly-backend/pkg/redis"
)

// IdempotencyGuard dedupes webhook deliveries with a redis SetNX marker
// keyed by (provider, externalID, eventType). At-least-once providers replay
// events; the first delivery wins the marker and later ones are dropped.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

// NewIdempotencyGuard builds a guard with the given marker TTL.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency store is required")
	}
	if ttl < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ttl must be non-negative")
	}
	if scope == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark claims the delivery. Returns true when this delivery is a
// duplicate of one already claimed.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, provider enums.PaymentProvider, externalID, eventType string) (bool, error) {
	if externalID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "external id is required")
	}
	key := g.store.IdempotencyKey(g.scope, g.eventID(provider, externalID, eventType))
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set idempotency key")
	}
	return !set, nil
}

// Release frees the marker so a failed delivery can be retried by the
// provider.
func (g *IdempotencyGuard) Release(ctx context.Context, provider enums.PaymentProvider, externalID, eventType string) error {
	if externalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external id is required")
	}
	key := g.store.IdempotencyKey(g.scope, g.eventID(provider, externalID, eventType))
	return g.store.Del(ctx, key)
}

func (g *IdempotencyGuard) eventID(provider enums.PaymentProvider, externalID, eventType string) string {
	return fmt.Sprintf("%s:%s:%s", provider, externalID, eventType)
}
