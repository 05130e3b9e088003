package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// GuardScope namespaces the redis keys of processed Stripe events.
const GuardScope = "stripe-webhook"

const defaultInFlightTTL = 2 * time.Minute

// ClaimState is what Claim found for an event id.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the event and must Complete or Release it.
	ClaimAcquired ClaimState = iota
	// ClaimInFlight means another delivery is processing the event right now.
	ClaimInFlight
	// ClaimDone means the event was processed successfully before.
	ClaimDone
)

// IdempotencyGuard remembers Stripe event ids in redis so redeliveries are
// answered without touching the database. An event carries two keys: a short
// lived in-flight claim and a done marker written only after success. The
// order tables stay the authority: a lost or expired key only costs one
// extra, harmless, reconcile.
type IdempotencyGuard struct {
	store       redis.IdempotencyStore
	ttl         time.Duration
	inFlightTTL time.Duration
	scope       string
}

// NewIdempotencyGuard keeps done markers for ttl. In-flight claims expire
// after inFlightTTL so a crashed worker cannot hold an event past it.
func NewIdempotencyGuard(store redis.IdempotencyStore, ttl, inFlightTTL time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 || inFlightTTL < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if inFlightTTL == 0 {
		inFlightTTL = defaultInFlightTTL
	}
	if scope == "" {
		scope = GuardScope
	}
	return &IdempotencyGuard{store: store, ttl: ttl, inFlightTTL: inFlightTTL, scope: scope}, nil
}

// Claim reports whether eventID is already done, being processed by another
// delivery, or now owned by the caller.
func (g *IdempotencyGuard) Claim(ctx context.Context, eventID string) (ClaimState, error) {
	if eventID == "" {
		return ClaimAcquired, errors.New("event id is required")
	}
	done, err := g.store.Get(ctx, g.doneKey(eventID))
	if err != nil && !errors.Is(err, goredis.Nil) {
		return ClaimAcquired, fmt.Errorf("read done marker: %w", err)
	}
	if done != "" {
		return ClaimDone, nil
	}

	set, err := g.store.SetNX(ctx, g.inFlightKey(eventID), "1", g.inFlightTTL)
	if err != nil {
		return ClaimAcquired, fmt.Errorf("set in-flight key: %w", err)
	}
	if !set {
		return ClaimInFlight, nil
	}
	return ClaimAcquired, nil
}

// Complete records eventID as processed and drops the in-flight claim.
func (g *IdempotencyGuard) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if _, err := g.store.SetNX(ctx, g.doneKey(eventID), "1", g.ttl); err != nil {
		return fmt.Errorf("set done marker: %w", err)
	}
	return g.store.Del(ctx, g.inFlightKey(eventID))
}

// Release drops the in-flight claim so the gateway's retry is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.inFlightKey(eventID))
}

func (g *IdempotencyGuard) doneKey(eventID string) string {
	return g.store.IdempotencyKey(g.scope, eventID)
}

func (g *IdempotencyGuard) inFlightKey(eventID string) string {
	return g.store.IdempotencyKey(g.scope+":inflight", eventID)
}
