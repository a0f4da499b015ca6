// Package cache provides a Redis-backed short-TTL cache of non-invoked
// ledger entries, trading a bounded revocation latency (the TTL) for one
// fewer store round-trip per verified request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbenek/sitegate/internal/models"
	"github.com/redis/go-redis/v9"
)

// VerifyCache memoizes ledger entries for token verification. Only
// non-invoked entries are ever stored; invoked entries must always miss so
// revocation is re-checked against the store.
type VerifyCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewVerifyCache creates a VerifyCache. The TTL is the upper bound on how
// long a revoked token can keep verifying.
func NewVerifyCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *VerifyCache {
	return &VerifyCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(attemptID string) string {
	return fmt.Sprintf("sitegate:attempt:%s", attemptID)
}

// Get returns the cached ledger entry, if present. Cache errors degrade to
// a miss so verification falls through to the store.
func (c *VerifyCache) Get(ctx context.Context, id string) (*models.LoginAttempt, bool) {
	raw, err := c.client.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("verify cache read failed", slog.String("attempt_id", id), slog.Any("error", err))
		}
		return nil, false
	}

	var attempt models.LoginAttempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		c.logger.Warn("verify cache decode failed", slog.String("attempt_id", id), slog.Any("error", err))
		return nil, false
	}
	return &attempt, true
}

// Set stores a non-invoked ledger entry for the cache TTL.
func (c *VerifyCache) Set(ctx context.Context, attempt *models.LoginAttempt) {
	if attempt == nil || attempt.Invoked {
		return
	}

	raw, err := json.Marshal(attempt)
	if err != nil {
		c.logger.Warn("verify cache encode failed", slog.String("attempt_id", attempt.ID), slog.Any("error", err))
		return
	}

	if err := c.client.Set(ctx, cacheKey(attempt.ID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("verify cache write failed", slog.String("attempt_id", attempt.ID), slog.Any("error", err))
	}
}

// Invalidate drops an entry immediately, called on logout so revocation is
// not deferred to TTL expiry.
func (c *VerifyCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, cacheKey(id)).Err(); err != nil {
		c.logger.Warn("verify cache invalidate failed", slog.String("attempt_id", id), slog.Any("error", err))
	}
}
