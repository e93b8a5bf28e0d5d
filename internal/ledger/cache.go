package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "attestor/pkg/domain"
)

// StatusCache decorates a Client with a short-TTL Redis cache on ReadStatus.
// Verification traffic is read-heavy and the underlying gateway read, while
// fee-free, still crosses the network per call.
//
// The cache may be stale for at most the TTL, which must stay inside the
// reconciliation staleness budget. Writes through this client invalidate the
// cached entry immediately, so a revocation observed by this instance is
// never served stale from its own cache.
type StatusCache struct {
	inner  Client
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Ensure StatusCache implements Client.
var _ Client = (*StatusCache)(nil)

// NewStatusCache wraps inner with a Redis-backed ReadStatus cache.
func NewStatusCache(inner Client, client *redis.Client, ttl time.Duration, logger *slog.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatusCache{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *StatusCache) Anchor(ctx context.Context, fingerprint id.Fingerprint) (Receipt, error) {
	receipt, err := c.inner.Anchor(ctx, fingerprint)
	if err == nil {
		c.invalidate(ctx, fingerprint)
	}
	return receipt, err
}

func (c *StatusCache) ReadStatus(ctx context.Context, fingerprint id.Fingerprint) (Status, error) {
	key := cacheKey(fingerprint)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var status Status
		if json.Unmarshal(cached, &status) == nil {
			return status, nil
		}
		// Undecodable entries are dropped and re-read from the ledger.
		c.client.Del(ctx, key)
	}

	status, err := c.inner.ReadStatus(ctx, fingerprint)
	if err != nil {
		return Status{}, err
	}

	if encoded, err := json.Marshal(status); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil && c.logger != nil {
			c.logger.WarnContext(ctx, "ledger status cache write failed",
				"error", err,
				"fingerprint", fingerprint.String(),
			)
		}
	}
	return status, nil
}

func (c *StatusCache) Revoke(ctx context.Context, fingerprint id.Fingerprint, issuerRef string) (Receipt, error) {
	receipt, err := c.inner.Revoke(ctx, fingerprint, issuerRef)
	// Invalidate on any outcome that may have changed ledger state, including
	// AlreadyRevoked, so the next read reflects the revoked fact.
	c.invalidate(ctx, fingerprint)
	return receipt, err
}

func (c *StatusCache) invalidate(ctx context.Context, fingerprint id.Fingerprint) {
	if err := c.client.Del(ctx, cacheKey(fingerprint)).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "ledger status cache invalidation failed",
			"error", err,
			"fingerprint", fingerprint.String(),
		)
	}
}

func cacheKey(fingerprint id.Fingerprint) string {
	return "ledger:status:" + fingerprint.String()
}
