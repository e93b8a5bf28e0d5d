package jwttoken

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// revokedKeyPrefix namespaces revoked token IDs in Redis.
const revokedKeyPrefix = "attestor:revoked_jti:"

// RedisTRL is a Redis-backed token revocation list. Entries expire with the
// token they shadow, so the list stays bounded by the token TTL.
type RedisTRL struct {
	client *redis.Client
}

func NewRedisTRL(client *redis.Client) *RedisTRL {
	return &RedisTRL{client: client}
}

// RevokeToken adds a token JTI to the revocation list with TTL.
func (t *RedisTRL) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	return t.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

// IsTokenRevoked checks if a token JTI is in the revocation list.
func (t *RedisTRL) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := t.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InMemoryTRL is an in-memory token revocation list for single-instance
// deployments and tests.
type InMemoryTRL struct {
	mu      sync.RWMutex
	revoked map[string]time.Time // jti -> expiry timestamp
}

func NewInMemoryTRL() *InMemoryTRL {
	return &InMemoryTRL{revoked: make(map[string]time.Time)}
}

// RevokeToken adds a token to the revocation list with TTL.
func (t *InMemoryTRL) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.revoked[jti] = time.Now().Add(ttl)
	return nil
}

// IsTokenRevoked checks if a token is in the revocation list. Expired entries
// are treated as absent since the token itself has expired by then.
func (t *InMemoryTRL) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	expiry, exists := t.revoked[jti]
	if !exists {
		return false, nil
	}
	if time.Now().After(expiry) {
		return false, nil
	}
	return true, nil
}
