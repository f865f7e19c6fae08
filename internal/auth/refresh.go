package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RefreshTokenStore remembers which refresh tokens are still valid.
type RefreshTokenStore interface {
	Save(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (uuid.UUID, error)
	Revoke(ctx context.Context, token string) error
}

// RedisRefreshStore keeps refresh tokens in Redis keyed by their SHA-256 digest.
type RedisRefreshStore struct {
	client redis.Cmdable
}

// NewRedisRefreshStore constructs a RedisRefreshStore.
func NewRedisRefreshStore(client redis.Cmdable) *RedisRefreshStore {
	return &RedisRefreshStore{client: client}
}

// Save stores token for ttl.
func (s *RedisRefreshStore) Save(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	if err := s.client.Set(ctx, refreshKey(token), userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("auth: save refresh token: %w", err)
	}
	return nil
}

// Lookup returns the owner of token, or ErrInvalidRefreshToken when the token
// is unknown or expired.
func (s *RedisRefreshStore) Lookup(ctx context.Context, token string) (uuid.UUID, error) {
	raw, err := s.client.Get(ctx, refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, ErrInvalidRefreshToken
		}
		return uuid.Nil, fmt.Errorf("auth: lookup refresh token: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidRefreshToken
	}
	return id, nil
}

// Revoke forgets token. Revoking an unknown token is not an error.
func (s *RedisRefreshStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, refreshKey(token)).Err(); err != nil {
		return fmt.Errorf("auth: revoke refresh token: %w", err)
	}
	return nil
}

func refreshKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "refresh:" + hex.EncodeToString(sum[:])
}

var _ RefreshTokenStore = (*RedisRefreshStore)(nil)
