package qrtoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrInvalid is returned when a payload is unknown, expired, or revoked.
// Redis TTL expiry and an unknown token are indistinguishable on purpose.
var ErrInvalid = errors.New("qr payload invalid or expired")

const keyPrefix = "qr:token:"

// Service mints and resolves opaque QR payloads. Tokens live in redis with
// the validity window as their native TTL, so expiry needs no sweeper.
type Service struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a token service with the given validity window.
func New(rdb *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{rdb: rdb, ttl: ttl}
}

// TTL returns the validity window applied to minted tokens.
func (s *Service) TTL() time.Duration { return s.ttl }

// Mint issues a fresh opaque payload bound to subject. The payload carries no
// parseable structure; the binding lives server-side only.
func (s *Service) Mint(ctx context.Context, subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject required")
	}
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, keyPrefix+token, subject, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store qr token: %w", err)
	}
	return token, nil
}

// Resolve maps a payload back to the subject it was minted for.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalid
	}
	subject, err := s.rdb.Get(ctx, keyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalid
		}
		return "", fmt.Errorf("resolve qr token: %w", err)
	}
	return subject, nil
}

// Revoke removes a payload before its TTL runs out.
func (s *Service) Revoke(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, keyPrefix+token).Err()
}
