package redis

// Package redis provides Redis-backed adapters for the security kernel.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/ports"
)

var _ ports.AuthorizationCache = (*AuthorizationCache)(nil)

const defaultPrefix = "gatekeeper:"

// AuthorizationCache shares AuthorizationInfo between processes through Redis.
// Values are stored as JSON; permissions round-trip through their canonical text form.
type AuthorizationCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// AuthorizationCacheOptions configures the Redis cache.
type AuthorizationCacheOptions struct {
	Client redis.UniversalClient // Required
	Prefix string                // Optional: defaults to "gatekeeper:"
	TTL    time.Duration         // Optional: <= 0 stores without expiry
}

// NewAuthorizationCache creates a Redis-backed AuthorizationCache.
func NewAuthorizationCache(opts AuthorizationCacheOptions) (*AuthorizationCache, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &AuthorizationCache{client: opts.Client, prefix: prefix, ttl: opts.TTL}, nil
}

func (c *AuthorizationCache) Get(ctx context.Context, key string) (domainauth.AuthorizationInfo, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.AuthorizationInfo{}, false, nil
		}
		return domainauth.AuthorizationInfo{}, false, fmt.Errorf("redis get: %w", err)
	}

	var info domainauth.AuthorizationInfo
	if unmarshalErr := json.Unmarshal(data, &info); unmarshalErr != nil {
		return domainauth.AuthorizationInfo{}, false, fmt.Errorf("unmarshal authorization info: %w", unmarshalErr)
	}
	return info, true, nil
}

func (c *AuthorizationCache) Set(ctx context.Context, key string, info domainauth.AuthorizationInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal authorization info: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *AuthorizationCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
