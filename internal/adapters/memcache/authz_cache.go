package memcache

import (
	"context"
	"slices"
	"time"

	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/ports"
)

var _ ports.AuthorizationCache = (*AuthorizationCache)(nil)

// AuthorizationCache keeps AuthorizationInfo in process memory.
type AuthorizationCache struct {
	lru *LRU[domainauth.AuthorizationInfo]
	ttl time.Duration
}

// AuthorizationCacheOptions configures the in-process cache.
type AuthorizationCacheOptions struct {
	LRU LRUOptions
	TTL time.Duration // Optional: <= 0 keeps entries until evicted or invalidated
}

// NewAuthorizationCache creates an empty cache.
func NewAuthorizationCache(opts AuthorizationCacheOptions) *AuthorizationCache {
	return &AuthorizationCache{
		lru: NewLRU[domainauth.AuthorizationInfo](opts.LRU),
		ttl: opts.TTL,
	}
}

func (c *AuthorizationCache) Get(_ context.Context, key string) (domainauth.AuthorizationInfo, bool, error) {
	info, ok := c.lru.Get(key)
	if !ok {
		return domainauth.AuthorizationInfo{}, false, nil
	}
	return clone(info), true, nil
}

func (c *AuthorizationCache) Set(_ context.Context, key string, info domainauth.AuthorizationInfo) error {
	c.lru.Set(key, clone(info), c.ttl)
	return nil
}

func (c *AuthorizationCache) Delete(_ context.Context, key string) error {
	c.lru.Delete(key)
	return nil
}

// Stats exposes the underlying LRU counters.
func (c *AuthorizationCache) Stats() Stats { return c.lru.Stats() }

// Callers may append to the returned slices; keep the cached copy private.
func clone(info domainauth.AuthorizationInfo) domainauth.AuthorizationInfo {
	return domainauth.AuthorizationInfo{
		Roles:       slices.Clone(info.Roles),
		Permissions: slices.Clone(info.Permissions),
	}
}
