package domain

import (
	"context"
	"time"
)

// CacheEntry maps a request fingerprint to a provider-issued cached-resource
// name. An entry is valid iff ExpiresAt is in the future; stores treat
// expired entries as misses.
type CacheEntry struct {
	// ResourceName is the provider-assigned identifier for the cached content.
	ResourceName string `json:"resource_name"`
	// ExpiresAt is when this entry stops being trusted locally. It is set
	// slightly before the provider-side expiry so a live entry never
	// references a dead remote resource.
	ExpiresAt time.Time `json:"expires_at"`
	// Model is the model the cache was created for.
	Model string `json:"model,omitempty"`
}

// CacheRegistry is the process-wide fingerprint -> CacheEntry store shared by
// all concurrent cache negotiations. Implementations can be in-memory
// (default) or distributed (Valkey).
type CacheRegistry interface {
	// Get retrieves an entry by registry key. Returns nil when absent or
	// expired (not an error).
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Save stores an entry. The TTL should be at or below the provider-side
	// cache TTL.
	Save(ctx context.Context, key string, entry *CacheEntry, ttl time.Duration) error

	// Delete removes an entry.
	Delete(ctx context.Context, key string) error

	// Cleanup removes all expired entries. Called periodically.
	Cleanup(ctx context.Context) error

	// Lock serializes a read-then-maybe-create sequence for one registry key
	// so concurrent negotiations do not both issue a remote create. Returns
	// false when another negotiation holds the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unlock releases a lock taken by Lock.
	Unlock(ctx context.Context, key string) error
}

// CreateCacheRequest is the payload for creating a provider-side cached
// resource out of band.
type CreateCacheRequest struct {
	// Model is the provider-normalized model identifier.
	Model string `json:"model"`
	// DisplayName labels the resource in the provider's console.
	DisplayName string `json:"display_name"`
	// TTLSeconds is the server-side lifetime of the resource.
	TTLSeconds int `json:"ttl_seconds"`
	// SystemText is the system prompt the resource caches.
	SystemText string `json:"system_text"`
}

// CachedContentCreator is the injected capability that creates a remote
// cached resource and returns its opaque name. Any failure means "no cache
// available this time"; callers must degrade silently.
type CachedContentCreator interface {
	CreateCachedContent(ctx context.Context, req CreateCacheRequest) (string, error)
}
