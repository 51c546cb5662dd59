package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
	"github.com/hrayleung/Jin-sub003/infrastructure/valkey"
)

// ValkeyCacheRegistry implements domain.CacheRegistry on Valkey so cached
// resource names survive engine restarts and are shared when several engine
// processes point at the same server.
type ValkeyCacheRegistry struct {
	client *valkey.Client
	prefix string
}

// NewValkeyCacheRegistry creates a registry over an existing Valkey client.
func NewValkeyCacheRegistry(client *valkey.Client) *ValkeyCacheRegistry {
	return &ValkeyCacheRegistry{
		client: client,
		prefix: client.Key("cache_registry") + ":",
	}
}

func (r *ValkeyCacheRegistry) fullKey(key string) string {
	return r.prefix + key
}

func (r *ValkeyCacheRegistry) inner() valkeylib.Client {
	return r.client.Inner()
}

// Get retrieves a registry entry. Expiry is enforced server-side by TTL, so
// a present key is always live.
func (r *ValkeyCacheRegistry) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	cmd := r.inner().B().Get().Key(r.fullKey(key)).Build()

	data, err := r.inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache registry entry: %w", err)
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache registry entry: %w", err)
	}
	if time.Now().After(entry.ExpiresAt) {
		return nil, nil
	}
	return &entry, nil
}

func (r *ValkeyCacheRegistry) Save(ctx context.Context, key string, entry *domain.CacheEntry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache registry entry: %w", err)
	}

	cmd := r.inner().B().Set().
		Key(r.fullKey(key)).
		Value(string(data)).
		Ex(ttl).
		Build()

	if err := r.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save cache registry entry: %w", err)
	}
	return nil
}

func (r *ValkeyCacheRegistry) Delete(ctx context.Context, key string) error {
	cmd := r.inner().B().Del().Key(r.fullKey(key)).Build()
	if err := r.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete cache registry entry: %w", err)
	}
	return nil
}

// Cleanup is a no-op; Valkey expires keys natively via TTL.
func (r *ValkeyCacheRegistry) Cleanup(ctx context.Context) error {
	return nil
}

// Lock acquires the per-key negotiation lock with SET NX.
func (r *ValkeyCacheRegistry) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	lockKey := r.fullKey("lock:" + key)
	cmd := r.inner().B().Set().
		Key(lockKey).
		Value("1").
		Nx().
		Ex(ttl).
		Build()

	err := r.inner().Do(ctx, cmd).Error()
	if err != nil {
		if valkey.IsNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire cache registry lock: %w", err)
	}
	return true, nil
}

func (r *ValkeyCacheRegistry) Unlock(ctx context.Context, key string) error {
	lockKey := r.fullKey("lock:" + key)
	cmd := r.inner().B().Del().Key(lockKey).Build()
	return r.inner().Do(ctx, cmd).Error()
}
