package repository

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

// MemoryCacheRegistry is the in-memory CacheRegistry. It is the default;
// the Valkey registry takes over when the engine shares cached resources
// across restarts.
type MemoryCacheRegistry struct {
	mu      sync.Mutex
	entries map[string]*domain.CacheEntry
	locks   map[string]time.Time
}

// NewMemoryCacheRegistry creates an in-memory registry and starts its
// cleanup goroutine.
func NewMemoryCacheRegistry() *MemoryCacheRegistry {
	r := &MemoryCacheRegistry{
		entries: make(map[string]*domain.CacheEntry),
		locks:   make(map[string]time.Time),
	}
	go r.cleanupLoop()
	return r
}

// Get returns the live entry for key, evicting it when expired.
func (r *MemoryCacheRegistry) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(r.entries, key)
		return nil, nil
	}
	return entry, nil
}

func (r *MemoryCacheRegistry) Save(ctx context.Context, key string, entry *domain.CacheEntry, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = entry
	return nil
}

func (r *MemoryCacheRegistry) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, key)
	return nil
}

// Cleanup removes all expired entries and stale locks.
func (r *MemoryCacheRegistry) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, entry := range r.entries {
		if now.After(entry.ExpiresAt) {
			delete(r.entries, key)
			removed++
		}
	}
	for key, expires := range r.locks {
		if now.After(expires) {
			delete(r.locks, key)
		}
	}
	if removed > 0 {
		logrus.Debugf("[MemoryCacheRegistry] Cleanup removed %d expired entries", removed)
	}
	return nil
}

// Lock acquires the per-key negotiation lock when free or expired.
func (r *MemoryCacheRegistry) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if expires, held := r.locks[key]; held && time.Now().Before(expires) {
		return false, nil
	}
	r.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (r *MemoryCacheRegistry) Unlock(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.locks, key)
	return nil
}

func (r *MemoryCacheRegistry) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		_ = r.Cleanup(context.Background())
	}
}
