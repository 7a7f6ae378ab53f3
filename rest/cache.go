package rest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Store is the cache backing used by the transport's read-through layer.
// Implementations own their atomicity; the client treats failed Gets as
// misses and failed Sets as best-effort.
type Store interface {
	// Get returns the cached value for key and whether it was present.
	Get(ctx context.Context, key string) (interface{}, bool, error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Flush removes every key. Global hazard on shared stores; prefer
	// DeletePrefix for scoped invalidation.
	Flush(ctx context.Context) error
}

// cacheKey builds the deterministic cache key for a request. Layout is
// prefix:METHOD:endpoint, then a short hash of the sorted query params when
// present, then a short hash of the bearer token so differently-privileged
// callers never share entries. The raw token never appears in the key.
func cacheKey(prefix, method, endpoint string, params url.Values, token string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(method)
	b.WriteByte(':')
	b.WriteString(endpoint)
	if len(params) > 0 {
		// Encode sorts by key, keeping the hash order-independent.
		b.WriteByte(':')
		b.WriteString(shortHash(params.Encode()))
	}
	if token != "" {
		b.WriteString(":tok:")
		b.WriteString(shortHash(token))
	}
	return b.String()
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

type memoryEntry struct {
	value     interface{}
	expiresAt time.Time
}

// MemoryStore is the default in-process Store: a mutex-guarded map with
// lazy TTL expiry. Suitable for single-process use; use RedisStore to share
// a cache across processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get implements Store. Expired entries count as misses and are dropped.
func (s *MemoryStore) Get(_ context.Context, key string) (interface{}, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// DeletePrefix implements Store.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
	return nil
}

// Flush implements Store.
func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]memoryEntry)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live entries, counting not-yet-expired only.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	n := 0
	for _, entry := range s.entries {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}
