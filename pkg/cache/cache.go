// Package cache implements the Result Cache (spec §4.5): content-addressed
// memoization of agent outputs, bounded by entry count (the spec's "safer
// default" resolution of its own open question on size bound) and backed
// by github.com/hashicorp/golang-lru/v2 — like backoff/v5, a dependency
// kadirpekel-hector lists but never imports; this module is its first real
// use. Persistence is pluggable behind Backend; FileBackend is the
// mandatory on-disk implementation, RedisBackend an optional enrichment
// grounded on original_source/utils/cache.py.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kadirpekel/orchestrator/pkg/stage"
)

// Entry is a cached agent output plus accounting metadata.
type Entry struct {
	Value      any
	TokenCount int
	CreatedAt  time.Time
}

// Key derives the content-addressed cache key from (agent role, context
// fingerprint, capability name), per spec §4.5. contextFingerprint is
// expected to already be a canonical string — in this implementation it
// is always the output of state.ProjectState.ContextString, which is
// deterministic by construction (sorted bucket keys, fixed section
// order) — so a direct byte concatenation is a valid canonicalization and
// no intermediate JSON re-encoding step is needed.
func Key(role stage.Role, contextFingerprint string, capability string) string {
	h := sha256.New()
	h.Write([]byte(role))
	h.Write([]byte{0})
	h.Write([]byte(contextFingerprint))
	h.Write([]byte{0})
	h.Write([]byte(capability))
	return hex.EncodeToString(h.Sum(nil))
}

// Backend persists a cache's full entry set. Save/Load failures never
// propagate as fatal errors to the caller: per spec §4.5, the cache is
// best-effort and a corrupted or unreadable backend is discarded silently.
type Backend interface {
	Save(entries map[string]*Entry) error
	Load() (map[string]*Entry, error)
}

// Cache is an LRU-bounded, content-addressed memoization store.
type Cache struct {
	lru     *lru.Cache[string, *Entry]
	backend Backend
	log     *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithBackend attaches a persistence Backend used by Persist/Load.
func WithBackend(b Backend) Option {
	return func(c *Cache) { c.backend = b }
}

// WithLogger overrides the cache's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// New constructs a Cache bounded to maxSize entries (LRU eviction).
func New(maxSize int, opts ...Option) (*Cache, error) {
	l, err := lru.New[string, *Entry](maxSize)
	if err != nil {
		return nil, err
	}
	c := &Cache{lru: l, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Get returns the cached entry for key, if present. A hit does not count
// as a mutation for LRU purposes beyond golang-lru's own recency bump.
func (c *Cache) Get(key string) (*Entry, bool) {
	return c.lru.Get(key)
}

// Set inserts or replaces the entry for key. Once full, the
// least-recently-used entry is evicted to make room, per golang-lru's
// fixed-capacity semantics.
func (c *Cache) Set(key string, e *Entry) {
	c.lru.Add(key, e)
}

// Len returns the current number of entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Resize changes the cache's capacity, evicting least-recently-used
// entries if shrinking. Returns the number of entries evicted.
func (c *Cache) Resize(size int) int {
	return c.lru.Resize(size)
}

// Persist writes the full entry set to the configured Backend. A nil
// Backend makes Persist a no-op (cache persistence is optional).
func (c *Cache) Persist() error {
	if c.backend == nil {
		return nil
	}
	entries := make(map[string]*Entry, c.lru.Len())
	for _, k := range c.lru.Keys() {
		if v, ok := c.lru.Peek(k); ok {
			entries[k] = v
		}
	}
	return c.backend.Save(entries)
}

// Load restores entries from the configured Backend. Per spec §4.5, a
// corrupted or unreadable backend is discarded silently: Load logs a
// warning and leaves the cache empty rather than returning an error the
// caller would have to handle specially.
func (c *Cache) Load() {
	if c.backend == nil {
		return
	}
	entries, err := c.backend.Load()
	if err != nil {
		c.log.Warn("cache: discarding unreadable persisted cache", "error", err)
		return
	}
	for k, v := range entries {
		c.lru.Add(k, v)
	}
}
