// Package querycache provides the minimal caching primitives the SDK needs:
// key-addressed storage with TTL staleness, exact and prefix invalidation,
// and deduplication of concurrent fetches for the same key.
//
// It is deliberately not a general-purpose cache. The key space and
// invalidation edges are fixed by the sdk package's operation table; nothing
// here evicts, serializes, or persists.
package querycache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const keySeparator = "\x1f"

// Key is an ordered tuple of segments, e.g. {"ascendraa", "check", "feat-1"}.
type Key []string

// String joins the segments for display and map addressing.
func (k Key) String() string {
	return strings.Join(k, keySeparator)
}

// FetchFunc loads a fresh value for a key.
type FetchFunc func(ctx context.Context) (any, error)

// Observer receives cache hit/miss notifications. The second key segment is
// the operation namespace.
type Observer interface {
	CacheHit(namespace string)
	CacheMiss(namespace string)
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Store holds cached values keyed by tuple.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry

	group       singleflight.Group
	readRetries int
	observer    Observer
	now         func() time.Time
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithReadRetries sets how many times a failed fetch is retried. Applies to
// reads only; callers issue mutations outside the store.
func WithReadRetries(n int) StoreOption {
	return func(s *Store) {
		if n >= 0 {
			s.readRetries = n
		}
	}
}

// WithObserver wires hit/miss notifications, e.g. for metrics.
func WithObserver(o Observer) StoreOption {
	return func(s *Store) { s.observer = o }
}

// NewStore creates an empty store. The default read retry count of 2 matches
// the SDK's stock query configuration.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries:     make(map[string]entry),
		readRetries: 2,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Do returns the cached value for key if it is younger than staleTime,
// otherwise fetches a fresh one and caches it. Concurrent calls for the same
// key share a single fetch. Failed fetches are retried up to the configured
// read retry count; a fetch that still fails caches nothing.
func (s *Store) Do(ctx context.Context, key Key, staleTime time.Duration, fetch FetchFunc) (any, error) {
	addr := key.String()

	if value, ok := s.lookup(addr, staleTime); ok {
		s.observeHit(key)
		return value, nil
	}
	s.observeMiss(key)

	value, err, _ := s.group.Do(addr, func() (any, error) {
		// A concurrent flight may have refreshed the entry while this call
		// was waiting on the group.
		if value, ok := s.lookup(addr, staleTime); ok {
			return value, nil
		}

		value, err := s.fetchWithRetry(ctx, fetch)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.entries[addr] = entry{value: value, fetchedAt: s.now()}
		s.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) fetchWithRetry(ctx context.Context, fetch FetchFunc) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= s.readRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := fetch(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Invalidate removes the exact entry for key, if present.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	delete(s.entries, key.String())
	s.mu.Unlock()
}

// InvalidatePrefix removes every entry whose key begins with the given
// segments. Matching is segment-aligned: prefix {"a", "b"} matches
// {"a", "b", "c"} but not {"a", "bc"}.
func (s *Store) InvalidatePrefix(prefix Key) {
	match := prefix.String() + keySeparator

	s.mu.Lock()
	for addr := range s.entries {
		if addr == prefix.String() || strings.HasPrefix(addr, match) {
			delete(s.entries, addr)
		}
	}
	s.mu.Unlock()
}

// Flush drops every entry.
func (s *Store) Flush() {
	s.mu.Lock()
	s.entries = make(map[string]entry)
	s.mu.Unlock()
}

// Len returns the number of cached entries, fresh or stale.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) lookup(addr string, staleTime time.Duration) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[addr]
	if !ok || s.now().Sub(e.fetchedAt) >= staleTime {
		return nil, false
	}
	return e.value, true
}

func (s *Store) observeHit(key Key) {
	if s.observer != nil {
		s.observer.CacheHit(namespaceOf(key))
	}
}

func (s *Store) observeMiss(key Key) {
	if s.observer != nil {
		s.observer.CacheMiss(namespaceOf(key))
	}
}

func namespaceOf(key Key) string {
	if len(key) > 1 {
		return key[1]
	}
	if len(key) == 1 {
		return key[0]
	}
	return ""
}
