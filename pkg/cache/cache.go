// Package cache implements a bounded in-memory TTL cache with FIFO eviction,
// a background cleanup janitor, and a bounded log of memory-pressure alerts.
//
// The store is safe for concurrent use. All map access happens under a single
// mutex; the janitor goroutine is owned by the store and stopped by Destroy.
// Values are arbitrary; the store never serializes them except to estimate
// sizes for Stats, and a value that cannot be measured is simply skipped.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrStoreDestroyed is returned by Set and MSet after Destroy. Read paths
// never fail: a destroyed store reports misses instead.
var ErrStoreDestroyed = errors.New("cache: store destroyed")

// Config controls capacity, expiry and janitor behavior. The zero value is
// usable; every field falls back to its documented default.
type Config struct {
	// DefaultTTL applies to entries written without an explicit TTL.
	// Default 5 minutes.
	DefaultTTL time.Duration
	// MaxSize is the entry cap. Writing a new key at the cap evicts the
	// oldest-inserted entry first. Default 1000.
	MaxSize int
	// CleanupInterval is the janitor period. Default 60s.
	CleanupInterval time.Duration
	// MaxRetries bounds janitor retry attempts after a failed run. Default 3.
	MaxRetries int
	// MemoryThresholdMB is the heap usage above which the janitor records a
	// warning alert; above twice this value it records a critical alert and
	// evicts the oldest half of the store. Default 100.
	MemoryThresholdMB float64
	// MaxAlerts caps the alert log; older alerts rotate out. Default 10.
	MaxAlerts int
	// MemoryProbe reports current heap usage in MB. Defaults to
	// RuntimeMemoryProbe. Tests substitute a stub instead of patching
	// runtime state.
	MemoryProbe MemoryProbe
	// Logger receives janitor diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

const (
	defaultTTL               = 5 * time.Minute
	defaultMaxSize           = 1000
	defaultCleanupInterval   = 60 * time.Second
	defaultMaxRetries        = 3
	defaultMemoryThresholdMB = 100
	defaultMaxAlerts         = 10
)

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultTTL
	}
	if c.MaxSize <= 0 {
		c.MaxSize = defaultMaxSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MemoryThresholdMB <= 0 {
		c.MemoryThresholdMB = defaultMemoryThresholdMB
	}
	if c.MaxAlerts <= 0 {
		c.MaxAlerts = defaultMaxAlerts
	}
	if c.MemoryProbe == nil {
		c.MemoryProbe = RuntimeMemoryProbe
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Store is a bounded key-value cache with per-entry expiry.
//
// Ownership model: Store owns the janitor goroutine. Call Destroy to stop it.
type Store struct {
	mu        sync.Mutex
	items     map[string]*entry
	seq       uint64
	destroyed bool

	cfg Config

	hits   uint64
	misses uint64

	alerts []Alert

	cleanupRunning  atomic.Bool
	cleanupErrors   uint64
	lastCleanupTime time.Time

	sf singleflight.Group

	// Goroutine ownership.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Test seam for janitor retry pacing.
	retryBackoff backoffFactory
}

// New constructs a store and starts its janitor. New never returns nil.
func New(cfg Config) *Store {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		items:        make(map[string]*entry),
		cfg:          cfg.withDefaults(),
		ctx:          ctx,
		cancel:       cancel,
		retryBackoff: defaultRetryBackoff,
	}

	s.wg.Add(1)
	go s.janitorLoop()

	return s
}

// SetOption configures a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	ttl time.Duration
}

// WithTTL overrides the store's default TTL for one entry.
func WithTTL(d time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = d
	}
}

// Set writes or overwrites a key. A write at capacity evicts the
// oldest-inserted entry before inserting. Overwriting refreshes the entry's
// insertion order. Returns ErrStoreDestroyed after Destroy; no other failure
// mode exists.
func (s *Store) Set(key string, value any, opts ...SetOption) error {
	o := &setOptions{}
	for _, opt := range opts {
		opt(o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(key, value, o.ttl, time.Now())
}

func (s *Store) setLocked(key string, value any, ttl time.Duration, now time.Time) error {
	if s.destroyed {
		return ErrStoreDestroyed
	}

	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}

	// Only a brand-new key can grow the map past the cap.
	if _, ok := s.items[key]; !ok && len(s.items) >= s.cfg.MaxSize {
		s.evictOldestLocked()
	}

	s.seq++
	s.items[key] = &entry{
		value:        value,
		expiresAt:    now.Add(ttl),
		createdAt:    s.seq,
		lastAccessed: now,
	}
	return nil
}

// evictOldestLocked removes the entry with the smallest insertion sequence.
// Strictly FIFO by insertion, not LRU: access never rescues an entry.
// The linear scan is acceptable at the default cap; eviction only fires on
// writes at capacity.
func (s *Store) evictOldestLocked() {
	var (
		oldestKey string
		oldestSeq uint64
		found     bool
	)
	for k, e := range s.items {
		if !found || e.createdAt < oldestSeq {
			oldestKey, oldestSeq, found = k, e.createdAt, true
		}
	}
	if found {
		delete(s.items, oldestKey)
	}
}

// Get returns the live value for key. Expired entries are deleted on read and
// reported as misses. Get never fails; after Destroy it reports misses.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key, time.Now())
}

func (s *Store) getLocked(key string, now time.Time) (any, bool) {
	if s.destroyed {
		s.misses++
		return nil, false
	}

	e, ok := s.items[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if e.expired(now) {
		delete(s.items, key)
		s.misses++
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = now
	s.hits++
	return e.value, true
}

// Has reports whether key currently resolves to a live value. It shares the
// Get path, so it performs the same lazy expiry and counts toward hit/miss
// statistics.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Delete removes a key if present and reports whether it did.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return false
	}
	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	return true
}

// Clear drops every entry. The store remains usable.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.items = make(map[string]*entry)
}

// Len returns the current entry count, including entries that have expired
// but not yet been swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Keys returns all keys with the given prefix. Plain prefix match, no
// globbing. An empty prefix returns every key. Expired-but-unswept keys are
// excluded.
func (s *Store) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var out []string
	for k, e := range s.items {
		if strings.HasPrefix(k, prefix) && !e.expired(now) {
			out = append(out, k)
		}
	}
	return out
}

// DeletePattern removes every key with the given prefix and returns how many
// were removed. Used for bulk namespace invalidation (e.g. "user:").
func (s *Store) DeletePattern(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return 0
	}

	// Collect first, then delete: no map mutation mid-iteration.
	var doomed []string
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			doomed = append(doomed, k)
		}
	}
	for _, k := range doomed {
		delete(s.items, k)
	}
	return len(doomed)
}

// MGet looks up several keys in one locked pass. Results are positional:
// out[i] corresponds to keys[i].
func (s *Store) MGet(keys []string) []Lookup {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]Lookup, len(keys))
	for i, k := range keys {
		v, ok := s.getLocked(k, now)
		out[i] = Lookup{Value: v, OK: ok}
	}
	return out
}

// MSet writes several items in one locked pass. Returns ErrStoreDestroyed
// after Destroy, in which case no item is written.
func (s *Store) MSet(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrStoreDestroyed
	}

	now := time.Now()
	for _, it := range items {
		if err := s.setLocked(it.Key, it.Value, it.TTL, now); err != nil {
			return err
		}
	}
	return nil
}

// Destroy transitions the store to its terminal state: the janitor is
// stopped, the map is released, subsequent Get calls miss, and subsequent
// Set calls return ErrStoreDestroyed. Destroy is idempotent and safe to call
// concurrently with any in-flight operation; when it returns, no cleanup run
// will start afterwards.
func (s *Store) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.items = nil
	cancel := s.cancel
	s.mu.Unlock()

	// Cancel outside the lock so a janitor run blocked on s.mu can finish.
	cancel()
	s.wg.Wait()
}
