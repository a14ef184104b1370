// Package ratelimit implements a sliding-window request limiter with optional
// exponential backoff blocking.
//
// The limiter keeps no state of its own: one record per key lives in a
// cache.Store with TTL equal to the window, so idle keys are reclaimed by
// ordinary cache expiry and naturally forget their history. Being rate
// limited is a structured result, not an error.
package ratelimit

import (
	"math"
	"math/rand"
	"time"

	"github.com/dotcommander/memocache/pkg/cache"
)

// KeyPrefix namespaces limiter records inside the shared cache store.
const KeyPrefix = "rate-limit:"

// BackoffConfig controls blocking after consecutive failures.
type BackoffConfig struct {
	Enabled   bool          `json:"enabled"`
	BaseDelay time.Duration `json:"base_delay"`
	MaxDelay  time.Duration `json:"max_delay"`
	Factor    float64       `json:"factor"`
}

// Config controls the window and request budget. The zero value gets the
// documented defaults.
type Config struct {
	// Window is the counting window and the stored record's TTL.
	// Default 1 minute.
	Window time.Duration `json:"window"`
	// MaxRequests is the per-key budget within one window. Default 100.
	MaxRequests int `json:"max_requests"`
	// SkipSuccessful leaves successful requests out of the count, limiting
	// only failures.
	SkipSuccessful bool          `json:"skip_successful"`
	Backoff        BackoffConfig `json:"backoff"`
}

const (
	defaultWindow      = time.Minute
	defaultMaxRequests = 100
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultFactor      = 2
)

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = defaultWindow
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = defaultMaxRequests
	}
	if c.Backoff.Enabled {
		if c.Backoff.BaseDelay <= 0 {
			c.Backoff.BaseDelay = defaultBaseDelay
		}
		if c.Backoff.MaxDelay <= 0 {
			c.Backoff.MaxDelay = defaultMaxDelay
		}
		if c.Backoff.Factor <= 1 {
			c.Backoff.Factor = defaultFactor
		}
	}
	return c
}

// record is the per-key state persisted in the cache store.
type record struct {
	Count               int        `json:"count"`
	WindowResetAt       time.Time  `json:"window_reset_at"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	BlockedUntil        *time.Time `json:"blocked_until,omitempty"`
}

// Decision is the outcome of a Check.
type Decision struct {
	Limited   bool      `json:"limited"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	// RetryAfter is whole seconds until a blocked key may retry, rounded up.
	// Zero when the key is not blocked.
	RetryAfter   int        `json:"retry_after,omitempty"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// Limiter applies a request budget per key on top of a cache.Store.
type Limiter struct {
	store *cache.Store
	cfg   Config
	locks keyLocks
}

// New builds a limiter backed by store. The limiter does not own the store;
// destroying the store makes every key read as fresh, which degrades open
// (unknown callers are admitted, never spuriously blocked).
func New(store *cache.Store, cfg Config) *Limiter {
	return &Limiter{
		store: store,
		cfg:   cfg.withDefaults(),
	}
}

// Config returns the effective configuration after defaulting.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Key derives the storage key for a caller identity (IP, user ID, token).
func (l *Limiter) Key(identifier string) string {
	return KeyPrefix + identifier
}

// load fetches the record for key, or synthesizes a fresh unpersisted one.
func (l *Limiter) load(key string, now time.Time) record {
	if v, ok := l.store.Get(key); ok {
		if rec, ok := v.(record); ok {
			return rec
		}
	}
	return record{WindowResetAt: now.Add(l.cfg.Window)}
}

// Check reports whether key is currently limited, without mutating any state.
// A live backoff block takes priority over the window count. An expired
// window is treated as reset for this read; the stored record is only
// rewritten by Record.
func (l *Limiter) Check(key string) Decision {
	now := time.Now()
	rec := l.load(key, now)

	if rec.BlockedUntil != nil && now.Before(*rec.BlockedUntil) {
		return Decision{
			Limited:      true,
			Remaining:    0,
			ResetAt:      rec.WindowResetAt,
			RetryAfter:   int(math.Ceil(rec.BlockedUntil.Sub(now).Seconds())),
			BlockedUntil: rec.BlockedUntil,
		}
	}

	if now.After(rec.WindowResetAt) {
		rec = record{WindowResetAt: now.Add(l.cfg.Window)}
	}

	remaining := l.cfg.MaxRequests - rec.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Limited:   rec.Count >= l.cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   rec.WindowResetAt,
	}
}

// Record counts one finished request against key and persists the updated
// record with TTL equal to the window. A success clears failure history and
// any block. A failure increments the failure streak; with backoff enabled,
// the second consecutive failure onward blocks the key for
// min(base·factor^failures, max) plus 0–10% jitter. Jitter only ever adds:
// it spreads retries without lowering the computed floor.
//
// The per-key lock makes the load-modify-store cycle atomic under concurrent
// callers for the same key. The only possible error is the store's
// ErrStoreDestroyed.
func (l *Limiter) Record(key string, success bool) error {
	mu := l.locks.forKey(key)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now()
	rec := l.load(key, now)

	if now.After(rec.WindowResetAt) {
		rec = record{WindowResetAt: now.Add(l.cfg.Window)}
	}

	if success {
		rec.ConsecutiveFailures = 0
		rec.BlockedUntil = nil
		if !l.cfg.SkipSuccessful {
			rec.Count++
		}
	} else {
		rec.ConsecutiveFailures++
		rec.Count++
		if l.cfg.Backoff.Enabled && rec.ConsecutiveFailures > 1 {
			delay := l.backoffDelay(rec.ConsecutiveFailures)
			jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
			until := now.Add(delay + jitter)
			rec.BlockedUntil = &until
		}
	}

	return l.store.Set(key, rec, cache.WithTTL(l.cfg.Window))
}

// backoffDelay computes min(base·factor^failures, max). The power term grows
// without bound; the clamp happens in float space before conversion so large
// streaks cannot overflow a Duration.
func (l *Limiter) backoffDelay(failures int) time.Duration {
	d := float64(l.cfg.Backoff.BaseDelay) * math.Pow(l.cfg.Backoff.Factor, float64(failures))
	if d > float64(l.cfg.Backoff.MaxDelay) {
		d = float64(l.cfg.Backoff.MaxDelay)
	}
	return time.Duration(d)
}
