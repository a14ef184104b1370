package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type backoffFactory func() backoff.BackOff

// defaultRetryBackoff paces janitor retries at 2s, 4s, 8s, ... between
// attempts. Randomization is off: the janitor is a single background task,
// not a herd of clients.
func defaultRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // retry count is bounded by WithMaxRetries instead
	return b
}

// janitorLoop fires a cleanup run every CleanupInterval until Destroy.
//
// Why a ticker-based full scan: lazy expiry alone leaves write-once keys in
// memory forever. A periodic O(n) sweep is predictable and needs no per-entry
// timers.
func (s *Store) janitorLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup executes one janitor run with bounded retry. At most one run is
// in flight at a time; a trigger arriving while a run is active is dropped,
// not queued, so slow cleanups cannot build a backlog.
func (s *Store) runCleanup() {
	if !s.cleanupRunning.CompareAndSwap(false, true) {
		return
	}
	defer s.cleanupRunning.Store(false)

	op := func() error {
		return s.cleanupPass()
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(s.retryBackoff(), uint64(s.cfg.MaxRetries)),
		s.ctx,
	)

	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.mu.Lock()
		s.cleanupErrors++
		s.mu.Unlock()

		s.cfg.Logger.Warn("cache cleanup failed", "error", err, "attempts", s.cfg.MaxRetries)
		s.recordAlert(AlertCritical,
			fmt.Sprintf("cleanup failed after %d attempts: %v", s.cfg.MaxRetries, err), 0)
		return
	}

	s.mu.Lock()
	s.lastCleanupTime = time.Now()
	s.cleanupErrors = 0
	s.mu.Unlock()
}

// cleanupPass is one attempt: sweep expired entries, probe memory, respond to
// pressure. Any error fails the whole attempt and defers to the retry policy.
func (s *Store) cleanupPass() error {
	removed := s.sweepExpired()

	usageMB, err := s.cfg.MemoryProbe()
	if err != nil {
		return fmt.Errorf("memory probe: %w", err)
	}

	threshold := s.cfg.MemoryThresholdMB
	switch {
	case usageMB > 2*threshold:
		evicted := s.evictOldestHalf()
		s.cfg.Logger.Warn("critical memory pressure",
			"usage_mb", usageMB, "threshold_mb", threshold, "evicted", evicted)
		s.recordAlert(AlertCritical,
			fmt.Sprintf("memory usage %.1fMB exceeds 2x threshold %.1fMB, evicted %d entries",
				usageMB, threshold, evicted), usageMB)
	case usageMB > threshold:
		s.cfg.Logger.Warn("memory pressure",
			"usage_mb", usageMB, "threshold_mb", threshold)
		s.recordAlert(AlertWarning,
			fmt.Sprintf("memory usage %.1fMB exceeds threshold %.1fMB", usageMB, threshold), usageMB)
	}

	if removed > 0 {
		s.cfg.Logger.Debug("swept expired entries", "removed", removed)
	}
	return nil
}

// sweepExpired removes every expired entry. Two-phase: collect keys first,
// then delete, so the map is never mutated mid-iteration.
func (s *Store) sweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return 0
	}

	now := time.Now()
	var doomed []string
	for k, e := range s.items {
		if e.expired(now) {
			doomed = append(doomed, k)
		}
	}
	for _, k := range doomed {
		delete(s.items, k)
	}
	return len(doomed)
}

// evictOldestHalf synchronously deletes the oldest-inserted 50% of entries
// (rounded down). This is the critical-pressure response; it runs before the
// cleanup attempt returns.
func (s *Store) evictOldestHalf() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed || len(s.items) == 0 {
		return 0
	}

	type aged struct {
		key string
		seq uint64
	}
	all := make([]aged, 0, len(s.items))
	for k, e := range s.items {
		all = append(all, aged{key: k, seq: e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	n := len(all) / 2
	for _, a := range all[:n] {
		delete(s.items, a.key)
	}
	return n
}
