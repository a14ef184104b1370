package cache

import (
	"encoding/json"
	"math"
	"time"
)

// Stats is a point-in-time snapshot of store health.
type Stats struct {
	Size    int `json:"size"`
	MaxSize int `json:"max_size"`
	// ExpiredCount is how many resident entries are expired but not yet
	// swept or lazily deleted.
	ExpiredCount int `json:"expired_count"`
	// TotalSizeBytes is a best-effort sum of serialized value lengths.
	// Unmeasurable values are skipped; the sum saturates instead of
	// overflowing.
	TotalSizeBytes  int64     `json:"total_size_bytes"`
	MemoryUsageMB   float64   `json:"memory_usage_mb"`
	Hits            uint64    `json:"hits"`
	Misses          uint64    `json:"misses"`
	HitRate         float64   `json:"hit_rate"`
	CleanupErrors   uint64    `json:"cleanup_errors"`
	LastCleanupTime time.Time `json:"last_cleanup_time"`
}

// Stats scans all entries and returns a snapshot. The scan is O(n) under the
// store lock; it is a diagnostic surface, not a hot path.
func (s *Store) Stats() Stats {
	usageMB, err := s.cfg.MemoryProbe()
	if err != nil {
		// Read paths degrade rather than fail.
		usageMB = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Size:            len(s.items),
		MaxSize:         s.cfg.MaxSize,
		MemoryUsageMB:   usageMB,
		Hits:            s.hits,
		Misses:          s.misses,
		CleanupErrors:   s.cleanupErrors,
		LastCleanupTime: s.lastCleanupTime,
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}

	now := time.Now()
	for _, e := range s.items {
		if e.expired(now) {
			st.ExpiredCount++
		}
		n, ok := valueSize(e.value)
		if !ok {
			// Unmeasurable (e.g. cyclic or non-serializable) values are
			// skipped, never treated as a failure.
			continue
		}
		if st.TotalSizeBytes > math.MaxInt64-n {
			st.TotalSizeBytes = math.MaxInt64
		} else {
			st.TotalSizeBytes += n
		}
	}
	return st
}

func valueSize(v any) (int64, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, false
	}
	return int64(len(b)), true
}
