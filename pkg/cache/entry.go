package cache

import "time"

// entry is the internal per-key record.
//
// createdAt is not wall-clock time but the store's insertion sequence number.
// Two entries written in the same millisecond still have a deterministic
// oldest-first order, which the eviction path depends on.
type entry struct {
	value        any
	expiresAt    time.Time
	createdAt    uint64
	accessCount  uint64
	lastAccessed time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Item is a key-value pair for MSet.
type Item struct {
	Key   string
	Value any
	// TTL overrides the store default when > 0.
	TTL time.Duration
}

// Lookup is a single MGet result. OK is false on a miss, in which case
// Value is nil.
type Lookup struct {
	Value any
	OK    bool
}
