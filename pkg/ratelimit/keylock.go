package ratelimit

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyLocks serializes per-key read-modify-write cycles. Striped rather than
// per-key: a fixed set of mutexes indexed by key hash bounds memory while
// keeping contention between distinct keys unlikely.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyLocks) forKey(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.stripes[h.Sum32()%lockStripes]
}
