package cache

import "context"

// Loader computes a value for a key on a cache miss.
type Loader func(ctx context.Context) (any, error)

// GetOrCompute returns the cached value for key, or runs loader on a miss and
// caches its result. Concurrent callers missing on the same key share a
// single loader invocation via singleflight; the losers receive the winner's
// result. Loader errors are returned to every waiting caller and nothing is
// cached.
//
// On a destroyed store the loader still runs (the business layer recomputes;
// a dead cache degrades to always-miss) but the result is not cached.
func (s *Store) GetOrCompute(ctx context.Context, key string, loader Loader, opts ...SetOption) (any, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	v, err, _ := s.sf.Do(key, func() (any, error) {
		// Re-check: another caller may have populated the key between our
		// miss and winning the flight.
		if v, ok := s.Get(key); ok {
			return v, nil
		}
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		// A destroyed store rejects the write; the computed value is still
		// good, so the error is deliberately dropped.
		_ = s.Set(key, v, opts...)
		return v, nil
	})
	return v, err
}
