package cache

import "runtime"

// MemoryProbe reports current memory usage in megabytes. The janitor calls it
// once per cleanup run; a returned error fails the run and triggers the
// janitor's retry path. Production code uses RuntimeMemoryProbe; tests inject
// a stub returning whatever pressure they want to simulate.
type MemoryProbe func() (float64, error)

// RuntimeMemoryProbe reads the Go heap via runtime.ReadMemStats and reports
// allocated bytes in MB.
func RuntimeMemoryProbe() (float64, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) / (1024 * 1024), nil
}
