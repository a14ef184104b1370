package cache

import "time"

// AlertKind classifies an alert's severity.
type AlertKind string

const (
	AlertWarning  AlertKind = "warning"
	AlertCritical AlertKind = "critical"
)

// Alert is a single operational event recorded by the janitor, typically
// memory pressure or an exhausted cleanup retry.
type Alert struct {
	Kind          AlertKind `json:"kind"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	MemoryUsageMB float64   `json:"memory_usage_mb"`
}

// recordAlert appends to the bounded alert log. When the log is full the
// oldest alert rotates out; new alerts are never rejected.
func (s *Store) recordAlert(kind AlertKind, message string, usageMB float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, Alert{
		Kind:          kind,
		Message:       message,
		Timestamp:     time.Now(),
		MemoryUsageMB: usageMB,
	})
	if len(s.alerts) > s.cfg.MaxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.cfg.MaxAlerts:]
	}
}

// Alerts returns a snapshot copy of the alert log, oldest first.
func (s *Store) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// ClearAlerts empties the alert log.
func (s *Store) ClearAlerts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = nil
}
