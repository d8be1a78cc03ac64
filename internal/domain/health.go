package domain

import "time"

// HealthState is the probe result for a single backing store.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// HealthSnapshot is the composite status written to Redis on every probe
// cycle. It is overwritten in place; history lives only in logs.
type HealthSnapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Stores    map[string]HealthState `json:"stores"`
	Issues    []string               `json:"issues,omitempty"`
}

// Healthy reports whether every probed store is healthy.
func (s *HealthSnapshot) Healthy() bool {
	for _, st := range s.Stores {
		if st != HealthHealthy {
			return false
		}
	}
	return true
}
