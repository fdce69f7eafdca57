// Package health provides agent health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// AgentHealth contains the health of one agent runner.
type AgentHealth struct {
	Agent               string        `json:"agent"`
	Status              SystemStatus  `json:"status"`
	Running             bool          `json:"running"`
	Connected           bool          `json:"connected"`
	Cycles              int64         `json:"cycles"`
	LastCycleAt         *time.Time    `json:"last_cycle_at,omitempty"`
	ConsecutiveImpaired int           `json:"consecutive_impaired"`
	NextDelay           time.Duration `json:"next_delay_ns"`
}

// Worst returns the most severe status in the report.
func Worst(report map[string]AgentHealth) SystemStatus {
	status := StatusHealthy
	for _, a := range report {
		if a.Status == StatusCritical {
			return StatusCritical
		}
		if a.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
