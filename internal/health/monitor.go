package health

import (
	"sync"

	"github.com/vietddude/retention/internal/agent"
)

// CriticalAfter is the number of impaired cycles in a row after which an
// agent is reported critical.
const CriticalAfter = 3

// StatusSource is implemented by agent.Runner.
type StatusSource interface {
	Status() agent.Status
}

// Monitor aggregates health status from the registered runners.
type Monitor struct {
	mu      sync.RWMutex
	sources []StatusSource
}

// NewMonitor creates a new health monitor.
func NewMonitor(sources ...StatusSource) *Monitor {
	return &Monitor{sources: sources}
}

// Add registers another runner.
func (m *Monitor) Add(src StatusSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, src)
}

// CheckHealth evaluates every registered runner.
func (m *Monitor) CheckHealth() map[string]AgentHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := make(map[string]AgentHealth, len(m.sources))
	for _, src := range m.sources {
		st := src.Status()
		h := AgentHealth{
			Agent:               string(st.Agent),
			Status:              StatusHealthy,
			Running:             st.Running,
			Connected:           st.Connected,
			Cycles:              st.Cycles,
			ConsecutiveImpaired: st.ConsecutiveImpaired,
			NextDelay:           st.NextDelay,
		}
		if !st.LastCycleAt.IsZero() {
			at := st.LastCycleAt
			h.LastCycleAt = &at
		}

		switch {
		case !st.Running, !st.Connected, st.ConsecutiveImpaired >= CriticalAfter:
			h.Status = StatusCritical
		case st.LastImpaired:
			h.Status = StatusDegraded
		}

		report[h.Agent] = h
	}
	return report
}
