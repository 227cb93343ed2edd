package health

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a report is reused before probing again.
const DefaultCacheTTL = 10 * time.Second

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Check is a named probe. A failing critical check makes the system critical;
// any other failing check only degrades it.
type Check struct {
	Name     string
	Critical bool
	Probe    Probe
	Timeout  time.Duration
}

// Monitor aggregates health status from the registered checks.
type Monitor struct {
	checks     []Check
	ttl        time.Duration
	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(checks ...Check) *Monitor {
	return &Monitor{
		checks: checks,
		ttl:    DefaultCacheTTL,
	}
}

// SetCacheTTL overrides how long a report is reused. Zero disables caching.
func (m *Monitor) SetCacheTTL(ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl = ttl
}

// CheckHealth runs every check, or returns the cached report.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Avoid hammering dependencies when probes are polled often.
	if m.ttl > 0 && !m.lastCheck.IsZero() && time.Since(m.lastCheck) < m.ttl {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth, len(m.checks)),
	}

	for _, c := range m.checks {
		component := ComponentHealth{Name: c.Name, Status: StatusHealthy}
		if err := runProbe(ctx, c); err != nil {
			component.Error = err.Error()
			component.Status = StatusDegraded
			if c.Critical {
				component.Status = StatusCritical
			}
		}
		report.Components[c.Name] = component
		report.SystemStatus = worst(report.SystemStatus, component.Status)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func runProbe(ctx context.Context, c Check) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Probe(ctx)
}

func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
