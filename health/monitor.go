package health

import (
	"sort"
	"sync"
	"time"
)

// CheckFunc computes the current status of one component on demand
type CheckFunc func() Status

// Monitor tracks health of multiple components. Components either push
// their status with Update or register a CheckFunc that is evaluated on
// every read.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	checks   map[string]CheckFunc
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
		checks:   make(map[string]CheckFunc),
	}
}

// Update updates the health status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	m.statuses[name] = status
}

// UpdateHealthy is a convenience method to update a component as healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy is a convenience method to update a component as unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded is a convenience method to update a component as degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// Register installs a check for name. It replaces any pushed status.
func (m *Monitor) Register(name string, check CheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	m.checks[name] = check
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	check, isCheck := m.checks[name]
	status, exists := m.statuses[name]
	m.mu.RUnlock()

	if isCheck {
		return m.run(name, check), true
	}
	return status, exists
}

func (m *Monitor) run(name string, check CheckFunc) Status {
	s := check()
	s.Component = name
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	return s
}

// GetAll returns the current status of every component
func (m *Monitor) GetAll() map[string]Status {
	names := m.ListComponents()
	result := make(map[string]Status, len(names))
	for _, name := range names {
		if s, ok := m.Get(name); ok {
			result[name] = s
		}
	}
	return result
}

// Remove removes a component from monitoring
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
	delete(m.checks, name)
}

// AggregateHealth returns an aggregated health status for the entire
// system. Sub-statuses are ordered by component name.
func (m *Monitor) AggregateHealth(systemName string) Status {
	names := m.ListComponents()
	subStatuses := make([]Status, 0, len(names))
	for _, name := range names {
		if s, ok := m.Get(name); ok {
			subStatuses = append(subStatuses, s)
		}
	}
	return Aggregate(systemName, subStatuses)
}

// ListComponents returns the sorted names of all monitored components
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses)+len(m.checks))
	for name := range m.statuses {
		names = append(names, name)
	}
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of components being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.statuses) + len(m.checks)
}
