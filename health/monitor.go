package health

import (
	"sort"
	"sync"
	"time"
)

// Monitor tracks health of multiple sinks in a thread-safe manner
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
	}
}

// Update updates the health status for a name
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.statuses[name] = status
}

// UpdateHealthy is a convenience method to mark a name healthy
func (m *Monitor) UpdateHealthy(name, message string) {
	m.Update(name, NewHealthy(name, message))
}

// UpdateUnhealthy is a convenience method to mark a name unhealthy
func (m *Monitor) UpdateUnhealthy(name, message string) {
	m.Update(name, NewUnhealthy(name, message))
}

// UpdateDegraded is a convenience method to mark a name degraded
func (m *Monitor) UpdateDegraded(name, message string) {
	m.Update(name, NewDegraded(name, message))
}

// RecordSuccess marks name healthy after a successful delivery. The error
// count is kept. A name already healthy is only touched to refresh
// LastActivity.
func (m *Monitor) RecordSuccess(name string) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, exists := m.statuses[name]
	metrics := &Metrics{LastActivity: now}
	if exists && prev.Metrics != nil {
		*metrics = *prev.Metrics
		metrics.LastActivity = now
	}

	if exists && prev.IsHealthy() {
		prev.Metrics = metrics
		m.statuses[name] = prev
		return
	}

	status := NewHealthy(name, "Delivering")
	status.Metrics = metrics
	m.statuses[name] = status
}

// RecordFailure marks name degraded with a sanitized error message.
func (m *Monitor) RecordFailure(name string, err error) {
	now := time.Now()
	message := "Delivery failed"
	if err != nil {
		message = SanitizeErrorMessage(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metrics := &Metrics{}
	if prev, exists := m.statuses[name]; exists && prev.Metrics != nil {
		*metrics = *prev.Metrics
	}
	metrics.ErrorCount++
	metrics.LastError = now
	metrics.LastActivity = now

	status := NewDegraded(name, message)
	status.Metrics = metrics
	m.statuses[name] = status
}

// Get retrieves the health status for a name
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// GetAll returns a copy of all current health statuses
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Status, len(m.statuses))
	for name, status := range m.statuses {
		result[name] = status
	}
	return result
}

// Remove stops monitoring a name
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
}

// AggregateHealth returns an aggregated health status for the entire system
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}

	return Aggregate(systemName, subStatuses)
}

// ListComponents returns the monitored names, sorted
func (m *Monitor) ListComponents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of names being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses)
}

// Clear removes all names from monitoring
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statuses = make(map[string]Status)
}
