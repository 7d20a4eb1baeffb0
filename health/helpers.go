package health

import "time"

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// NewDegraded creates a degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// severity orders states for aggregation; unknown states count as unhealthy
func severity(state string) int {
	switch state {
	case StateHealthy:
		return 0
	case StateDegraded:
		return 1
	default:
		return 2
	}
}

// Aggregate reports the worst state among subStatuses. No sub-statuses
// is healthy.
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No sub-components to aggregate")
	}

	worst := StateHealthy
	for _, sub := range subStatuses {
		if severity(sub.Status) > severity(worst) {
			worst = sub.Status
		}
	}

	var status Status
	switch severity(worst) {
	case 0:
		status = NewHealthy(component, "All sub-components are healthy")
	case 1:
		status = NewDegraded(component, "One or more sub-components are degraded")
	default:
		status = NewUnhealthy(component, "One or more sub-components are unhealthy")
	}
	status.SubStatuses = append([]Status(nil), subStatuses...)
	return status
}
