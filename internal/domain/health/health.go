// Package health holds the platform health model: per-service probe
// results and the rules that fold them into one system verdict.
package health

import "time"

// Status represents a single service's probe outcome
type Status string

// Per-service statuses. Unknown means the probe could not complete; for
// aggregation it counts as unhealthy.
const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// SystemStatus represents the aggregate verdict across all services
type SystemStatus string

// Aggregate verdicts
const (
	SystemHealthy  SystemStatus = "healthy"
	SystemPartial  SystemStatus = "partial"
	SystemCritical SystemStatus = "critical"
)

// ServiceHealth is one probed service's result.
type ServiceHealth struct {
	Name      string        `json:"name"`
	Critical  bool          `json:"critical"`
	Status    Status        `json:"status"`
	Latency   time.Duration `json:"latency_ns"`
	Detail    string        `json:"detail,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// SystemHealth is the aggregate across one probe round. Services keep
// their configured order regardless of probe completion order.
type SystemHealth struct {
	Status    SystemStatus    `json:"status"`
	Services  []ServiceHealth `json:"services"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Reduce folds per-service results into the system verdict: any critical
// service not healthy makes the system critical, any other service not
// healthy makes it partial, otherwise healthy.
func Reduce(services []ServiceHealth) SystemStatus {
	status := SystemHealthy
	for _, s := range services {
		if s.Status == StatusHealthy {
			continue
		}
		if s.Critical {
			return SystemCritical
		}
		status = SystemPartial
	}
	return status
}

// ComponentStatus is one component inside a company's deep health view.
type ComponentStatus struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// CompanyHealth is the per-company health endpoint's payload.
type CompanyHealth struct {
	CompanyID  string            `json:"company_id" validate:"required"`
	Status     Status            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}
