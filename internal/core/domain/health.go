package domain

import "time"

// Status represents the outcome of a single health check or the derived
// state of a service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
)

// IsFailure reports whether the status counts toward the consecutive
// failure run. Degraded results are non-successes and break success runs.
func (s Status) IsFailure() bool {
	switch s {
	case StatusUnhealthy, StatusTimeout, StatusError, StatusDegraded:
		return true
	default:
		return false
	}
}

// CheckType identifies the probe used for a health check.
type CheckType string

const (
	CheckHTTP   CheckType = "http"
	CheckTCP    CheckType = "tcp"
	CheckPing   CheckType = "ping"
	CheckCustom CheckType = "custom"
	CheckSLA    CheckType = "sla"
)

// HealthCheckResult is the immutable record of one probe execution.
type HealthCheckResult struct {
	Service      string        `json:"service"`
	CheckType    CheckType     `json:"check_type"`
	Status       Status        `json:"status"`
	ResponseTime time.Duration `json:"response_time"`
	Timestamp    time.Time     `json:"timestamp"`
	StatusCode   int           `json:"status_code,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ServiceHealthState holds the rolling counters for a monitored service.
// Consecutive failures and successes are mutually exclusive runs: one being
// non-zero forces the other to zero.
type ServiceHealthState struct {
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	TotalChecks          int64     `json:"total_checks"`
	TotalFailures        int64     `json:"total_failures"`
	TotalSuccesses       int64     `json:"total_successes"`
	LastCheck            time.Time `json:"last_check"`
	LastSuccess          time.Time `json:"last_success"`
	LastFailure          time.Time `json:"last_failure"`
}

// HealthCheckConfig holds probe settings for a registered service.
type HealthCheckConfig struct {
	Type                  CheckType     `yaml:"type"`
	URL                   string        `yaml:"url"`
	Host                  string        `yaml:"host"`
	Port                  int           `yaml:"port"`
	Interval              time.Duration `yaml:"interval"`
	Timeout               time.Duration `yaml:"timeout"`
	ExpectedStatusCodes   []int         `yaml:"expected_status_codes"`
	BodyPattern           string        `yaml:"body_pattern"`
	FailureThreshold      int           `yaml:"failure_threshold"`
	SuccessThreshold      int           `yaml:"success_threshold"`
	ResponseTimeThreshold time.Duration `yaml:"response_time_threshold"`
	AvailabilityThreshold float64       `yaml:"availability_threshold"`
	Enabled               bool          `yaml:"enabled"`
}
