package domain

import "time"

// RecoveryStrategy selects how a recovery attempt ramps traffic back.
type RecoveryStrategy string

const (
	StrategyImmediate    RecoveryStrategy = "immediate"
	StrategyGradual      RecoveryStrategy = "gradual"
	StrategyCanary       RecoveryStrategy = "canary"
	StrategyLoadBalanced RecoveryStrategy = "load_balanced"
	StrategyAdaptive     RecoveryStrategy = "adaptive"
	StrategyRolling      RecoveryStrategy = "rolling"
)

// RecoveryStatus is the state of a recovery attempt. The four terminal
// states (successful, failed, timeout, partial) admit no further transitions.
type RecoveryStatus string

const (
	RecoveryNotStarted RecoveryStatus = "not_started"
	RecoveryInProgress RecoveryStatus = "in_progress"
	RecoveryPartial    RecoveryStatus = "partial"
	RecoverySuccessful RecoveryStatus = "successful"
	RecoveryFailed     RecoveryStatus = "failed"
	RecoveryTimeout    RecoveryStatus = "timeout"
)

// Terminal reports whether the status admits no further transitions.
func (s RecoveryStatus) Terminal() bool {
	switch s {
	case RecoverySuccessful, RecoveryFailed, RecoveryTimeout, RecoveryPartial:
		return true
	default:
		return false
	}
}

// RecoveryAttempt tracks one run of a recovery strategy for a service.
type RecoveryAttempt struct {
	ID                 string           `json:"id"`
	Service            string           `json:"service"`
	Strategy           RecoveryStrategy `json:"strategy"`
	Status             RecoveryStatus   `json:"status"`
	StartedAt          time.Time        `json:"started_at"`
	EndedAt            time.Time        `json:"ended_at,omitempty"`
	AttemptsMade       int              `json:"attempts_made"`
	RecoveryPercentage float64          `json:"recovery_percentage"`
	ErrorMessages      []string         `json:"error_messages,omitempty"`
	Context            map[string]any   `json:"context,omitempty"`
}

// Duration returns the elapsed time of the attempt, using now for attempts
// that have not ended.
func (a *RecoveryAttempt) Duration() time.Duration {
	if a.EndedAt.IsZero() {
		return time.Since(a.StartedAt)
	}
	return a.EndedAt.Sub(a.StartedAt)
}

// RecoveryConfig holds strategy tuning for a registered service.
// SuccessThreshold and CanaryTrafficPercent are fractions in [0,1].
type RecoveryConfig struct {
	MaxAttempts          int           `yaml:"max_attempts"`
	Timeout              time.Duration `yaml:"timeout"`
	GradualInterval      time.Duration `yaml:"gradual_interval"`
	CanaryTrafficPercent float64       `yaml:"canary_traffic_percent"`
	SuccessThreshold     float64       `yaml:"success_threshold"`
	BackoffFactor        float64       `yaml:"backoff_factor"`
	Instances            []string      `yaml:"instances"`
}
