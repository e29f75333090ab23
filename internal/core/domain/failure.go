package domain

import "time"

// FailureLevel ranks how severe a reported failure is.
type FailureLevel string

const (
	FailureLow      FailureLevel = "low"
	FailureMedium   FailureLevel = "medium"
	FailureHigh     FailureLevel = "high"
	FailureCritical FailureLevel = "critical"
)

// Ordinal maps the level to a comparable rank (low < medium < high < critical).
func (l FailureLevel) Ordinal() int {
	switch l {
	case FailureLow:
		return 0
	case FailureMedium:
		return 1
	case FailureHigh:
		return 2
	case FailureCritical:
		return 3
	default:
		return -1
	}
}

// FailureEvent records one reported failure. Resolved flips to true only
// when the linked recovery attempt completes successfully.
type FailureEvent struct {
	ID         string       `json:"id"`
	Service    string       `json:"service"`
	Level      FailureLevel `json:"level"`
	Type       string       `json:"type"`
	Message    string       `json:"message"`
	Timestamp  time.Time    `json:"timestamp"`
	Resolved   bool         `json:"resolved"`
	RecoveryID string       `json:"recovery_id,omitempty"`
}
