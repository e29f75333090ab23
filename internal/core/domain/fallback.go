package domain

import "time"

// FallbackType identifies a degraded-behavior mechanism.
type FallbackType string

const (
	FallbackCache              FallbackType = "cache"
	FallbackCachedResponse     FallbackType = "cached_response"
	FallbackStaticResponse     FallbackType = "static_response"
	FallbackAlternativeService FallbackType = "alternative_service"
	FallbackDegradedMode       FallbackType = "degraded_mode"
	FallbackQueueRequest       FallbackType = "queue_request"
)

// FallbackConfig holds one entry of a service's priority-ordered fallback
// chain. A zero LevelThreshold means the entry matches any failure level.
type FallbackConfig struct {
	Type                  FallbackType   `yaml:"type"`
	Priority              int            `yaml:"priority"`
	Enabled               bool           `yaml:"enabled"`
	Cooldown              time.Duration  `yaml:"cooldown"`
	LevelThreshold        FailureLevel   `yaml:"level_threshold"`
	MaxFailures           int            `yaml:"max_failures"`
	ResponseTimeThreshold time.Duration  `yaml:"response_time_threshold"`
	ErrorRateThreshold    float64        `yaml:"error_rate_threshold"`
	StaticData            map[string]any `yaml:"static_data"`
	Capabilities          []string       `yaml:"capabilities"`
	AlternativeEndpoints  []string       `yaml:"alternative_endpoints"`
	CacheTTL              time.Duration  `yaml:"cache_ttl"`
	QueueName             string         `yaml:"queue_name"`
}

// FallbackOutcome is the transient result of a dispatched fallback.
type FallbackOutcome struct {
	Type      FallbackType   `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// FailureContext carries the state the dispatcher needs to judge config
// eligibility and key cached responses.
type FailureContext struct {
	Service             string         `json:"service"`
	Level               FailureLevel   `json:"level"`
	FailureType         string         `json:"failure_type"`
	Message             string         `json:"message"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	ResponseTime        time.Duration  `json:"response_time"`
	ErrorRate           float64        `json:"error_rate"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}
