package domain

import "time"

// ServiceRegistration is the root record for a protected service. It owns
// the configuration of every derived component by composition.
type ServiceRegistration struct {
	Name         string            `yaml:"name"         json:"name"`
	URL          string            `yaml:"url"          json:"url,omitempty"`
	Dependencies []string          `yaml:"dependencies" json:"dependencies,omitempty"`
	Health       HealthCheckConfig `yaml:"health"       json:"health"`
	Recovery     RecoveryConfig    `yaml:"recovery"     json:"recovery"`
	Fallbacks    []FallbackConfig  `yaml:"fallbacks"    json:"fallbacks,omitempty"`
	RegisteredAt time.Time         `yaml:"-"            json:"registered_at"`
}
