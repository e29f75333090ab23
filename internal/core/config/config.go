package config

import (
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
	redisclient "github.com/vietddude/sentinel/internal/infra/redis"
	"github.com/vietddude/sentinel/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig                 `yaml:"server"`
	Redis     redisclient.Config           `yaml:"redis"`
	Database  postgres.Config              `yaml:"database"`
	Logging   LoggingConfig                `yaml:"logging"`
	Retention RetentionConfig              `yaml:"retention"`
	Monitor   MonitorConfig                `yaml:"monitor"`
	Events    EventsConfig                 `yaml:"events"`
	Services  []domain.ServiceRegistration `yaml:"services"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// RetentionConfig bounds how long failure and recovery history is kept.
type RetentionConfig struct {
	Events   time.Duration `yaml:"events"`
	Attempts time.Duration `yaml:"attempts"`
}

// MonitorConfig holds health scheduling settings.
type MonitorConfig struct {
	Tick time.Duration `yaml:"tick"`
}

// EventsConfig holds observability sink settings.
type EventsConfig struct {
	Stream string `yaml:"stream"` // redis stream name; empty = log sink
}
