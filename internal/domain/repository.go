// Package domain defines the core interfaces and types for the impacts service.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Aggregates are never stored; only rulebase versions and fetched
// activations are.
type Repository interface {
	// Rulebase versions
	SaveRulebaseVersion(ctx context.Context, v *RulebaseVersion) error
	LatestRulebaseVersion(ctx context.Context) (*RulebaseVersion, error)

	// Activation snapshots
	SaveActivation(ctx context.Context, snap *ActivationSnapshot) error
	GetActivation(ctx context.Context, sel Selection) (*ActivationSnapshot, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "none"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgresHost"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgresPort"`
	PostgresUser     string `json:"postgresUser" yaml:"postgresUser"`
	PostgresPassword string `json:"-" yaml:"postgresPassword"`
	PostgresDB       string `json:"postgresDB" yaml:"postgresDB"`
	PostgresSSLMode  string `json:"postgresSSLMode" yaml:"postgresSSLMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}
