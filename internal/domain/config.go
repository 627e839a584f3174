package domain

import "time"

// Config holds the complete service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Profile selects the default backing services
	Profile Profile `json:"profile" yaml:"profile"`

	// Rulebase source
	Rulebase RulebaseConfig `json:"rulebase" yaml:"rulebase"`

	// Upstream rules service
	Activation ActivationConfig `json:"activation" yaml:"activation"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// Profile determines which backing services are used by default.
type Profile string

const (
	// ProfileLocal runs with SQLite and an in-process LRU cache.
	ProfileLocal Profile = "local"

	// ProfileShared runs with PostgreSQL, a two-phase LRU + Redis cache and
	// NATS, for several replicas behind one load balancer.
	ProfileShared Profile = "shared"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds
}

// RulebaseConfig locates the rulebase file.
type RulebaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// ActivationConfig holds settings for the upstream rules service.
type ActivationConfig struct {
	BaseURL    string        `json:"baseUrl" yaml:"baseUrl"`
	Ensemble   string        `json:"ensemble" yaml:"ensemble"`
	RulePrefix string        `json:"rulePrefix" yaml:"rulePrefix"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	CacheTTL   time.Duration `json:"cacheTTL" yaml:"cacheTTL"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"serviceName" yaml:"serviceName"`
}

// DefaultConfig returns a default configuration for the local profile.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Profile: ProfileLocal,
		Rulebase: RulebaseConfig{
			Path: "./rules.csv",
		},
		Activation: ActivationConfig{
			BaseURL:    "http://localhost:5000/api/",
			Ensemble:   "p2a_rules",
			RulePrefix: RuleIDPrefix,
			Timeout:    10 * time.Second,
			CacheTTL:   10 * time.Minute,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./impacts.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "impacts",
		},
	}
}

// SharedConfig returns a configuration for the shared profile.
func SharedConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileShared
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "impacts",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 2,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
