// Package config builds the service configuration from defaults, an
// optional YAML file and IMPACTS_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pacificclimate/impacts/internal/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IMPACTS_"

// Load returns the configuration. An empty path skips the file. The
// profile may be chosen by the file or by IMPACTS_PROFILE; it selects the
// defaults the file and environment are layered onto.
func Load(path string) (*domain.Config, error) {
	cfg := defaultsFor(os.Getenv(EnvPrefix + "PROFILE"))

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := applyYAML(cfg, data); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultsFor(profile string) *domain.Config {
	if domain.Profile(profile) == domain.ProfileShared {
		return domain.SharedConfig()
	}
	return domain.DefaultConfig()
}

func applyYAML(cfg *domain.Config, data []byte) error {
	// A profile named in the file resets the base before the rest applies.
	var head struct {
		Profile domain.Profile `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if head.Profile != "" && head.Profile != cfg.Profile {
		*cfg = *defaultsFor(string(head.Profile))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *domain.Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s%s: %q", EnvPrefix, name, v))
			return
		}
		*dst = n
	}
	dur := func(name string, dst *time.Duration) {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("invalid %s%s: %q", EnvPrefix, name, v))
			return
		}
		*dst = d
	}
	flag := func(name string, dst *bool) {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s%s: %q", EnvPrefix, name, v))
			return
		}
		*dst = b
	}

	str("HOST", &cfg.Server.Host)
	num("PORT", &cfg.Server.Port)
	num("READ_TIMEOUT", &cfg.Server.ReadTimeout)
	num("WRITE_TIMEOUT", &cfg.Server.WriteTimeout)

	str("RULEBASE_PATH", &cfg.Rulebase.Path)

	str("RULES_URL", &cfg.Activation.BaseURL)
	str("ENSEMBLE", &cfg.Activation.Ensemble)
	str("RULE_PREFIX", &cfg.Activation.RulePrefix)
	dur("RULES_TIMEOUT", &cfg.Activation.Timeout)
	dur("ACTIVATION_CACHE_TTL", &cfg.Activation.CacheTTL)

	str("DB_DRIVER", &cfg.Repository.Driver)
	str("SQLITE_PATH", &cfg.Repository.SQLitePath)
	str("POSTGRES_HOST", &cfg.Repository.PostgresHost)
	num("POSTGRES_PORT", &cfg.Repository.PostgresPort)
	str("POSTGRES_USER", &cfg.Repository.PostgresUser)
	str("POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	str("POSTGRES_DB", &cfg.Repository.PostgresDB)
	str("POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	str("CACHE_TYPE", &cfg.Cache.Type)
	num("CACHE_SIZE", &cfg.Cache.LocalMaxSize)
	dur("CACHE_LOCAL_TTL", &cfg.Cache.LocalTTL)
	str("REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	num("REDIS_DB", &cfg.Cache.RedisDB)
	flag("CACHE_TWO_PHASE", &cfg.Cache.EnableTwoPhase)

	str("BUS_TYPE", &cfg.EventBus.Type)
	str("NATS_URL", &cfg.EventBus.NATSUrl)
	str("NATS_TOKEN", &cfg.EventBus.NATSToken)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	flag("TRACING_ENABLED", &cfg.Tracing.Enabled)
	str("SERVICE_NAME", &cfg.Tracing.ServiceName)

	return errors.Join(errs...)
}

// Validate rejects configurations the service cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port out of range: %d", cfg.Server.Port))
	}
	if strings.TrimSpace(cfg.Rulebase.Path) == "" {
		errs = append(errs, errors.New("rulebase path is required"))
	}
	if strings.TrimSpace(cfg.Activation.BaseURL) == "" {
		errs = append(errs, errors.New("rules service URL is required"))
	}
	switch cfg.Repository.Driver {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported repository driver: %s", cfg.Repository.Driver))
	}
	switch cfg.Cache.Type {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported cache type: %s", cfg.Cache.Type))
	}
	switch cfg.EventBus.Type {
	case "", "channel", "nats":
	default:
		errs = append(errs, fmt.Errorf("unsupported event bus type: %s", cfg.EventBus.Type))
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format: %s", cfg.Logging.Format))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
}
