package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacificclimate/impacts/internal/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "impacts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.ProfileLocal, cfg.Profile)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./rules.csv", cfg.Rulebase.Path)
	assert.Equal(t, "p2a_rules", cfg.Activation.Ensemble)
	assert.Equal(t, "rule_", cfg.Activation.RulePrefix)
	assert.Equal(t, 10*time.Second, cfg.Activation.Timeout)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, "channel", cfg.EventBus.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_SharedProfileFromEnv(t *testing.T) {
	t.Setenv("IMPACTS_PROFILE", "shared")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.ProfileShared, cfg.Profile)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.True(t, cfg.Cache.EnableTwoPhase)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.Equal(t, "nats://localhost:4222", cfg.EventBus.NATSUrl)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
rulebase:
  path: /data/rules.csv
activation:
  baseUrl: https://services.example.org/rules/api/
  ensemble: custom
  timeout: 3s
  cacheTTL: 1m
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep their defaults")
	assert.Equal(t, "/data/rules.csv", cfg.Rulebase.Path)
	assert.Equal(t, "https://services.example.org/rules/api/", cfg.Activation.BaseURL)
	assert.Equal(t, "custom", cfg.Activation.Ensemble)
	assert.Equal(t, 3*time.Second, cfg.Activation.Timeout)
	assert.Equal(t, time.Minute, cfg.Activation.CacheTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_FileProfileSelectsDefaults(t *testing.T) {
	path := writeFile(t, `
profile: shared
repository:
  postgresHost: db.internal
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, domain.ProfileShared, cfg.Profile)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "db.internal", cfg.Repository.PostgresHost)
	assert.Equal(t, 5432, cfg.Repository.PostgresPort)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
logging:
  level: debug
`)
	t.Setenv("IMPACTS_PORT", "7070")
	t.Setenv("IMPACTS_RULES_TIMEOUT", "500ms")
	t.Setenv("IMPACTS_CACHE_TWO_PHASE", "true")
	t.Setenv("IMPACTS_RULEBASE_PATH", "/etc/impacts/rules.csv")
	t.Setenv("IMPACTS_NATS_TOKEN", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 500*time.Millisecond, cfg.Activation.Timeout)
	assert.True(t, cfg.Cache.EnableTwoPhase)
	assert.Equal(t, "/etc/impacts/rules.csv", cfg.Rulebase.Path)
	assert.Equal(t, "s3cret", cfg.EventBus.NATSToken)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("BadYAML", func(t *testing.T) {
		_, err := Load(writeFile(t, "server: [unclosed"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config file")
	})

	t.Run("BadEnvValues", func(t *testing.T) {
		t.Setenv("IMPACTS_PORT", "eighty")
		t.Setenv("IMPACTS_RULES_TIMEOUT", "soon")

		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "IMPACTS_PORT")
		assert.Contains(t, err.Error(), "IMPACTS_RULES_TIMEOUT")
	})

	t.Run("Invalid", func(t *testing.T) {
		t.Setenv("IMPACTS_DB_DRIVER", "mysql")
		t.Setenv("IMPACTS_LOG_FORMAT", "xml")
		t.Setenv("IMPACTS_BUS_TYPE", "kafka")

		_, err := Load("")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Contains(t, err.Error(), "mysql")
		assert.Contains(t, err.Error(), "xml")
		assert.Contains(t, err.Error(), "kafka")
	})
}
