package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sitaware/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
oracle:
  model: gpt-4-turbo
  timeout: 15s
  requests_per_second: 2
facts:
  devices: facts/devices.json
  rooms: /etc/sitaware/rooms.yaml
session:
  trim: keep_recent
  max_exchanges: 5
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4-turbo", cfg.Oracle.Model)
	assert.Equal(t, 15*time.Second, cfg.Oracle.Timeout)
	assert.Equal(t, 2.0, cfg.Oracle.RequestsPerSecond)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "facts/devices.json"), cfg.Facts.Devices)
	assert.Equal(t, "/etc/sitaware/rooms.yaml", cfg.Facts.Rooms)
	assert.Equal(t, "keep_recent", cfg.Session.Trim)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched defaults survive
	assert.Equal(t, "console", cfg.Log.Format)
	require.NoError(t, cfg.Validate())
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "oracle: [unclosed"))
	var cfgErr *model.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateReportsField(t *testing.T) {
	cases := map[string]func(*Config){
		"oracle.model":          func(c *Config) { c.Oracle.Model = "" },
		"oracle.timeout":        func(c *Config) { c.Oracle.Timeout = 0 },
		"oracle.base_url":       func(c *Config) { c.Oracle.BaseURL = "not a url" },
		"session.trim":          func(c *Config) { c.Session.Trim = "lru" },
		"session.max_exchanges": func(c *Config) { c.Session.Trim = "keep_recent" },
		"log.format":            func(c *Config) { c.Log.Format = "xml" },
		"metrics.addr":          func(c *Config) { c.Metrics.Addr = "nope" },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			err := cfg.Validate()
			var cfgErr *model.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, field, cfgErr.Field)
		})
	}
}

func TestPrecedenceFlagOverEnvOverFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "oracle:\n  model: from-file\n  base_url: http://file.local/v1\n"))
	require.NoError(t, err)

	env := map[string]string{
		EnvModel:        "from-env",
		EnvOpenAIAPIKey: "sk-openai",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "from-env", cfg.Oracle.Model)
	assert.Equal(t, "http://file.local/v1", cfg.Oracle.BaseURL)
	assert.Equal(t, "sk-openai", cfg.Oracle.APIKey)

	env[EnvAPIKey] = "sk-sitaware"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "sk-sitaware", cfg.Oracle.APIKey)

	cfg.Apply(Overrides{Model: "from-flag", LogLevel: "warn"})
	assert.Equal(t, "from-flag", cfg.Oracle.Model)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SITAWARE_TEST_DOTENV=loaded\n"), 0600))
	t.Setenv("SITAWARE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("SITAWARE_TEST_DOTENV"))

	require.NoError(t, LoadDotenv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("SITAWARE_TEST_DOTENV"))
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "oracle.base_url", fieldPath("Config.Oracle.BaseURL"))
	assert.Equal(t, "session.max_exchanges", fieldPath("Config.Session.MaxExchanges"))
}

func TestLoadAlerts(t *testing.T) {
	path := writeConfig(t, `
alerts:
  - url: https://hooks.example.com/sitaware
    format: slack
    events: [anomalous, error]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Alerts, 1)
	assert.Equal(t, []string{"anomalous", "error"}, cfg.Alerts[0].Events)
	require.NoError(t, cfg.Validate())

	cfg.Alerts[0].URL = ""
	err = cfg.Validate()
	var cfgErr *model.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "alerts[0].url", cfgErr.Field)
}
