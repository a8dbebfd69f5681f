// Package config loads sitaware settings from YAML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sitaware/internal/alert"
	"github.com/ppiankov/sitaware/internal/model"
)

// Environment variables consulted by ApplyEnv, in priority order per setting.
const (
	EnvAPIKey       = "SITAWARE_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvAPIURL       = "SITAWARE_API_URL"
	EnvModel        = "SITAWARE_MODEL"
)

// Config is the full runtime configuration.
type Config struct {
	Oracle  OracleConfig   `yaml:"oracle"`
	Facts   FactsConfig    `yaml:"facts"`
	Session SessionConfig  `yaml:"session"`
	Audit   AuditConfig    `yaml:"audit"`
	Store   StoreConfig    `yaml:"store"`
	Inbox   InboxConfig    `yaml:"inbox"`
	Log     LogConfig      `yaml:"log"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Alerts  []alert.Config `yaml:"alerts" validate:"dive"`
}

// OracleConfig selects the reasoning endpoint.
type OracleConfig struct {
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model" validate:"required"`
	Temperature       float32       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `yaml:"max_tokens" validate:"gte=0"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
}

// FactsConfig points at the static environment documents.
type FactsConfig struct {
	Devices string `yaml:"devices"`
	Rooms   string `yaml:"rooms"`
}

// SessionConfig controls context trimming and transcript output.
type SessionConfig struct {
	Trim           string `yaml:"trim" validate:"oneof=keep_all keep_recent"`
	MaxExchanges   int    `yaml:"max_exchanges" validate:"gte=0"`
	TranscriptPath string `yaml:"transcript_path"`
}

// AuditConfig locates the hash-chained evaluation log. Empty disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig locates the sqlite transcript store. Empty disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// InboxConfig configures the serve daemon.
type InboxConfig struct {
	Dir          string        `yaml:"dir"`
	Outbox       string        `yaml:"outbox"`
	State        string        `yaml:"state"`
	Poll         bool          `yaml:"poll"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=0"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// MetricsConfig sets the Prometheus listen address. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home := homeDir()
	return &Config{
		Oracle: OracleConfig{
			Model:   "gpt-4",
			Timeout: 60 * time.Second,
		},
		Facts: FactsConfig{
			Devices: "IoT_device_location.json",
			Rooms:   "room_setup.json",
		},
		Session: SessionConfig{
			Trim:           "keep_all",
			TranscriptPath: "prev_messages.json",
		},
		Audit: AuditConfig{Path: filepath.Join(home, "audit.jsonl")},
		Inbox: InboxConfig{
			Dir:          filepath.Join(home, "inbox"),
			Outbox:       filepath.Join(home, "outbox"),
			State:        filepath.Join(home, "state"),
			PollInterval: 5 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// DefaultPath returns ~/.sitaware/config.yaml.
func DefaultPath() string {
	return filepath.Join(homeDir(), "config.yaml")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sitaware"
	}
	return filepath.Join(home, ".sitaware")
}

// Load reads the YAML file at path over the defaults. An empty path means
// DefaultPath. A missing file yields the defaults. Relative fact paths in a
// loaded file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &model.ConfigError{Field: "config", Err: fmt.Errorf("parse %s: %w", path, err)}
	}

	base := filepath.Dir(path)
	cfg.Facts.Devices = resolve(base, cfg.Facts.Devices)
	cfg.Facts.Rooms = resolve(base, cfg.Facts.Rooms)
	return cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// LoadDotenv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment settings. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if key := firstNonEmpty(getenv(EnvAPIKey), getenv(EnvOpenAIAPIKey)); key != "" {
		c.Oracle.APIKey = key
	}
	if u := getenv(EnvAPIURL); u != "" {
		c.Oracle.BaseURL = u
	}
	if m := getenv(EnvModel); m != "" {
		c.Oracle.Model = m
	}
}

// Overrides are command-line values that take precedence over everything.
type Overrides struct {
	APIURL    string
	Model     string
	LogLevel  string
	LogFormat string
	AuditPath string
}

// Apply overlays non-empty overrides.
func (c *Config) Apply(o Overrides) {
	if o.APIURL != "" {
		c.Oracle.BaseURL = o.APIURL
	}
	if o.Model != "" {
		c.Oracle.Model = o.Model
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Log.Format = o.LogFormat
	}
	if o.AuditPath != "" {
		c.Audit.Path = o.AuditPath
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints. The first failure is returned as a
// *model.ConfigError naming the offending field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		if c.Session.Trim == "keep_recent" && c.Session.MaxExchanges < 1 {
			return &model.ConfigError{Field: "session.max_exchanges", Err: errors.New("must be at least 1 with keep_recent")}
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &model.ConfigError{
			Field: fieldPath(fe.StructNamespace()),
			Err:   fmt.Errorf("failed %q constraint (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return fmt.Errorf("config: validate: %w", err)
}

// fieldPath turns "Config.Oracle.Model" into "oracle.model".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = snake(p)
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
