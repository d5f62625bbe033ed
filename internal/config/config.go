package config

import (
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vango-dev/posthoginit/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "posthoginit.json"

	// DefaultIdleTimeout is the maximum deferral on the idle-callback path.
	DefaultIdleTimeout = 1500 * time.Millisecond

	// DefaultFallbackDelay is the timer delay used when the host has no idle scheduler.
	DefaultFallbackDelay = 600 * time.Millisecond

	// DefaultEndpoint is the PostHog ingestion endpoint.
	DefaultEndpoint = "https://us.i.posthog.com"

	// DefaultCookieName is the cookie holding the recorded consent decision.
	DefaultCookieName = "posthog_consent"

	// DefaultPort is the default port for the serve command.
	DefaultPort = 3000

	// DefaultHost is the default host for the serve command.
	DefaultHost = "localhost"

	// EnvAPIKey overrides PostHog.APIKey when set.
	EnvAPIKey = "POSTHOG_API_KEY"
)

// Config represents the complete posthoginit.json configuration.
type Config struct {
	// Defer controls when the initializer runs after mount.
	Defer DeferConfig `json:"defer"`

	// PostHog contains the analytics client settings.
	PostHog PostHogConfig `json:"posthog"`

	// Consent contains consent storage settings.
	Consent ConsentConfig `json:"consent"`

	// Server contains settings for the serve command.
	Server ServerConfig `json:"server"`

	// Log contains logging settings.
	Log LogConfig `json:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// DeferConfig controls the deferred initialization schedule.
type DeferConfig struct {
	// IdleTimeout is the idle-callback timeout (e.g., "1500ms").
	IdleTimeout string `json:"idleTimeout,omitempty"`

	// FallbackDelay is the timer delay used without an idle scheduler (e.g., "600ms").
	FallbackDelay string `json:"fallbackDelay,omitempty"`

	// Immediate skips the deferral and initializes on the next loop turn.
	Immediate bool `json:"immediate,omitempty"`

	// DisableIdle forces the fallback timer even when the host can run idle callbacks.
	DisableIdle bool `json:"disableIdle,omitempty"`
}

// PostHogConfig contains the analytics client settings.
type PostHogConfig struct {
	APIKey   string `json:"apiKey,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// ConsentConfig contains consent storage settings.
type ConsentConfig struct {
	// CookieName is the cookie that records the consent decision.
	CookieName string `json:"cookieName,omitempty"`

	// Default is the consent state assumed when nothing has been recorded.
	Default string `json:"default,omitempty"`
}

// ServerConfig contains settings for the serve command.
type ServerConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Defer: DeferConfig{
			IdleTimeout:   DefaultIdleTimeout.String(),
			FallbackDelay: DefaultFallbackDelay.String(),
		},
		PostHog: PostHogConfig{
			Endpoint: DefaultEndpoint,
		},
		Consent: ConsentConfig{
			CookieName: DefaultCookieName,
			Default:    "pending",
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for posthoginit.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Create " + ConfigFileName + " or run without --config to use defaults")
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E120").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	cfg.applyEnv()

	return cfg, nil
}

// LoadOrDefault loads dir/posthoginit.json when it exists and falls back to
// defaults otherwise. Parse errors are still returned.
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		cfg := New()
		cfg.applyEnv()
		return cfg, nil
	}
	return Load(dir)
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Defer.IdleTimeout == "" {
		c.Defer.IdleTimeout = DefaultIdleTimeout.String()
	}
	if c.Defer.FallbackDelay == "" {
		c.Defer.FallbackDelay = DefaultFallbackDelay.String()
	}
	if c.PostHog.Endpoint == "" {
		c.PostHog.Endpoint = DefaultEndpoint
	}
	if c.Consent.CookieName == "" {
		c.Consent.CookieName = DefaultCookieName
	}
	if c.Consent.Default == "" {
		c.Consent.Default = "pending"
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnv() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.PostHog.APIKey = key
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, err := parseDuration("defer.idleTimeout", c.Defer.IdleTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("defer.fallbackDelay", c.Defer.FallbackDelay); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("E122").
			WithDetail("server.port must be between 0 and 65535, got " + strconv.Itoa(c.Server.Port))
	}
	if _, ok := logLevels[strings.ToLower(c.Log.Level)]; !ok {
		return errors.New("E123").WithDetail("unknown log.level " + strconv.Quote(c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.New("E123").WithDetail("unknown log.format " + strconv.Quote(c.Log.Format))
	}
	return nil
}

// IdleTimeoutDuration returns the parsed idle timeout, or the default when
// the field is empty or invalid.
func (d DeferConfig) IdleTimeoutDuration() time.Duration {
	v, err := parseDuration("defer.idleTimeout", d.IdleTimeout)
	if err != nil || v <= 0 {
		return DefaultIdleTimeout
	}
	return v
}

// FallbackDelayDuration returns the parsed fallback delay, or the default
// when the field is empty or invalid.
func (d DeferConfig) FallbackDelayDuration() time.Duration {
	v, err := parseDuration("defer.fallbackDelay", d.FallbackDelay)
	if err != nil || v <= 0 {
		return DefaultFallbackDelay
	}
	return v
}

// Address returns the listen address for the serve command.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the slog level for Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	if lvl, ok := logLevels[strings.ToLower(l.Level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// Exists checks if a posthoginit.json exists in the directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.New("E121").
			WithDetail(field + ": " + err.Error()).
			WithSuggestion(`Use a Go duration such as "600ms"`)
	}
	if d < 0 {
		return 0, errors.New("E121").WithDetail(field + " must not be negative")
	}
	return d, nil
}
