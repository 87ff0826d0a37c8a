// internal/config/config.go
//
// This package handles configuration and the thinkpilot data directory.
// The directory holds config.yaml (or config.toml) and the logs/ folder.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// AppName is the data directory name under the user config root.
	AppName = "thinkpilot"

	// ConfigFile is the YAML configuration filename written on first run.
	ConfigFile = "config.yaml"

	// TOMLConfigFile is read instead of ConfigFile when present.
	TOMLConfigFile = "config.toml"

	// HomeEnv overrides the data directory.
	HomeEnv = "THINKPILOT_HOME"

	DecomposerNone = "none"
	DecomposerHTTP = "http"
)

const defaultConfigYAML = `# thinkpilot configuration
version: 1

# Web front-end used by "thinkpilot serve".
server:
  host: 127.0.0.1
  port: 8080
  session_ttl: 30m
  max_sessions: 1000

# Service used by "break into steps". Leave kind: none to keep the button inert.
decomposer:
  kind: none
  # kind: http
  # endpoint: https://steps.example.com/v1/decompose
  # timeout: 10s
  # max_steps: 10
  # token_env: THINKPILOT_DECOMPOSER_TOKEN
  # oauth:
  #   token_url: https://auth.example.com/oauth/token
  #   client_id: thinkpilot
  #   client_secret_env: THINKPILOT_DECOMPOSER_SECRET

logging:
  level: info
  format: text
`

// ServerConfig holds the web front-end options.
type ServerConfig struct {
	Host        string `yaml:"host" toml:"host"`
	Port        int    `yaml:"port" toml:"port"`
	SessionTTL  string `yaml:"session_ttl" toml:"session_ttl"`
	MaxSessions int    `yaml:"max_sessions" toml:"max_sessions"`
}

// OAuthConfig declares client-credential authentication for the decomposer.
type OAuthConfig struct {
	TokenURL        string   `yaml:"token_url,omitempty" toml:"token_url"`
	ClientID        string   `yaml:"client_id,omitempty" toml:"client_id"`
	ClientSecretEnv string   `yaml:"client_secret_env,omitempty" toml:"client_secret_env"`
	Scopes          []string `yaml:"scopes,omitempty" toml:"scopes"`
}

// DecomposerConfig selects and configures the break-into-steps service.
type DecomposerConfig struct {
	Kind     string      `yaml:"kind" toml:"kind"`
	Endpoint string      `yaml:"endpoint,omitempty" toml:"endpoint"`
	Timeout  string      `yaml:"timeout,omitempty" toml:"timeout"`
	MaxSteps int         `yaml:"max_steps,omitempty" toml:"max_steps"`
	TokenEnv string      `yaml:"token_env,omitempty" toml:"token_env"`
	OAuth    OAuthConfig `yaml:"oauth,omitempty" toml:"oauth"`
}

// LoggingConfig controls the diagnostic log.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Settings models config.yaml.
type Settings struct {
	Version    int              `yaml:"version" toml:"version"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Decomposer DecomposerConfig `yaml:"decomposer" toml:"decomposer"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
}

// Config holds the runtime configuration.
type Config struct {
	// Dir is the data directory.
	Dir string

	Settings Settings

	path string
}

// DefaultDir returns the data directory used when none is given.
// Uses $THINKPILOT_HOME, then $XDG_CONFIG_HOME/thinkpilot, then
// $HOME/.config/thinkpilot.
func DefaultDir() string {
	if home := strings.TrimSpace(os.Getenv(HomeEnv)); home != "" {
		return home
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// InitDir creates the data directory layout and writes a default config.yaml
// unless a config file already exists.
//
// Structure created:
// <dir>/
// ├── config.yaml
// └── logs/
func InitDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("config: data directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return fmt.Errorf("config: ensure data dir: %w", err)
	}
	if exists(filepath.Join(dir, TOMLConfigFile)) {
		return nil
	}
	return ensureConfigFile(filepath.Join(dir, ConfigFile))
}

// Load reads the configuration in dir. A missing file yields defaults.
func Load(dir string) (*Config, error) {
	cfg := &Config{
		Dir:      dir,
		Settings: DefaultSettings(),
		path:     filepath.Join(dir, ConfigFile),
	}
	if tomlPath := filepath.Join(dir, TOMLConfigFile); exists(tomlPath) {
		cfg.path = tomlPath
	}
	if err := cfg.load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		Version: 1,
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8080,
			SessionTTL:  "30m",
			MaxSessions: 1000,
		},
		Decomposer: DecomposerConfig{
			Kind:     DecomposerNone,
			Timeout:  "10s",
			MaxSteps: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Path returns the config file in use.
func (c *Config) Path() string {
	return c.path
}

// LogsDir returns the path to the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Dir, "logs")
}

// LogPath returns the diagnostic log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "thinkpilot.log")
}

// JournalPath returns the session journal file.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "journal.log")
}

// SessionTTL returns how long an idle web session is kept.
func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Settings.Server.SessionTTL)
	return d
}

// DecomposerTimeout returns the per-request decomposer timeout.
func (c *Config) DecomposerTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Settings.Decomposer.Timeout)
	return d
}

// DecomposerToken reads the static bearer token from the configured
// environment variable.
func (c *Config) DecomposerToken() string {
	return envValue(c.Settings.Decomposer.TokenEnv)
}

// DecomposerClientSecret reads the OAuth client secret from the configured
// environment variable.
func (c *Config) DecomposerClientSecret() string {
	return envValue(c.Settings.Decomposer.OAuth.ClientSecretEnv)
}

func (c *Config) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: read %s: %w", c.path, err)
	}
	if err == nil {
		parsed := Settings{}
		if err := decode(c.path, data, &parsed); err != nil {
			return fmt.Errorf("config: parse %s: %w", c.path, err)
		}
		parsed.applyDefaults()
		c.Settings = parsed
	}
	c.Settings.applyEnvOverrides()
	c.Settings.normalize()
	if err := c.Settings.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func decode(path string, data []byte, out *Settings) error {
	if filepath.Ext(path) == ".toml" {
		_, err := toml.Decode(string(data), out)
		return err
	}
	return yaml.Unmarshal(data, out)
}

func (s *Settings) applyDefaults() {
	def := DefaultSettings()
	if s.Version == 0 {
		s.Version = def.Version
	}
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = def.Server.Host
	}
	if s.Server.Port == 0 {
		s.Server.Port = def.Server.Port
	}
	if strings.TrimSpace(s.Server.SessionTTL) == "" {
		s.Server.SessionTTL = def.Server.SessionTTL
	}
	if s.Server.MaxSessions == 0 {
		s.Server.MaxSessions = def.Server.MaxSessions
	}
	if strings.TrimSpace(s.Decomposer.Kind) == "" {
		s.Decomposer.Kind = def.Decomposer.Kind
	}
	if strings.TrimSpace(s.Decomposer.Timeout) == "" {
		s.Decomposer.Timeout = def.Decomposer.Timeout
	}
	if s.Decomposer.MaxSteps == 0 {
		s.Decomposer.MaxSteps = def.Decomposer.MaxSteps
	}
	if strings.TrimSpace(s.Logging.Level) == "" {
		s.Logging.Level = def.Logging.Level
	}
	if strings.TrimSpace(s.Logging.Format) == "" {
		s.Logging.Format = def.Logging.Format
	}
}

func (s *Settings) applyEnvOverrides() {
	if level := strings.TrimSpace(os.Getenv("THINKPILOT_LOG_LEVEL")); level != "" {
		s.Logging.Level = level
	}
	if endpoint := strings.TrimSpace(os.Getenv("THINKPILOT_DECOMPOSER_ENDPOINT")); endpoint != "" {
		s.Decomposer.Endpoint = endpoint
		if normalizeKind(s.Decomposer.Kind) == DecomposerNone {
			s.Decomposer.Kind = DecomposerHTTP
		}
	}
}

func (s *Settings) normalize() {
	s.Server.Host = strings.TrimSpace(s.Server.Host)
	s.Server.SessionTTL = strings.TrimSpace(s.Server.SessionTTL)
	s.Decomposer.Kind = normalizeKind(s.Decomposer.Kind)
	s.Decomposer.Endpoint = strings.TrimSpace(s.Decomposer.Endpoint)
	s.Decomposer.Timeout = strings.TrimSpace(s.Decomposer.Timeout)
	s.Decomposer.TokenEnv = strings.TrimSpace(s.Decomposer.TokenEnv)
	s.Decomposer.OAuth.TokenURL = strings.TrimSpace(s.Decomposer.OAuth.TokenURL)
	s.Decomposer.OAuth.ClientID = strings.TrimSpace(s.Decomposer.OAuth.ClientID)
	s.Decomposer.OAuth.ClientSecretEnv = strings.TrimSpace(s.Decomposer.OAuth.ClientSecretEnv)
	s.Logging.Level = strings.ToLower(strings.TrimSpace(s.Logging.Level))
	s.Logging.Format = strings.ToLower(strings.TrimSpace(s.Logging.Format))
}

func (s *Settings) validate() error {
	if s.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}
	if d, err := time.ParseDuration(s.Server.SessionTTL); err != nil || d <= 0 {
		return fmt.Errorf("server.session_ttl must be a positive duration")
	}
	if s.Server.MaxSessions < 1 {
		return fmt.Errorf("server.max_sessions must be >= 1")
	}
	switch s.Decomposer.Kind {
	case DecomposerNone:
	case DecomposerHTTP:
		if s.Decomposer.Endpoint == "" {
			return fmt.Errorf("decomposer.endpoint is required for kind http")
		}
	default:
		return fmt.Errorf("decomposer.kind must be 'none' or 'http'")
	}
	if d, err := time.ParseDuration(s.Decomposer.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("decomposer.timeout must be a positive duration")
	}
	if s.Decomposer.MaxSteps < 1 {
		return fmt.Errorf("decomposer.max_steps must be >= 1")
	}
	if s.Decomposer.OAuth.TokenURL != "" && s.Decomposer.OAuth.ClientID == "" {
		return fmt.Errorf("decomposer.oauth.client_id is required with token_url")
	}
	switch s.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	switch s.Logging.Format {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("logging.format must be text, json or logfmt")
	}
	return nil
}

func normalizeKind(value string) string {
	kind := strings.ToLower(strings.TrimSpace(value))
	if kind == "" {
		return DecomposerNone
	}
	return kind
}

func envValue(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
