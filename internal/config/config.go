// ABOUTME: Configuration loading and parsing for helpdesk-relay
// ABOUTME: Supports YAML files with .env loading, environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variable naming an explicit config file.
const EnvConfigPath = "HELPDESK_CONFIG"

// Defaults applied when a field is left empty.
const (
	DefaultPollTimeout    = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultDedupeTTL      = 10 * time.Minute
	DefaultDedupeMaxSize  = 10000
	DefaultForwardLimit   = 20
	DefaultOperatorLimit  = 30
	DefaultLogsDefault    = 50
)

// Config represents the complete helpdesk-relay configuration
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Texts    TextsConfig    `yaml:"texts"`
	Admins   []int64        `yaml:"admins"`
	History  HistoryConfig  `yaml:"history"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig holds Bot API credentials and timing
type TelegramConfig struct {
	Token          string        `yaml:"token"`
	PollTimeout    time.Duration `yaml:"-"`
	RequestTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	PollTimeoutRaw    string `yaml:"poll_timeout"`
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo). Empty means "sqlite".
	Driver string `yaml:"driver"`
}

// TextsConfig points at an optional TOML catalog overriding the built-in texts
type TextsConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig bounds the transcripts shown to people
type HistoryConfig struct {
	// ForwardLimit is how many entries a new operator receives on assignment.
	ForwardLimit int `yaml:"forward_limit"`
	// OperatorLimit is how many entries the operator history button shows.
	OperatorLimit int `yaml:"operator_limit"`
	// LogsDefault is the /logs count when none is given.
	LogsDefault int `yaml:"logs_default"`
}

// DedupeConfig sizes the redelivered-update cache
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-"`
	TTLRaw  string        `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPath returns the config file location.
// Priority: HELPDESK_CONFIG env var > XDG_CONFIG_HOME/helpdesk/relay.yaml > ~/.config/helpdesk/relay.yaml
func DefaultPath() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "relay.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "helpdesk", "relay.yaml")
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = DefaultPollTimeout
	}
	if c.Telegram.RequestTimeout == 0 {
		c.Telegram.RequestTimeout = DefaultRequestTimeout
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = DefaultDedupeTTL
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = DefaultDedupeMaxSize
	}
	if c.History.ForwardLimit == 0 {
		c.History.ForwardLimit = DefaultForwardLimit
	}
	if c.History.OperatorLimit == 0 {
		c.History.OperatorLimit = DefaultOperatorLimit
	}
	if c.History.LogsDefault == 0 {
		c.History.LogsDefault = DefaultLogsDefault
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.PollTimeout < 0 || c.Telegram.RequestTimeout < 0 {
		return fmt.Errorf("telegram timeouts must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver %q must be sqlite or sqlite3", c.Database.Driver)
	}

	if c.History.ForwardLimit < 0 || c.History.OperatorLimit < 0 || c.History.LogsDefault < 0 {
		return fmt.Errorf("history limits must not be negative")
	}
	if c.Dedupe.TTL < 0 || c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe ttl and max_size must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	for _, id := range c.Admins {
		if id <= 0 {
			return fmt.Errorf("admins: %d is not a chat id", id)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Telegram.PollTimeoutRaw != "" {
		cfg.Telegram.PollTimeout, err = time.ParseDuration(cfg.Telegram.PollTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_timeout %q: %w", cfg.Telegram.PollTimeoutRaw, err)
		}
	}

	if cfg.Telegram.RequestTimeoutRaw != "" {
		cfg.Telegram.RequestTimeout, err = time.ParseDuration(cfg.Telegram.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Telegram.RequestTimeoutRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}

// Template is the starter config written by "helpdesk-relay init".
const Template = `# helpdesk-relay configuration

telegram:
  token: "${HELPDESK_TELEGRAM_TOKEN}"
  poll_timeout: "10s"
  request_timeout: "30s"

database:
  path: "./helpdesk.db"
  driver: "sqlite"

# texts:
#   path: "./texts.toml"

# Chat ids with admin rights. Added to any admins already stored and
# restored on every start: remove an id here as well as with /del_admin.
admins: []

history:
  forward_limit: 20
  operator_limit: 30
  logs_default: 50

dedupe:
  ttl: "10m"
  max_size: 10000

logging:
  level: "info"
  format: "text"
`
