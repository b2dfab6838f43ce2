package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/lightcycle/internal/items"
	"github.com/dokzlo13/lightcycle/internal/program"
	"github.com/dokzlo13/lightcycle/internal/storage/kv"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig              `yaml:"log"`
	Database        DatabaseConfig         `yaml:"database"`
	Cache           CacheConfig            `yaml:"cache"`
	Registry        RegistryConfig         `yaml:"registry"`
	Lights          map[string]LightConfig `yaml:"lights"`
	Dynamic         DynamicConfig          `yaml:"dynamic"`
	API             APIConfig              `yaml:"api"`
	EventBus        EventBusConfig         `yaml:"eventbus"`
	Ledger          LedgerConfig           `yaml:"ledger"`
	Script          string                 `yaml:"script"`
	ShutdownTimeout Duration               `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig selects where cycling positions are kept
type CacheConfig struct {
	Backend     string `yaml:"backend"` // memory, sqlite or redis (default: memory)
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// GetBackend parses the configured backend
func (c *CacheConfig) GetBackend() (kv.Backend, error) {
	return kv.ParseBackend(c.Backend)
}

// RegistryConfig selects and configures the item registry
type RegistryConfig struct {
	Kind         string      `yaml:"kind"` // memory, mqtt or rest (default: memory)
	RateLimitRPS float64     `yaml:"rate_limit_rps"`
	MQTT         MQTTConfig  `yaml:"mqtt"`
	REST         RESTConfig  `yaml:"rest"`
	Memory       MemoryItems `yaml:"memory"`
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	StateTopic     string   `yaml:"state_topic"`
	CommandTopic   string   `yaml:"command_topic"`
	QoS            byte     `yaml:"qos"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// Options converts to registry options
func (c MQTTConfig) Options() items.MQTTConfig {
	return items.MQTTConfig{
		Broker:       c.Broker,
		ClientID:     c.ClientID,
		Username:     c.Username,
		Password:     c.Password,
		StateTopic:   c.StateTopic,
		CommandTopic: c.CommandTopic,
		QoS:          c.QoS,
	}
}

// RESTConfig contains openHAB REST API settings
type RESTConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"`
}

// MemoryItems seeds the in-memory registry
type MemoryItems struct {
	Initial map[string]string `yaml:"initial"`
}

// LightConfig describes one light
type LightConfig struct {
	Items    items.Names      `yaml:"items"`
	Programs program.List     `yaml:"programs"`
	Dynamic  *program.Dynamic `yaml:"dynamic"`
}

// DynamicConfig contains the dynamic refresh settings
type DynamicConfig struct {
	Interval   Duration `yaml:"interval"` // default: 5m
	OnlyIfOn   *bool    `yaml:"only_if_on"`
	RunOnStart bool     `yaml:"run_on_start"`
}

// GetOnlyIfOn returns the gating flag with default
func (c *DynamicConfig) GetOnlyIfOn() bool {
	if c.OnlyIfOn == nil {
		return true
	}
	return *c.OnlyIfOn
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port
func (c *APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LedgerConfig contains operation history settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"` // default: true
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// IsEnabled returns whether operations are recorded
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Retention returns how long entries are kept
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lightcycle.sqlite"
	}
	if cfg.Script == "" {
		cfg.Script = "main.lua"
	}

	// Cache defaults
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = string(kv.BackendMemory)
	}
	if _, err := cfg.Cache.GetBackend(); err != nil {
		return nil, err
	}
	if cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = "localhost:6379"
	}
	if cfg.Cache.RedisPrefix == "" {
		cfg.Cache.RedisPrefix = "lightcycle:"
	}

	// Registry defaults
	switch cfg.Registry.Kind {
	case "":
		cfg.Registry.Kind = "memory"
	case "memory", "mqtt", "rest":
	default:
		return nil, fmt.Errorf("unknown registry kind %q", cfg.Registry.Kind)
	}
	if cfg.Registry.MQTT.ConnectTimeout == 0 {
		cfg.Registry.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}
	if cfg.Registry.REST.Timeout == 0 {
		cfg.Registry.REST.Timeout = Duration(10 * time.Second)
	}

	if cfg.Registry.Kind == "mqtt" {
		if err := cfg.Registry.MQTT.Options().Validate(); err != nil {
			return nil, fmt.Errorf("registry.mqtt: %w", err)
		}
	}

	// Lights need at least a switch item
	for name, l := range cfg.Lights {
		if l.Items.Switch == "" {
			return nil, fmt.Errorf("light %q: items.switch is required", name)
		}
	}

	// Dynamic defaults
	if cfg.Dynamic.Interval == 0 {
		cfg.Dynamic.Interval = Duration(5 * time.Minute)
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
