package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the opsflow worker.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. YAML configuration file (medium priority)
//  3. Environment variables (highest priority)
//
// Example usage:
//
//	cfg, err := core.LoadConfig("opsflow.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Name identifies this worker in logs and traces
	Name string `yaml:"name"`

	// Planner configuration (LLM collaborator)
	Planner PlannerConfig `yaml:"planner"`

	// Store configuration (durable run state)
	Store StoreConfig `yaml:"store"`

	// Docker configuration
	Docker DockerConfig `yaml:"docker"`

	// Weather configuration
	Weather WeatherConfig `yaml:"weather"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Telemetry configuration
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// PlannerConfig configures the LLM planner collaborator.
// The API key is intentionally environment-only so it never
// lands in a config file.
type PlannerConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// UnmarshalYAML decodes the planner section, parsing duration fields
// from strings like "15s". Absent fields keep their current values so
// file values layer over defaults.
func (p *PlannerConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Provider    string `yaml:"provider"`
		Model       string `yaml:"model"`
		BaseURL     string `yaml:"base_url"`
		Timeout     string `yaml:"timeout"`
		MaxAttempts int    `yaml:"max_attempts"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Provider != "" {
		p.Provider = raw.Provider
	}
	if raw.Model != "" {
		p.Model = raw.Model
	}
	if raw.BaseURL != "" {
		p.BaseURL = raw.BaseURL
	}
	if raw.MaxAttempts != 0 {
		p.MaxAttempts = raw.MaxAttempts
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("planner timeout: %w", err)
		}
		p.Timeout = d
	}
	return nil
}

// StoreConfig configures the durable run store.
// Provider is "redis" for durable runs or "memory" for ephemeral ones.
type StoreConfig struct {
	Provider string        `yaml:"provider"`
	RedisURL string        `yaml:"redis_url"`
	RedisDB  int           `yaml:"redis_db"`
	TTL      time.Duration `yaml:"ttl"`
	ErrorTTL time.Duration `yaml:"error_ttl"`

	// CircuitBreaker guards store operations with a circuit breaker on
	// top of the store's built-in retry.
	CircuitBreaker bool `yaml:"circuit_breaker"`
}

// UnmarshalYAML decodes the store section, parsing TTL fields from
// strings like "24h".
func (s *StoreConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Provider       string `yaml:"provider"`
		RedisURL       string `yaml:"redis_url"`
		RedisDB        int    `yaml:"redis_db"`
		TTL            string `yaml:"ttl"`
		ErrorTTL       string `yaml:"error_ttl"`
		CircuitBreaker bool   `yaml:"circuit_breaker"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Provider != "" {
		s.Provider = raw.Provider
	}
	if raw.CircuitBreaker {
		s.CircuitBreaker = true
	}
	if raw.RedisURL != "" {
		s.RedisURL = raw.RedisURL
	}
	if raw.RedisDB != 0 {
		s.RedisDB = raw.RedisDB
	}
	if raw.TTL != "" {
		d, err := time.ParseDuration(raw.TTL)
		if err != nil {
			return fmt.Errorf("store ttl: %w", err)
		}
		s.TTL = d
	}
	if raw.ErrorTTL != "" {
		d, err := time.ParseDuration(raw.ErrorTTL)
		if err != nil {
			return fmt.Errorf("store error_ttl: %w", err)
		}
		s.ErrorTTL = d
	}
	return nil
}

// DockerConfig configures the container runtime connection
type DockerConfig struct {
	Host string `yaml:"host"`
}

// WeatherConfig configures the weather lookup backend
type WeatherConfig struct {
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// TelemetryConfig contains tracing configuration
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Name: "opsflow-worker",
		Planner: PlannerConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     15 * time.Second,
			MaxAttempts: 2,
		},
		Store: StoreConfig{
			Provider: "memory",
			RedisURL: "redis://localhost:6379",
			RedisDB:  0,
			TTL:      24 * time.Hour,
			ErrorTTL: 7 * 24 * time.Hour,
		},
		Weather: WeatherConfig{
			BaseURL: "https://wttr.in",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML
// file and environment variables, in that order. Passing an empty path
// skips the file layer.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment overlays OPSFLOW_* environment variables
func (c *Config) applyEnvironment() {
	c.Name = GetEnvString("OPSFLOW_NAME", c.Name)

	c.Planner.Provider = GetEnvString("OPSFLOW_PLANNER_PROVIDER", c.Planner.Provider)
	c.Planner.Model = GetEnvString("OPSFLOW_PLANNER_MODEL", c.Planner.Model)
	c.Planner.BaseURL = GetEnvString("OPSFLOW_PLANNER_BASE_URL", c.Planner.BaseURL)
	c.Planner.Timeout = GetEnvDuration("OPSFLOW_PLANNER_TIMEOUT", c.Planner.Timeout)
	c.Planner.MaxAttempts = GetEnvInt("OPSFLOW_PLANNER_MAX_ATTEMPTS", c.Planner.MaxAttempts)

	c.Store.Provider = GetEnvString("OPSFLOW_STORE_PROVIDER", c.Store.Provider)
	c.Store.RedisURL = GetEnvString("OPSFLOW_REDIS_URL", GetEnvString("REDIS_URL", c.Store.RedisURL))
	c.Store.RedisDB = GetEnvInt("OPSFLOW_REDIS_DB", c.Store.RedisDB)
	c.Store.TTL = GetEnvDuration("OPSFLOW_RUN_TTL", c.Store.TTL)
	c.Store.ErrorTTL = GetEnvDuration("OPSFLOW_RUN_ERROR_TTL", c.Store.ErrorTTL)
	if v := os.Getenv("OPSFLOW_STORE_CIRCUIT_BREAKER"); v != "" {
		c.Store.CircuitBreaker = v == "true" || v == "1"
	}

	c.Docker.Host = GetEnvString("DOCKER_HOST", c.Docker.Host)
	c.Weather.BaseURL = GetEnvString("OPSFLOW_WEATHER_BASE_URL", c.Weather.BaseURL)

	c.Logging.Level = GetEnvString("OPSFLOW_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = GetEnvString("OPSFLOW_LOG_FORMAT", c.Logging.Format)

	if v := os.Getenv("OPSFLOW_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	switch c.Store.Provider {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfiguration, c.Store.Provider)
	}
	if c.Planner.MaxAttempts < 1 {
		return fmt.Errorf("%w: planner max_attempts must be positive", ErrInvalidConfiguration)
	}
	if c.Planner.Timeout <= 0 {
		return fmt.Errorf("%w: planner timeout must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// GetEnvString returns an environment variable value or a default
func GetEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// GetEnvInt returns an environment variable as int or a default
func GetEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// GetEnvDuration returns an environment variable as duration or a default
func GetEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
