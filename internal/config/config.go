package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/soochol/minizaps/internal/zaps"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Workflows WorkflowsConfig `yaml:"workflows"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds database connection settings. An empty URL keeps
// runs in memory only.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// WorkflowsConfig locates workflow definition files.
type WorkflowsConfig struct {
	Dir string `yaml:"dir"`
}

// EngineConfig tunes run execution.
type EngineConfig struct {
	DefaultMaxRetries int           `yaml:"default_max_retries"`
	PausePollInterval time.Duration `yaml:"pause_poll_interval"`
	WebhookTimeout    time.Duration `yaml:"webhook_timeout"`
	MaxRunRecords     int           `yaml:"max_run_records"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig is the backoff applied between retry attempts.
type RetryConfig struct {
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// Policy converts the config into a zaps.RetryPolicy.
func (r RetryConfig) Policy() zaps.RetryPolicy {
	return zaps.RetryPolicy{
		InitialDelay:  r.InitialDelay,
		MaxDelay:      r.MaxDelay,
		BackoffFactor: r.BackoffFactor,
	}
}

// SchedulerConfig holds settings for the workflow scheduler.
type SchedulerConfig struct {
	GlobalMax   int             `yaml:"global_max"`   // max concurrent runs system-wide (default: 10)
	PerWorkflow int             `yaml:"per_workflow"` // max concurrent runs per workflow (default: 3)
	Schedules   []zaps.Schedule `yaml:"schedules"`
}

// Limits converts the config into zaps.ConcurrencyLimits.
func (s SchedulerConfig) Limits() zaps.ConcurrencyLimits {
	return zaps.ConcurrencyLimits{GlobalMax: s.GlobalMax, PerWorkflow: s.PerWorkflow}
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Environment variables that override file settings.
const (
	EnvHost         = "MINIZAPS_HOST"
	EnvPort         = "MINIZAPS_PORT"
	EnvDatabaseURL  = "MINIZAPS_DATABASE_URL"
	EnvWorkflowsDir = "MINIZAPS_WORKFLOWS_DIR"
	EnvLogFormat    = "MINIZAPS_LOG_FORMAT"
	EnvLogLevel     = "MINIZAPS_LOG_LEVEL"
)

// defaults returns a Config populated with sensible default values.
func defaults() *Config {
	policy := zaps.DefaultRetryPolicy()
	limits := zaps.DefaultConcurrencyLimits()
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Workflows: WorkflowsConfig{Dir: "workflows"},
		Engine: EngineConfig{
			DefaultMaxRetries: zaps.DefaultMaxRetries,
			PausePollInterval: time.Second,
			WebhookTimeout:    30 * time.Second,
			MaxRunRecords:     1000,
			Retry: RetryConfig{
				InitialDelay:  policy.InitialDelay,
				MaxDelay:      policy.MaxDelay,
				BackoffFactor: policy.BackoffFactor,
			},
		},
		Scheduler: SchedulerConfig{
			GlobalMax:   limits.GlobalMax,
			PerWorkflow: limits.PerWorkflow,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() (*Config, error) {
	cfg := defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Load reads a YAML configuration file at path and returns a Config.
// Environment overrides are applied on top of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads ".env" when present, then tries "config.yaml" from the
// current directory. If the file does not exist, it returns defaults.
// Any other error (e.g. permission denied, malformed YAML) is returned.
func LoadDefault() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default()
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvHost); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv(EnvWorkflowsDir); v != "" {
		c.Workflows.Dir = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Engine.DefaultMaxRetries < 0 {
		return errors.New("engine.default_max_retries must be >= 0")
	}
	if c.Engine.Retry.BackoffFactor < 1 {
		return errors.New("engine.retry.backoff_factor must be >= 1")
	}
	if c.Engine.Retry.InitialDelay < 0 || c.Engine.Retry.MaxDelay < 0 {
		return errors.New("engine.retry delays must be >= 0")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q: want text or json", c.Logging.Format)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
