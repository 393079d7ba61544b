// Package config loads the server configuration from an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by Load.
const (
	EnvConfigPath    = "DERIVTUTOR_CONFIG"
	EnvPort          = "PORT"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIModel   = "OPENAI_MODEL"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Vision      VisionConfig      `yaml:"vision"`
	Equivalence EquivalenceConfig `yaml:"equivalence"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

type ServerConfig struct {
	Port           int             `yaml:"port" validate:"min=1,max=65535"`
	MaxBodyBytes   int64           `yaml:"max_body_bytes" validate:"min=1024"`
	FrameAncestors []string        `yaml:"frame_ancestors" validate:"min=1,dive,required"`
	ReadTimeout    time.Duration   `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout   time.Duration   `yaml:"write_timeout" validate:"gte=0"`
	CheckTimeout   time.Duration   `yaml:"check_timeout" validate:"gte=0"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles the check endpoints. RPS of zero disables it.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

type VisionConfig struct {
	Enabled bool          `yaml:"enabled"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// EquivalenceConfig widens the numeric probe set. Extra probes are appended
// to the default set.
type EquivalenceConfig struct {
	ExtraProbes []float64 `yaml:"extra_probes" validate:"max=64"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

type TracingConfig struct {
	Stdout bool `yaml:"stdout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         10000,
			MaxBodyBytes: 16 << 20,
			FrameAncestors: []string{
				"'self'",
				"https://*.instructure.com",
				"https://*.instructuremedia.com",
			},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
			CheckTimeout: 20 * time.Second,
			RateLimit:    RateLimitConfig{RPS: 5, Burst: 10},
		},
		Vision: VisionConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

var validate = validator.New()

// Load reads path (or $DERIVTUTOR_CONFIG when path is empty) over the
// defaults, applies environment overrides and validates the result. A
// missing path means defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		cfg.Vision.APIKey = v
		cfg.Vision.Enabled = true
	}
	if v := os.Getenv(EnvOpenAIModel); v != "" {
		cfg.Vision.Model = v
	}
	if v := os.Getenv(EnvOpenAIBaseURL); v != "" {
		cfg.Vision.BaseURL = v
	}
	return nil
}

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Vision.Enabled && c.Vision.APIKey == "" {
		return errors.New("invalid configuration: vision enabled without an API key")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return fmt.Sprintf("0.0.0.0:%d", c.Server.Port) }
