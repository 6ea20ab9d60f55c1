// Package config loads the process-wide settings of agentdialog from YAML.
// Environment variables referenced as ${VAR} are expanded before parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentdialog/core"
	"github.com/hupe1980/agentdialog/model"
	"github.com/hupe1980/agentdialog/reasoning"
)

// Provider names accepted in ProviderConfig.Name.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderCompat    = "compat"
	ProviderMock      = "mock"
)

// Config is the root configuration.
type Config struct {
	Provider   ProviderConfig   `yaml:"provider"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Models     []model.Profile  `yaml:"models"`
	Confidence reasoning.Policy `yaml:"confidence"`
	Logging    LoggingConfig    `yaml:"logging"`
	Server     ServerConfig     `yaml:"server"`
}

// ProviderConfig selects the completion backend.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	// DefaultAPIKey is used for slots that carry no credential of their own.
	DefaultAPIKey  string `yaml:"default_api_key"`
	ThinkingBudget int64  `yaml:"thinking_budget"`
}

// ExchangeConfig tunes a single completion exchange.
type ExchangeConfig struct {
	Temperature   float64       `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	Stream        *bool         `yaml:"stream"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
}

// Streaming reports whether exchanges should stream; unset means true.
func (e ExchangeConfig) Streaming() bool { return e.Stream == nil || *e.Stream }

type PromptConfig struct {
	ThinkingInstruction string `yaml:"thinking_instruction"`
	FallbackGreeting    string `yaml:"fallback_greeting"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	// Listen is the address of the metrics and push endpoints; empty disables them.
	Listen string `yaml:"listen"`
}

// Default returns a configuration that runs against a local
// OpenAI-compatible endpoint.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = ProviderCompat
	}
	if cfg.Exchange.Temperature == 0 {
		cfg.Exchange.Temperature = 0.7
	}
	if cfg.Exchange.MaxTokens == 0 {
		cfg.Exchange.MaxTokens = 1024
	}
	if cfg.Exchange.StreamTimeout == 0 {
		cfg.Exchange.StreamTimeout = 120 * time.Second
	}
	if cfg.Prompt.FallbackGreeting == "" {
		cfg.Prompt.FallbackGreeting = reasoning.DefaultGreeting
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	switch c.Provider.Name {
	case ProviderOpenAI, ProviderAnthropic, ProviderCompat, ProviderMock:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider.Name))
	}
	if c.Exchange.Temperature < 0 || c.Exchange.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %.2f out of range [0,2]", c.Exchange.Temperature))
	}
	if c.Exchange.MaxTokens < 0 {
		errs = append(errs, errors.New("max_tokens must not be negative"))
	}
	if c.Exchange.StreamTimeout < 0 {
		errs = append(errs, errors.New("stream_timeout must not be negative"))
	}
	for i, p := range c.Models {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("models[%d]: name is required", i))
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", core.ErrValidation, errors.Join(errs...))
	}
	return nil
}

// Registry returns the stock model registry extended by the configured profiles.
func (c *Config) Registry() *model.Registry {
	reg := model.DefaultRegistry()
	for _, p := range c.Models {
		reg.Register(p)
	}
	return reg
}

// Policy returns the configured confidence policy. Unset values take defaults
// when the processor is built.
func (c *Config) Policy() reasoning.Policy {
	p := c.Confidence
	if p.Greeting == "" {
		p.Greeting = c.Prompt.FallbackGreeting
	}
	return p
}

// Load reads, expands and validates the configuration file at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := readYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadExperiment reads an experiment definition. Defaults are applied and the
// result validated the same way Engine.Start does.
func LoadExperiment(path string) (core.ExperimentConfig, error) {
	var cfg core.ExperimentConfig
	if err := readYAML(path, &cfg); err != nil {
		return core.ExperimentConfig{}, err
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return core.ExperimentConfig{}, err
	}
	return cfg, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}
