package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the advisord service configuration, loaded from a YAML file
	// with environment overrides for secrets.
	Config struct {
		HTTP     HTTPConfig     `yaml:"http"`
		Provider ProviderConfig `yaml:"provider"`
		Redis    RedisConfig    `yaml:"redis"`
		Mongo    MongoConfig    `yaml:"mongo"`
	}

	// Duration decodes YAML duration strings such as "30s" or "24h".
	Duration time.Duration

	// HTTPConfig configures the HTTP listener.
	HTTPConfig struct {
		Addr            string   `yaml:"addr"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	}

	// ProviderConfig selects and configures the model provider.
	ProviderConfig struct {
		// Name is "openai" or "anthropic".
		Name string `yaml:"name"`

		// Model is the provider model identifier.
		Model string `yaml:"model"`

		// APIKey is usually left empty in the file and supplied via
		// OPENAI_API_KEY or ANTHROPIC_API_KEY.
		APIKey string `yaml:"api_key"`

		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`

		// InitialTPM and MaxTPM configure the adaptive rate limiter in
		// tokens per minute. Zero disables the limiter.
		InitialTPM float64 `yaml:"initial_tpm"`
		MaxTPM     float64 `yaml:"max_tpm"`
	}

	// RedisConfig configures the optional user memory store.
	RedisConfig struct {
		Addr     string   `yaml:"addr"`
		Password string   `yaml:"password"`
		DB       int      `yaml:"db"`
		TTL      Duration `yaml:"ttl"`
	}

	// MongoConfig configures the optional conversation history store.
	MongoConfig struct {
		URI        string `yaml:"uri"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
	}
)

// UnmarshalYAML decodes either a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LoadConfig reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Provider: ProviderConfig{
			Name:      "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 4096,
		},
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if cfg.Provider.APIKey == "" {
		switch cfg.Provider.Name {
		case "openai":
			cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider.Name {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider.Name)
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider model is required")
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider api key is required (set %s)", apiKeyEnv(c.Provider.Name))
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http addr is required")
	}
	return nil
}

func apiKeyEnv(provider string) string {
	if provider == "anthropic" {
		return "ANTHROPIC_API_KEY"
	}
	return "OPENAI_API_KEY"
}
