package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelbrown/devbot/internal/tools"
)

type ProviderConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	APIKey  string            `mapstructure:"api_key"`
	Models  map[string]string `mapstructure:"models"`
}

type AssistantConfig struct {
	MaxIterations    int    `mapstructure:"max_iterations"`
	ProfilesDir      string `mapstructure:"profiles_dir"`
	ContextMaxTokens int    `mapstructure:"context_max_tokens"`
}

type SandboxConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	WorkDir        string        `mapstructure:"workdir"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type Config struct {
	Providers       map[string]ProviderConfig     `mapstructure:"providers"`
	DefaultProvider string                        `mapstructure:"default_provider"`
	DefaultLanguage string                        `mapstructure:"default_language"`
	Assistant       AssistantConfig               `mapstructure:"assistant"`
	Sandbox         SandboxConfig                 `mapstructure:"sandbox"`
	Server          ServerConfig                  `mapstructure:"server"`
	Storage         StorageConfig                 `mapstructure:"storage"`
	Tools           map[string]tools.ServerConfig `mapstructure:"tools"`
}

// Load reads devbot.yaml from the working directory or ~/.devbot.
// A missing config file is fine; defaults apply so code execution works
// out of the box even with no provider configured.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("devbot")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.devbot")

	v.SetDefault("default_provider", "ollama")
	v.SetDefault("default_language", "python")
	v.SetDefault("assistant.max_iterations", 10)
	v.SetDefault("assistant.context_max_tokens", 6000)
	v.SetDefault("sandbox.timeout", "10s")
	v.SetDefault("sandbox.max_output_bytes", 64<<10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".devbot", "devbot.db"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Expand environment variable references in API keys
	for name, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "${") && strings.HasSuffix(p.APIKey, "}") {
			envVar := p.APIKey[2 : len(p.APIKey)-1]
			p.APIKey = os.Getenv(envVar)
			cfg.Providers[name] = p
		}
	}

	return &cfg, nil
}

// IsOllama returns true if this provider looks like an Ollama instance.
func (p ProviderConfig) IsOllama() bool {
	return strings.Contains(p.BaseURL, ":11434") || strings.Contains(strings.ToLower(p.BaseURL), "ollama")
}

// Provider returns the config for a named provider, falling back to the default.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider: %s", name)
	}
	return p, nil
}
