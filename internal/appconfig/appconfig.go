// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// defaultRequestTimeout is the default timeout for chat-completion HTTP requests.
	defaultRequestTimeout = 600 * time.Second
	// defaultConnectTimeout bounds the provider connect and handshake phase.
	defaultConnectTimeout = 10 * time.Second
)

// Provider kinds supported by the transport layer.
const (
	KindStdio = "stdio"
	KindSSE   = "sse"
)

// Config represents the top-level application configuration.
type Config struct {
	Providers      []Provider `json:"providers"`
	LLM            LLM        `json:"llm"`
	Debug          bool       `json:"debug"`
	TimeoutSeconds int        `json:"timeout,omitempty"`
	ConnectTimeout int        `json:"connectTimeout,omitempty"`
	LogFile        string     `json:"logFile,omitempty"`
	ConfigPath     string     `json:"-"`
}

// Provider describes a single tool provider the client may connect to.
// Exactly one of Command (kind=stdio) or URL (kind=sse) must be set.
type Provider struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Command string `json:"command,omitempty"`
	URL     string `json:"url,omitempty"`
	Enabled bool   `json:"enabled"`
}

// LLM holds the chat-completion endpoint settings.
type LLM struct {
	BaseURL string `json:"baseUrl"`
	Model   string `json:"model"`
}

// RequestTimeout returns the timeout duration for chat-completion HTTP requests,
// falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ConnectTimeoutDuration returns the timeout applied to provider connect and handshake.
func (c Config) ConnectTimeoutDuration() time.Duration {
	if c.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return time.Duration(c.ConnectTimeout) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "vitalink.log"
}

// EnabledProviders returns only the providers flagged enabled, in config order.
func (c Config) EnabledProviders() []Provider {
	enabled := make([]Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// Validate checks a provider entry against the transport it names.
func (p Provider) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("provider name must not be empty")
	}
	switch p.Kind {
	case KindStdio:
		if strings.TrimSpace(p.Command) == "" {
			return fmt.Errorf("provider %q: kind %q requires a command", p.Name, p.Kind)
		}
		if strings.TrimSpace(p.URL) != "" {
			return fmt.Errorf("provider %q: kind %q must not set a url", p.Name, p.Kind)
		}
	case KindSSE:
		if strings.TrimSpace(p.URL) == "" {
			return fmt.Errorf("provider %q: kind %q requires a url", p.Name, p.Kind)
		}
		if strings.TrimSpace(p.Command) != "" {
			return fmt.Errorf("provider %q: kind %q must not set a command", p.Name, p.Kind)
		}
	default:
		return fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind)
	}
	return nil
}

// Load reads the application configuration from the specified path.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}

	if len(config.Providers) == 0 {
		return Config{}, errors.New("config must contain at least one provider")
	}
	seen := make(map[string]struct{}, len(config.Providers))
	for _, p := range config.Providers {
		if err := p.Validate(); err != nil {
			return Config{}, err
		}
		if _, dup := seen[p.Name]; dup {
			return Config{}, fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	config.ConfigPath = path
	return config, nil
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}

	return config, nil
}
