package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds the CLI defaults loaded from a tickfetch config file.
// Durations are expressed in milliseconds, matching the JSON format.
type Config struct {
	Timeout     int               `json:"timeout,omitempty"`     // per-request, milliseconds
	Retries     *int              `json:"retries,omitempty"`
	MaxPerHost  int               `json:"maxPerHost,omitempty"`
	MaxTotal    int               `json:"maxTotal,omitempty"`
	IdleTimeout int               `json:"idleTimeout,omitempty"` // milliseconds
	UserAgent   string            `json:"userAgent,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`     // default headers for all requests
	RateLimit   float64           `json:"rateLimit,omitempty"`   // requests per second per host
	RateBurst   int               `json:"rateBurst,omitempty"`
	Archive     string            `json:"archive,omitempty"`     // sqlite archive path
	Insecure    *bool             `json:"insecure,omitempty"`
	Verbose     *bool             `json:"verbose,omitempty"`
	NoColor     *bool             `json:"noColor,omitempty"`
}

// getBool returns the value of a bool pointer, or the default if nil.
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// BoolPtr returns a pointer to a bool value, for building configs in code.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to an int value.
func IntPtr(n int) *int { return &n }

// GetInsecure reports whether TLS verification is disabled, default false.
func (c *Config) GetInsecure() bool { return getBool(c.Insecure, false) }

// GetVerbose reports the verbose setting, default false.
func (c *Config) GetVerbose() bool { return getBool(c.Verbose, false) }

// GetNoColor reports the no-color setting, default false.
func (c *Config) GetNoColor() bool { return getBool(c.NoColor, false) }

// GetRetries returns the retry count, default 3.
func (c *Config) GetRetries() int {
	if c.Retries == nil {
		return 3
	}
	return *c.Retries
}

// RequestTimeout returns the configured timeout as a duration, zero when
// unset so the client default applies.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// IdleTimeoutDuration returns the idle timeout as a duration.
func (c *Config) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Millisecond
}

// ConfigFilenames contains the possible config file names, checked in order.
var ConfigFilenames = []string{
	".tickfetch.config.json",
	"tickfetch.config.json",
	".tickfetchrc",
	".tickfetchrc.json",
}

// LoadConfig loads configuration from the specified path, or searches the
// current directory when path is empty.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory,
// returning defaults when none exists.
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

// Merge merges another config into this one, with other taking precedence.
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // copy

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxPerHost > 0 {
		result.MaxPerHost = other.MaxPerHost
	}
	if other.MaxTotal > 0 {
		result.MaxTotal = other.MaxTotal
	}
	if other.IdleTimeout > 0 {
		result.IdleTimeout = other.IdleTimeout
	}
	if other.UserAgent != "" {
		result.UserAgent = other.UserAgent
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.RateBurst > 0 {
		result.RateBurst = other.RateBurst
	}
	if other.Archive != "" {
		result.Archive = other.Archive
	}

	// Pointer-typed fields only override when explicitly set.
	if other.Retries != nil {
		result.Retries = other.Retries
	}
	if other.Insecure != nil {
		result.Insecure = other.Insecure
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range other.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}

	return &result
}

// SaveConfig saves the configuration to a file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
