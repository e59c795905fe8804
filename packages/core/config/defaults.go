package config

// DefaultConfig returns a configuration with default values. Zero-valued
// fields defer to the client package's own defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:     0, // client default (60s)
		MaxPerHost:  0, // client default (6)
		MaxTotal:    0, // client default (100)
		IdleTimeout: 0, // client default (30s)
		UserAgent:   "",
		Headers:     nil,
		RateLimit:   0,
	}
}
