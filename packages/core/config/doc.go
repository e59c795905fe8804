// Package config handles configuration loading and management for tickfetch.
//
// It provides functionality for:
//   - Loading configuration from .tickfetch.config.json and friends
//   - Default configuration values
//   - Merging file configuration with command-line overrides
package config
