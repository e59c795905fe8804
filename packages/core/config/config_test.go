package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAndLoadConfig(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"timeout": 5000,
		"retries": 0,
		"maxPerHost": 4,
		"headers": {"Accept": "application/json"},
		"insecure": true
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tickfetch.config.json"), []byte(content), 0o644))

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 0, cfg.GetRetries(), "explicit zero retries must not fall back to the default")
	assert.Equal(t, 4, cfg.MaxPerHost)
	assert.Equal(t, "application/json", cfg.Headers["Accept"])
	assert.True(t, cfg.GetInsecure())
	assert.False(t, cfg.GetVerbose())
}

func TestFindAndLoadConfigDefaults(t *testing.T) {
	cfg, err := FindAndLoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Zero(t, cfg.RequestTimeout(), "zero defers to the client default")
	assert.Equal(t, 3, cfg.GetRetries())
	assert.False(t, cfg.GetInsecure())
}

func TestMerge(t *testing.T) {
	base := &Config{
		Timeout:    30000,
		Retries:    IntPtr(3),
		MaxPerHost: 6,
		Headers:    map[string]string{"Accept": "application/json", "X-Env": "base"},
		Insecure:   BoolPtr(false),
	}
	override := &Config{
		Timeout: 5000,
		Retries: IntPtr(0),
		Headers: map[string]string{"X-Env": "override"},
		Verbose: BoolPtr(true),
	}

	merged := base.Merge(override)

	assert.Equal(t, 5000, merged.Timeout)
	assert.Equal(t, 0, merged.GetRetries())
	assert.Equal(t, 6, merged.MaxPerHost, "fields absent in the override survive")
	assert.Equal(t, "override", merged.Headers["X-Env"])
	assert.Equal(t, "application/json", merged.Headers["Accept"])
	assert.False(t, merged.GetInsecure())
	assert.True(t, merged.GetVerbose())

	// Merge must not mutate its receiver.
	assert.Equal(t, 30000, base.Timeout)
	assert.Equal(t, "base", base.Headers["X-Env"])
}

func TestMergeNil(t *testing.T) {
	base := &Config{Timeout: 1000}
	assert.Same(t, base, base.Merge(nil))
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickfetch.config.json")
	cfg := &Config{Timeout: 2500, UserAgent: "tickfetch-ci", Archive: "./probes.db"}
	require.NoError(t, cfg.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2500, loaded.Timeout)
	assert.Equal(t, "tickfetch-ci", loaded.UserAgent)
	assert.Equal(t, "./probes.db", loaded.Archive)
}
