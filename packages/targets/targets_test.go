package targets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	data := []byte(`
targets:
  - name: fx-ticks
    url: https://api.example.com/v1/ticks
    headers:
      Accept: application/json
    timeout: 5s
    extract: data.0.symbol
  - url: https://api.example.com/v1/orders
    method: post
    body: '{"symbol":"AUD/USD","qty":1}'
    idempotent: true
`)

	got, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "fx-ticks", got[0].Name)
	assert.Equal(t, "GET", got[0].Method, "method defaults to GET")
	assert.Equal(t, 5*time.Second, got[0].Timeout.Std())
	assert.Equal(t, "data.0.symbol", got[0].Extract)
	assert.Equal(t, "application/json", got[0].Headers["Accept"])

	assert.Equal(t, "https://api.example.com/v1/orders", got[1].Name, "name defaults to url")
	assert.Equal(t, "POST", got[1].Method, "method is upper-cased")
	assert.True(t, got[1].Idempotent)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty document", data: ""},
		{name: "no targets", data: "targets: []"},
		{name: "missing url", data: "targets:\n  - name: nameless\n"},
		{name: "malformed yaml", data: "targets: [['"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - url: http://localhost:9000/ok\n"), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "http://localhost:9000/ok", got[0].URL)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
