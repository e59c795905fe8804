// Package targets loads the YAML target lists consumed by the bench and
// watch commands.
package targets

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML duration strings like "5s" or "250ms". Plain
// integers are taken as nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value on line %d", value.Line)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Target is one endpoint to probe.
type Target struct {
	// Name identifies the target in output. Defaults to the URL.
	Name string `yaml:"name"`

	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`

	// Timeout overrides the client default for this target.
	Timeout Duration `yaml:"timeout"`

	// Extract is a gjson path printed from the response body.
	Extract string `yaml:"extract"`

	// Schema is a path to a JSON schema the response must satisfy.
	Schema string `yaml:"schema"`

	// Idempotent attests that a non-idempotent method is safe to retry.
	Idempotent bool `yaml:"idempotent"`
}

type file struct {
	Targets []Target `yaml:"targets"`
}

// Load reads and validates a target list.
func Load(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates raw YAML target-list content.
func Parse(data []byte) ([]Target, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse targets: %w", err)
	}
	if len(f.Targets) == 0 {
		return nil, fmt.Errorf("parse targets: no targets defined")
	}

	for i := range f.Targets {
		t := &f.Targets[i]
		if t.URL == "" {
			return nil, fmt.Errorf("parse targets: target %d has no url", i+1)
		}
		if t.Method == "" {
			t.Method = "GET"
		} else {
			t.Method = strings.ToUpper(t.Method)
		}
		if t.Name == "" {
			t.Name = t.URL
		}
	}
	return f.Targets, nil
}
