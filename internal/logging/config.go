package logging

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Config controls how NewLogger builds its core.
type Config struct {
	Level      zapcore.Level
	Format     string // "console" or "json"
	Caller     CallerConfig
	Stacktrace StacktraceConfig
	Fields     map[string]string // added to every entry
	Redaction  RedactionConfig
	Sampling   SamplingConfig
}

type CallerConfig struct {
	Enabled bool
	Skip    int
}

// StacktraceConfig sets the lowest level that carries a stack trace.
// Zero disables stack traces.
type StacktraceConfig struct {
	Level zapcore.Level
}

// RedactionConfig lists field names whose values are always replaced and
// patterns that are replaced wherever they appear in a message or string
// field.
type RedactionConfig struct {
	Enabled  bool
	Fields   []string
	Patterns []string
}

// Credential shapes that agent backends use. Keys read from planify.yaml
// reach the logger only through Secret, but error bodies returned by a
// backend may echo them.
var defaultRedaction = RedactionConfig{
	Enabled: true,
	Fields: []string{
		"api_key", "authorization", "bearer", "credential",
		"password", "private_key", "secret", "token",
	},
	Patterns: []string{
		`(?i)bearer\s+\S+`,
		`(?i)api[_-]?key[=:]\s*\S+`,
		`sk-[A-Za-z0-9_\-]{20,}`,
	},
}

// NewDefaultConfig returns the configuration used by the CLI: console
// output at info with redaction on and sampling off.
func NewDefaultConfig() *Config {
	red := defaultRedaction
	red.Fields = append([]string(nil), defaultRedaction.Fields...)
	red.Patterns = append([]string(nil), defaultRedaction.Patterns...)

	return &Config{
		Level:      zapcore.InfoLevel,
		Format:     "console",
		Caller:     CallerConfig{Skip: 1},
		Stacktrace: StacktraceConfig{Level: zapcore.FatalLevel},
		Fields:     map[string]string{"service": "planify"},
		Redaction:  red,
		Sampling:   SamplingConfig{Tick: time.Second, Initial: 100, Thereafter: 100},
	}
}

// Validate reports every problem in c at once. Redaction patterns are
// compiled later by NewRedactingEncoder, which reports bad ones.
func (c *Config) Validate() error {
	var errs []error
	switch c.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("format must be console or json, got %q", c.Format))
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		errs = append(errs, fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip))
	}
	if c.Sampling.Enabled && (c.Sampling.Initial < 0 || c.Sampling.Thereafter < 0) {
		errs = append(errs, errors.New("sampling initial and thereafter must be >= 0"))
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			errs = append(errs, fmt.Errorf("static field %q=%q needs a key and a value", k, v))
		}
	}
	return errors.Join(errs...)
}
