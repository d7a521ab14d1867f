package logging

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/planify/internal/config"
)

const (
	redactedValue   = "[REDACTED]"
	redactedPattern = "[REDACTED:pattern]"
	maxPatternLen   = 200
)

func redactedLen(n int) string { return "[REDACTED:" + strconv.Itoa(n) + "]" }

// Secret logs a configured credential as {set, value: "[REDACTED:<len>]"}.
func Secret(key string, val config.Secret) zap.Field {
	return zap.Object(key, zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddBool("set", val.IsSet())
		enc.AddString("value", redactedLen(len(val.Value())))
		return nil
	}))
}

// RedactedString logs only the length of val.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, redactedLen(len(val)))
}

// redactor decides what to hide. Keys match case-insensitively, either
// whole or as the last segment after '.' or '_' ("openai.api_key",
// "x_token").
type redactor struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	r := &redactor{keys: make(map[string]struct{}, len(cfg.Fields))}
	for _, f := range cfg.Fields {
		r.keys[strings.ToLower(f)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		if len(p) > maxPatternLen {
			return nil, fmt.Errorf("redaction pattern longer than %d characters: %.40q", maxPatternLen, p)
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *redactor) sensitiveKey(key string) bool {
	key = strings.ToLower(key)
	if _, ok := r.keys[key]; ok {
		return true
	}
	for k := range r.keys {
		if strings.HasSuffix(key, "."+k) || strings.HasSuffix(key, "_"+k) {
			return true
		}
	}
	return false
}

func (r *redactor) leaks(s string) bool {
	for _, re := range r.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// scrubMessage replaces each pattern match in msg, leaving the rest
// readable.
func (r *redactor) scrubMessage(msg string) string {
	for _, re := range r.patterns {
		msg = re.ReplaceAllLiteralString(msg, redactedValue)
	}
	return msg
}

func (r *redactor) field(f zapcore.Field) zapcore.Field {
	switch {
	case r.sensitiveKey(f.Key):
		return zap.String(f.Key, redactedValue)
	case f.Type == zapcore.StringType && r.leaks(f.String):
		return zap.String(f.Key, redactedPattern)
	}
	return f
}

// RedactingEncoder hides sensitive values before the wrapped encoder sees
// them. Fields added through With go through the Add* methods; fields
// passed with an entry go through EncodeEntry.
type RedactingEncoder struct {
	zapcore.Encoder
	r *redactor // nil when redaction is disabled
}

func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) (*RedactingEncoder, error) {
	if !cfg.Enabled {
		return &RedactingEncoder{Encoder: base}, nil
	}
	r, err := newRedactor(cfg)
	if err != nil {
		return nil, err
	}
	return &RedactingEncoder{Encoder: base, r: r}, nil
}

func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{Encoder: e.Encoder.Clone(), r: e.r}
}

func (e *RedactingEncoder) AddString(key, val string) {
	if e.r != nil {
		val = e.r.field(zap.String(key, val)).String
	}
	e.Encoder.AddString(key, val)
}

func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.r != nil && e.r.sensitiveKey(key) {
		val = []byte(redactedValue)
	}
	e.Encoder.AddByteString(key, val)
}

func (e *RedactingEncoder) AddReflected(key string, val any) error {
	if e.r != nil && e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.r != nil && e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, redactedValue)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if e.r == nil {
		return e.Encoder.EncodeEntry(ent, fields)
	}
	ent.Message = e.r.scrubMessage(ent.Message)
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = e.r.field(f)
	}
	return e.Encoder.EncodeEntry(ent, out)
}
