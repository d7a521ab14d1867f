package logging

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records entries in memory at every level, Trace included.
// Entries are kept as logged, before redaction, so AssertNoSecrets sees
// exactly what the caller passed in.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

func NewTestLogger() *TestLogger {
	core, logs := observer.New(TraceLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		logs:   logs,
	}
}

func (t *TestLogger) All() []observer.LoggedEntry { return t.logs.All() }

func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.logs.FilterMessage(msg)
}

func (t *TestLogger) FilterContains(substr string) *observer.ObservedLogs {
	return t.logs.FilterMessageSnippet(substr)
}

func (t *TestLogger) Reset() { t.logs.TakeAll() }

func (t *TestLogger) find(level zapcore.Level, snippet string) bool {
	return t.logs.FilterLevelExact(level).FilterMessageSnippet(snippet).Len() > 0
}

// AssertLogged fails tb unless an entry at level has a message containing
// snippet.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	if !t.find(level, snippet) {
		tb.Errorf("no %s entry containing %q; have:\n%s", levelName(level), snippet, t.dump())
	}
}

func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, snippet string) {
	tb.Helper()
	if t.find(level, snippet) {
		tb.Errorf("unexpected %s entry containing %q", levelName(level), snippet)
	}
}

// AssertField fails tb unless an entry with message msg carries key with
// the given value. Values are compared in their logged form, so 3 and "3"
// both match an int field of 3.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.logs.FilterMessage(msg).All() {
		if got, ok := e.ContextMap()[key]; ok && fmt.Sprint(got) == fmt.Sprint(want) {
			return
		}
	}
	tb.Errorf("no entry %q with %s=%v", msg, key, want)
}

// AssertNoSecrets fails tb if a message or string field matches one of the
// logger's redaction patterns, or a sensitive field name carries a value
// that was not passed through Secret or RedactedString.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	red := t.config.Redaction
	patterns := make([]*regexp.Regexp, 0, len(red.Patterns))
	for _, p := range red.Patterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	leaks := func(s string) bool {
		for _, re := range patterns {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}
	sensitive := func(key string) bool {
		key = strings.ToLower(key)
		for _, f := range red.Fields {
			if strings.Contains(key, f) {
				return true
			}
		}
		return false
	}

	for _, e := range t.logs.All() {
		if leaks(e.Message) {
			tb.Errorf("credential in message %q", e.Message)
		}
		for _, f := range e.Context {
			if f.Type != zapcore.StringType {
				continue
			}
			if leaks(f.String) {
				tb.Errorf("credential in field %s of %q", f.Key, e.Message)
			}
			if sensitive(f.Key) && f.String != "" && !strings.HasPrefix(f.String, redactedValue[:len(redactedValue)-1]) {
				tb.Errorf("field %s of %q is not redacted", f.Key, e.Message)
			}
		}
	}
}

func (t *TestLogger) dump() string {
	var b strings.Builder
	for _, e := range t.logs.All() {
		fmt.Fprintf(&b, "  %s %s %v\n", levelName(e.Level), e.Message, e.ContextMap())
	}
	return b.String()
}
