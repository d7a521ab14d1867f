package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// TraceLevel sits one step below Debug. Raw agent prompts and replies are
// logged at this level only.
const TraceLevel = zapcore.DebugLevel - 1

var levelAliases = map[string]zapcore.Level{
	"trace":   TraceLevel,
	"warning": zapcore.WarnLevel,
}

// LevelFromString parses a level name as written in planify.yaml or
// PLANIFY_LOGGING_LEVEL. Matching ignores case and surrounding space.
func LevelFromString(s string) (zapcore.Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if l, ok := levelAliases[name]; ok {
		return l, nil
	}
	l, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown level %q (want trace, debug, info, warn or error)", s)
	}
	return l, nil
}

func levelName(l zapcore.Level) string {
	if l == TraceLevel {
		return "trace"
	}
	return l.String()
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(levelName(l))
}
