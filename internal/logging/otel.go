package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// otelScope names the instrumentation scope of bridged log records.
const otelScope = "github.com/fyrsmithlabs/planify"

// WithOTEL returns a logger that also emits every entry to lp.
// A nil provider returns l unchanged.
func (l *Logger) WithOTEL(lp log.LoggerProvider) *Logger {
	if lp == nil {
		return l
	}
	otelCore := otelzap.NewCore(otelScope, otelzap.WithLoggerProvider(lp))
	return &Logger{
		zap: l.zap.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, otelCore)
		})),
		config: l.config,
	}
}
