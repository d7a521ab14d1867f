package logging

import (
	"time"

	"go.uber.org/zap/zapcore"
)

// SamplingConfig thins out repeated entries below Warn. A watcher that
// reloads context on every file save is the usual source. Warn and above
// always pass.
type SamplingConfig struct {
	Enabled    bool
	Tick       time.Duration // zero means one second
	Initial    int
	Thereafter int
}

func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	tick := cfg.Tick
	if tick <= 0 {
		tick = time.Second
	}

	loud := splitCore{Core: core, min: zapcore.WarnLevel, max: zapcore.InvalidLevel}
	quiet := splitCore{Core: core, min: TraceLevel, max: zapcore.WarnLevel}
	return zapcore.NewTee(loud, zapcore.NewSamplerWithOptions(quiet, tick, cfg.Initial, cfg.Thereafter))
}

// splitCore passes entries with min <= level < max to the wrapped core.
type splitCore struct {
	zapcore.Core
	min, max zapcore.Level
}

func (c splitCore) Enabled(l zapcore.Level) bool {
	return l >= c.min && l < c.max && c.Core.Enabled(l)
}

func (c splitCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c splitCore) With(fields []zapcore.Field) zapcore.Core {
	return splitCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
