package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// coreWithLevel filters a core by a fixed minimum level.
type coreWithLevel struct {
	zapcore.Core

	level zapcore.Level
}

func (c *coreWithLevel) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l)
}

//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *coreWithLevel) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}

	return ce.AddCore(ent, c)
}

//nolint:ireturn,nolintlint // zapcore.Core is the interface zap expects.
func (c *coreWithLevel) With(fields []zapcore.Field) zapcore.Core {
	return &coreWithLevel{Core: c.Core.With(fields), level: c.level}
}

// WithLevel raises the minimum level of a logger derived from the global one.
// The MQTT client's internal logs use it so they stay quieter than the controller.
//
//nolint:ireturn,nolintlint // zap.Option is the interface zap expects.
func WithLevel(lvl zapcore.Level) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &coreWithLevel{Core: core, level: lvl}
	})
}
