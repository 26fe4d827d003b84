package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

var slogLevels = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogServiceLogger wraps a slog.Logger so it satisfies ServiceLogger.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("logpipe: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, slogLevels))
}

// NewWatermillServiceLogger wraps an existing Watermill LoggerAdapter.
// Watermill has no warn level, so Warn is emitted at info with a
// severity=warn field.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("logpipe: watermill logger cannot be nil")
	}
	return &watermillServiceLogger{inner: logger}
}

type watermillServiceLogger struct {
	inner watermill.LoggerAdapter
}

func (w *watermillServiceLogger) With(fields LogFields) ServiceLogger {
	return &watermillServiceLogger{inner: w.inner.With(watermill.LogFields(fields))}
}

func (w *watermillServiceLogger) Trace(msg string, fields LogFields) {
	w.emit(levelTrace, msg, nil, fields)
}

func (w *watermillServiceLogger) Debug(msg string, fields LogFields) {
	w.emit(levelDebug, msg, nil, fields)
}

func (w *watermillServiceLogger) Info(msg string, fields LogFields) {
	w.emit(levelInfo, msg, nil, fields)
}

func (w *watermillServiceLogger) Warn(msg string, fields LogFields) {
	w.emit(levelWarn, msg, nil, fields)
}

func (w *watermillServiceLogger) Error(msg string, err error, fields LogFields) {
	w.emit(levelError, msg, err, fields)
}

func (w *watermillServiceLogger) emit(lvl level, msg string, err error, fields LogFields) {
	switch lvl {
	case levelTrace:
		w.inner.Trace(msg, toWatermill(fields))
	case levelDebug:
		w.inner.Debug(msg, toWatermill(fields))
	case levelInfo:
		w.inner.Info(msg, toWatermill(fields))
	case levelWarn:
		w.inner.Info(msg, toWatermill(merged(LogFields{severityField: "warn"}, fields)))
	default:
		w.inner.Error(msg, err, toWatermill(fields))
	}
}

// NewWatermillAdapter converts a ServiceLogger into a Watermill LoggerAdapter
// so the router and broker clients log through the same sink.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("logpipe: ServiceLogger cannot be nil")
	}
	return watermillAdapter{base: log}
}

type watermillAdapter struct {
	base ServiceLogger
}

func (a watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.base.Error(msg, err, fromWatermill(fields))
}

func (a watermillAdapter) Info(msg string, fields watermill.LogFields) {
	a.base.Info(msg, fromWatermill(fields))
}

func (a watermillAdapter) Debug(msg string, fields watermill.LogFields) {
	a.base.Debug(msg, fromWatermill(fields))
}

func (a watermillAdapter) Trace(msg string, fields watermill.LogFields) {
	a.base.Trace(msg, fromWatermill(fields))
}

func (a watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillAdapter{base: a.base.With(fromWatermill(fields))}
}

func toWatermill(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}

func fromWatermill(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return LogFields(fields)
}
