package logging

// LogFields carries structured key/value pairs attached to a log line.
type LogFields map[string]any

// ServiceLogger is the logging contract shared by the publisher, the
// consumer and the diagnostic sink. Warn is kept apart from Info so lost
// records can be flagged without being reported as pipeline faults.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

type level uint8

const (
	levelTrace level = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
)

// severityField tags warnings emitted through backends that have no warn
// level of their own.
const severityField = "severity"

func merged(base LogFields, extra LogFields) LogFields {
	switch {
	case len(extra) == 0:
		return base
	case len(base) == 0:
		return extra
	}
	out := make(LogFields, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
