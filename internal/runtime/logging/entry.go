package logging

// EntryLogger is the self-referential form of EntryLoggerAdapter.
type EntryLogger interface {
	EntryLoggerAdapter[EntryLogger]
}

// EntryLoggerAdapter captures what NewEntryServiceLogger needs from an
// entry-style logger such as *logrus.Entry.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Warn(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

// NewEntryServiceLogger wraps an entry logger (for example a *logrus.Entry).
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if any(entry) == nil {
		panic("logpipe: entry logger cannot be nil")
	}
	return &entryServiceLogger[T]{entry: entry}
}

type entryServiceLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (e *entryServiceLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return &entryServiceLogger[T]{entry: withEntryFields(e.entry, fields)}
}

func (e *entryServiceLogger[T]) Trace(msg string, fields LogFields) {
	e.emit(levelTrace, msg, nil, fields)
}

func (e *entryServiceLogger[T]) Debug(msg string, fields LogFields) {
	e.emit(levelDebug, msg, nil, fields)
}

func (e *entryServiceLogger[T]) Info(msg string, fields LogFields) {
	e.emit(levelInfo, msg, nil, fields)
}

func (e *entryServiceLogger[T]) Warn(msg string, fields LogFields) {
	e.emit(levelWarn, msg, nil, fields)
}

func (e *entryServiceLogger[T]) Error(msg string, err error, fields LogFields) {
	e.emit(levelError, msg, err, fields)
}

func (e *entryServiceLogger[T]) emit(lvl level, msg string, err error, fields LogFields) {
	entry := withEntryFields(e.entry, fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	switch lvl {
	case levelTrace:
		entry.Trace(msg)
	case levelDebug:
		entry.Debug(msg)
	case levelInfo:
		entry.Info(msg)
	case levelWarn:
		entry.Warn(msg)
	default:
		entry.Error(msg)
	}
}

func withEntryFields[T EntryLoggerAdapter[T]](entry T, fields LogFields) T {
	if any(entry) == nil {
		return entry
	}
	for key, value := range fields {
		entry = entry.WithField(key, value)
	}
	return entry
}
