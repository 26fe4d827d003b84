// Package sink is the last-resort diagnostic path for records and messages
// the pipeline could not deliver. It never retries against the broker.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	loggingpkg "github.com/drblury/logpipe/internal/runtime/logging"
	"github.com/drblury/logpipe/internal/runtime/records"
)

const (
	// payloadPreview caps how much of a rejected payload is logged.
	payloadPreview = 1000

	defaultWriteTimeout = 5 * time.Second
)

// FailedWriter stores a Failed record directly, bypassing the broker.
// store.FailedService satisfies it.
type FailedWriter interface {
	Insert(ctx context.Context, rec records.Failed) error
}

// Sink writes local diagnostics. The zero value is not usable; build one
// with New.
type Sink struct {
	logger       loggingpkg.ServiceLogger
	failed       FailedWriter
	writeTimeout time.Duration

	drops   atomic.Uint64
	poisons atomic.Uint64
}

// Option customises a Sink.
type Option func(*Sink)

// WithFailedWriter enables best-effort direct writes of dropped fallbacks.
func WithFailedWriter(w FailedWriter) Option {
	return func(s *Sink) { s.failed = w }
}

// WithWriteTimeout bounds each direct write. Non-positive values keep the
// default.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// New returns a Sink logging to logger, or to stderr when logger is nil.
func New(logger loggingpkg.ServiceLogger, opts ...Option) *Sink {
	if logger == nil {
		logger = Stderr()
	}
	s := &Sink{logger: logger, writeTimeout: defaultWriteTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stderr is the default diagnostic logger.
func Stderr() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Drop records that fb could not be published either. It logs one line and,
// when a FailedWriter is configured, attempts a single direct insert.
func (s *Sink) Drop(ctx context.Context, fb records.Fallback, err error) {
	defer s.guard("drop")
	s.drops.Add(1)

	failed := fb.Failed()
	s.logger.Error("log record dropped after fallback publish failed", err, loggingpkg.LogFields{
		"record_id":        failed.ID,
		"service_name":     failed.ServiceName,
		"failed_message":   failed.FailedMessage,
		"original_message": records.Clip(failed.OriginalMessage, payloadPreview),
	})

	if s.failed == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()
	if werr := s.failed.Insert(writeCtx, failed); werr != nil {
		s.logger.Warn("direct write of dropped record failed", loggingpkg.LogFields{
			"record_id": failed.ID,
			"error":     werr.Error(),
		})
		return
	}
	s.logger.Info("dropped record written directly to store", loggingpkg.LogFields{
		"record_id": failed.ID,
	})
}

// Poison records a message the consumer rejected.
func (s *Sink) Poison(queue string, payload []byte, err error) {
	defer s.guard("poison")
	s.poisons.Add(1)

	s.logger.Warn("rejected message", loggingpkg.LogFields{
		"queue":   queue,
		"payload": records.Clip(string(payload), payloadPreview),
		"error":   errorText(err),
	})
}

// Drops reports how many records reached Drop.
func (s *Sink) Drops() uint64 { return s.drops.Load() }

// Poisons reports how many messages reached Poison.
func (s *Sink) Poisons() uint64 { return s.poisons.Load() }

// guard keeps a misbehaving logger or writer from escaping the sink.
func (s *Sink) guard(op string) {
	if r := recover(); r != nil {
		fmt.Fprintf(os.Stderr, "logpipe: sink %s panicked: %v\n", op, r)
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
