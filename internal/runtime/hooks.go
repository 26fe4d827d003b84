package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/logpipe/internal/runtime/logging"
	"github.com/drblury/logpipe/internal/runtime/records"
)

// ConsumeContext describes one consumed message to hooks.
type ConsumeContext struct {
	// Handler is the name of the queue handler.
	Handler string
	// Queue is the queue the message was received from.
	Queue       string
	MessageUUID string
	Metadata    message.Metadata
	Context     context.Context
	StartedAt   time.Time
	// Duration covers decoding and the insert.
	Duration time.Duration
}

// ConsumerHooks are callbacks for the two terminal outcomes of a consumed
// message. Nil hooks are skipped.
type ConsumerHooks struct {
	// OnPersisted runs after the record is inserted and before the message
	// is acknowledged.
	OnPersisted func(ctx ConsumeContext, rec records.Record)

	// OnRejected runs after the local diagnostic for a rejected message.
	OnRejected func(ctx ConsumeContext, err *RejectedMessageError)
}

// Merge returns hooks calling h first and then other.
func (h ConsumerHooks) Merge(other ConsumerHooks) ConsumerHooks {
	return ConsumerHooks{
		OnPersisted: chainPersisted(h.OnPersisted, other.OnPersisted),
		OnRejected:  chainRejected(h.OnRejected, other.OnRejected),
	}
}

func chainPersisted(a, b func(ConsumeContext, records.Record)) func(ConsumeContext, records.Record) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx ConsumeContext, rec records.Record) {
		a(ctx, rec)
		b(ctx, rec)
	}
}

func chainRejected(a, b func(ConsumeContext, *RejectedMessageError)) func(ConsumeContext, *RejectedMessageError) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx ConsumeContext, err *RejectedMessageError) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h ConsumerHooks) persisted(ctx ConsumeContext, rec records.Record) {
	if h.OnPersisted != nil {
		h.OnPersisted(ctx, rec)
	}
}

func (h ConsumerHooks) rejected(ctx ConsumeContext, err *RejectedMessageError) {
	if h.OnRejected != nil {
		h.OnRejected(ctx, err)
	}
}

// LoggingHooks returns hooks that log both outcomes.
func LoggingHooks(logger loggingpkg.ServiceLogger) ConsumerHooks {
	return ConsumerHooks{
		OnPersisted: func(ctx ConsumeContext, rec records.Record) {
			logger.Debug("Record persisted", loggingpkg.LogFields{
				"handler":      ctx.Handler,
				"queue":        ctx.Queue,
				"message_uuid": ctx.MessageUUID,
				"record_id":    rec.Header().ID,
				"level":        rec.Level().String(),
				"duration_ms":  ctx.Duration.Milliseconds(),
			})
		},
		OnRejected: func(ctx ConsumeContext, err *RejectedMessageError) {
			logger.Error("Message rejected", err, loggingpkg.LogFields{
				"handler":      ctx.Handler,
				"queue":        ctx.Queue,
				"message_uuid": ctx.MessageUUID,
				"reason":       string(err.Reason),
			})
		},
	}
}

// AlertingHooks calls alert for every rejected message.
func AlertingHooks(alert func(ctx ConsumeContext, err *RejectedMessageError)) ConsumerHooks {
	return ConsumerHooks{OnRejected: alert}
}
