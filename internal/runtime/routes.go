package runtime

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/logpipe/internal/runtime/logging"
	metadatapkg "github.com/drblury/logpipe/internal/runtime/metadata"
	"github.com/drblury/logpipe/internal/runtime/records"
	storepkg "github.com/drblury/logpipe/internal/runtime/store"
)

// QueueRoute binds a queue to the levels it carries.
type QueueRoute struct {
	Name    string
	Queue   string
	Accepts []records.Level
}

func (r QueueRoute) accepts(lvl records.Level) bool {
	for _, a := range r.Accepts {
		if a == lvl {
			return true
		}
	}
	return false
}

func (s *Service) queueRoutes() []QueueRoute {
	return []QueueRoute{
		{Name: "message-consumer", Queue: s.Conf.MessageQueue, Accepts: []records.Level{records.LevelInfo}},
		{Name: "exception-consumer", Queue: s.Conf.ExceptionQueue, Accepts: []records.Level{records.LevelWarning, records.LevelException}},
		{Name: "failed-consumer", Queue: s.Conf.FailedQueue, Accepts: []records.Level{records.LevelFailed}},
	}
}

func (s *Service) registerQueue(route QueueRoute) error {
	if route.Queue == "" {
		return fmt.Errorf("queue for %s is not configured", route.Name)
	}

	stats := newQueueStats()
	accepts := make([]string, len(route.Accepts))
	for i, lvl := range route.Accepts {
		accepts[i] = lvl.String()
	}
	info := &QueueInfo{Name: route.Name, Queue: route.Queue, Accepts: accepts, Stats: stats}

	s.queuesMu.Lock()
	s.queues = append(s.queues, info)
	s.queuesMu.Unlock()

	s.router.AddNoPublisherHandler(
		route.Name,
		route.Queue,
		s.subscriber,
		wrapHandlerWithStats(s.consume(route, stats), stats),
	)
	return nil
}

// consume handles one message: decode, restamp, persist. A nil return acks
// the message; a returned error nacks it, which the broker treats as reject
// without requeue.
func (s *Service) consume(route QueueRoute, stats *QueueStats) message.NoPublishHandlerFunc {
	return func(msg *message.Message) (err error) {
		cc := ConsumeContext{
			Handler:     route.Name,
			Queue:       route.Queue,
			MessageUUID: msg.UUID,
			Metadata:    msg.Metadata,
			Context:     msg.Context(),
			StartedAt:   time.Now(),
		}
		defer func() {
			if v := recover(); v != nil {
				err = s.reject(cc, stats, msg, fmt.Errorf("panic while consuming: %v\n%s", v, debug.Stack()))
			}
		}()

		rec, err := decodeForRoute(route, msg.Payload)
		if err != nil {
			return s.reject(cc, stats, msg, err)
		}
		if s.receiptLevels[rec.Level()] {
			rec = records.WithCreatedAt(rec, s.now().UTC())
		}

		ctx := context.WithoutCancel(msg.Context())
		if s.Conf.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.Conf.ShutdownTimeout)
			defer cancel()
		}

		start := time.Now()
		perr := s.store.Persist(ctx, rec)
		cc.Duration = time.Since(cc.StartedAt)
		switch {
		case perr == nil:
			stats.persisted()
			s.metrics.recordPersisted(route.Queue, rec.Level().String(), time.Since(start))
			s.hooks.persisted(cc, rec)
			return nil
		case errors.Is(perr, storepkg.ErrDuplicateID):
			stats.duplicate()
			s.Logger.Info("Record already persisted, acknowledging redelivery", loggingpkg.LogFields{
				"queue":     route.Queue,
				"record_id": rec.Header().ID,
			})
			return nil
		default:
			return s.reject(cc, stats, msg, perr)
		}
	}
}

func decodeForRoute(route QueueRoute, payload []byte) (records.Record, error) {
	lvl, err := records.PeekLevel(payload)
	if err != nil {
		return nil, err
	}
	if !route.accepts(lvl) {
		return nil, fmt.Errorf("%w: %s on %s", ErrLevelMismatch, lvl, route.Queue)
	}
	rec, err := records.Decode(payload)
	if err != nil {
		return nil, err
	}
	if rec.Header().CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: %s record %s", records.ErrMissingCreatedAt, lvl, rec.Header().ID)
	}
	return rec, nil
}

// reject logs the message locally and decides how it leaves the queue.
// Transports whose nack redelivers get an ack instead, unless a dead-letter
// queue is configured to take the message.
func (s *Service) reject(cc ConsumeContext, stats *QueueStats, msg *message.Message, cause error) error {
	rejected := &RejectedMessageError{
		Queue:   cc.Queue,
		Reason:  rejectReason(cause),
		Payload: msg.Payload,
		Err:     cause,
	}
	cc.Duration = time.Since(cc.StartedAt)
	msg.Metadata.Set(metadatapkg.KeyRejectReason, string(rejected.Reason))

	stats.rejected(rejected)
	s.sink.Poison(cc.Queue, msg.Payload, rejected)
	s.metrics.recordRejected(cc.Queue, rejected.Reason)
	s.hooks.rejected(cc, rejected)

	if s.Conf.DeadLetterQueue == "" && s.broker.Capabilities().RejectRequeues() {
		return nil
	}
	return rejected
}
