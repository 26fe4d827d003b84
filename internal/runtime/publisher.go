package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/logpipe/internal/runtime/config"
	errspkg "github.com/drblury/logpipe/internal/runtime/errors"
	loggingpkg "github.com/drblury/logpipe/internal/runtime/logging"
	metadatapkg "github.com/drblury/logpipe/internal/runtime/metadata"
	"github.com/drblury/logpipe/internal/runtime/records"
	sinkpkg "github.com/drblury/logpipe/internal/runtime/sink"
)

// ErrPublishTimeout is returned when a broker publish exceeds the configured
// PublishTimeout.
var ErrPublishTimeout = errors.New("logpipe: publish timed out")

// maxStalledPublishes bounds the broker calls left running after their
// publish timed out. Past it a publish fails at once.
const maxStalledPublishes = 64

// PublishStatus summarises what happened to a record handed to Publish.
type PublishStatus string

const (
	// StatusPublished means the record reached its destination queue.
	StatusPublished PublishStatus = "published"
	// StatusFellBack means the record failed and a Failed record describing
	// it reached the failed queue instead.
	StatusFellBack PublishStatus = "fell_back"
	// StatusDropped means both publishes failed and only a local diagnostic
	// was written.
	StatusDropped PublishStatus = "dropped"
)

// PublishOutcome is the result of one Publish call. Attempts never exceeds
// two.
type PublishOutcome struct {
	Status   PublishStatus
	Attempts int
	Queue    string
	Err      error
}

// OK reports whether the original record was published.
func (o PublishOutcome) OK() bool { return o.Status == StatusPublished }

// Producer publishes classified records. The interceptor depends on it.
type Producer interface {
	Publish(ctx context.Context, rec records.Primary) PublishOutcome
}

// Dropper receives fallbacks that could not be published.
type Dropper interface {
	Drop(ctx context.Context, fb records.Fallback, err error)
}

// Routes maps record levels to queue names.
type Routes struct {
	Message   string
	Exception string
	Failed    string
}

// RoutesFromConfig reads the three queue names from conf.
func RoutesFromConfig(conf *configpkg.Config) Routes {
	return Routes{
		Message:   conf.MessageQueue,
		Exception: conf.ExceptionQueue,
		Failed:    conf.FailedQueue,
	}
}

// QueueFor returns the queue records of level lvl are published to.
func (r Routes) QueueFor(lvl records.Level) (string, bool) {
	var queue string
	switch lvl {
	case records.LevelInfo:
		queue = r.Message
	case records.LevelWarning, records.LevelException:
		queue = r.Exception
	case records.LevelFailed:
		queue = r.Failed
	}
	return queue, queue != ""
}

// PublisherDependencies holds the optional collaborators of a Publisher.
type PublisherDependencies struct {
	Logger  loggingpkg.ServiceLogger
	Sink    Dropper
	Metrics *PipelineMetrics
}

// Publisher is the publish adapter. It is safe for concurrent use and holds
// no lock while talking to the broker.
type Publisher struct {
	publisher message.Publisher
	routes    Routes
	timeout   time.Duration
	logger    loggingpkg.ServiceLogger
	sink      Dropper
	metrics   *PipelineMetrics

	stalled    atomic.Int64
	maxStalled int64
}

// NewPublisher builds a publish adapter on top of pub, which is usually the
// publisher of the process-scoped Broker.
func NewPublisher(pub message.Publisher, conf *configpkg.Config, deps PublisherDependencies) (*Publisher, error) {
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	routes := RoutesFromConfig(conf)
	if routes.Message == "" || routes.Exception == "" || routes.Failed == "" {
		return nil, errspkg.ErrTopicRequired
	}

	p := &Publisher{
		publisher:  pub,
		routes:     routes,
		timeout:    conf.PublishTimeout,
		logger:     deps.Logger,
		sink:       deps.Sink,
		metrics:    deps.Metrics,
		maxStalled: maxStalledPublishes,
	}
	if p.logger == nil {
		p.logger = sinkpkg.Stderr()
	}
	if p.sink == nil {
		p.sink = sinkpkg.New(p.logger)
	}
	return p, nil
}

// Publish sends rec to the queue matching its level. Failures never reach
// the caller as a panic or a fatal error: the record is replaced by a
// Fallback that is published once to the failed queue, and if that fails too
// the sink writes a local diagnostic.
func (p *Publisher) Publish(ctx context.Context, rec records.Primary) PublishOutcome {
	if ctx == nil {
		ctx = context.Background()
	}
	if rec == nil {
		p.logger.Error("nothing to publish", errspkg.ErrRecordRequired, nil)
		return PublishOutcome{Status: StatusDropped, Err: errspkg.ErrRecordRequired}
	}

	queue, err := p.send(ctx, rec)
	if err == nil {
		p.metrics.recordPublished(queue, rec.Level().String())
		return PublishOutcome{Status: StatusPublished, Attempts: 1, Queue: queue}
	}

	p.logger.Warn("log record publish failed, sending fallback", loggingpkg.LogFields{
		"record_id": rec.Header().ID,
		"level":     rec.Level().String(),
		"error":     err.Error(),
	})
	fb := records.NewFallback(rec, err)
	fbQueue, fbErr := p.send(ctx, fb)
	if fbErr == nil {
		p.metrics.recordFallback(rec.Level().String())
		return PublishOutcome{Status: StatusFellBack, Attempts: 2, Queue: fbQueue, Err: err}
	}

	p.metrics.recordDropped(rec.Level().String())
	p.sink.Drop(ctx, fb, fbErr)
	return PublishOutcome{Status: StatusDropped, Attempts: 2, Err: errors.Join(err, fbErr)}
}

// send is one publish attempt: validate, encode, route, publish.
func (p *Publisher) send(ctx context.Context, rec records.Record) (string, error) {
	if err := records.Validate(rec); err != nil {
		return "", err
	}
	payload, err := records.Encode(rec)
	if err != nil {
		return "", err
	}
	queue, ok := p.routes.QueueFor(rec.Level())
	if !ok {
		return "", fmt.Errorf("%w: no queue for level %s", errspkg.ErrTopicRequired, rec.Level())
	}

	hdr := rec.Header()
	msg := message.NewMessage(hdr.ID, payload)
	msg.Metadata = recordMetadata(ctx, rec).Watermill()
	msg.SetContext(ctx)

	if err := p.publish(queue, msg); err != nil {
		return queue, fmt.Errorf("publish to %s: %w", queue, err)
	}
	return queue, nil
}

// publish sends msg, giving up after p.timeout. Watermill publishers take no
// context, so a timed-out call keeps running until the broker returns; those
// calls are counted and capped at maxStalled.
func (p *Publisher) publish(queue string, msg *message.Message) error {
	if p.timeout <= 0 {
		return p.publisher.Publish(queue, msg)
	}
	if n := p.stalled.Load(); n >= p.maxStalled {
		return fmt.Errorf("%w: %d earlier publishes still stalled on the broker", ErrPublishTimeout, n)
	}

	const (
		running int32 = iota
		finished
		abandoned
	)
	var state atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- p.publisher.Publish(queue, msg)
		if !state.CompareAndSwap(running, finished) {
			p.stalled.Add(-1)
		}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		if !state.CompareAndSwap(running, abandoned) {
			return <-done
		}
		p.stalled.Add(1)
		return fmt.Errorf("%w after %s", ErrPublishTimeout, p.timeout)
	}
}

func recordMetadata(ctx context.Context, rec records.Record) metadatapkg.Metadata {
	hdr := rec.Header()
	md := metadatapkg.New(
		metadatapkg.KeyRecordID, hdr.ID,
		metadatapkg.KeyLevel, rec.Level().String(),
		metadatapkg.KeyServiceName, hdr.ServiceName,
		metadatapkg.KeyCorrelationID, CorrelationID(ctx),
	)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		md = md.With(metadatapkg.KeyTraceID, sc.TraceID().String())
	}
	return md
}
