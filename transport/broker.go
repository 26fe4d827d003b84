package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/logpipe/internal/runtime/errors"
)

// Broker is the process-scoped broker connection. It is opened once at
// startup; the publish adapter and the queue consumer draw their publisher
// and subscriber from it, and Close releases everything in one place.
type Broker struct {
	caps       Capabilities
	publisher  message.Publisher
	subscriber message.Subscriber
	release    func() error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewBroker wraps an already built transport.
func NewBroker(t Transport, caps Capabilities) (*Broker, error) {
	if t.Publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if t.Subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	return &Broker{
		caps:       caps,
		publisher:  t.Publisher,
		subscriber: t.Subscriber,
		release:    t.Close,
	}, nil
}

// Connect builds the transport named by cfg from the registry and wraps it
// in a Broker.
func (r *Registry) Connect(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Broker, error) {
	t, err := r.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("transport: connect: %w", err)
	}
	b, err := NewBroker(t, r.GetCapabilities(cfg.GetPubSubSystem()))
	if err != nil {
		if t.Close != nil {
			_ = t.Close()
		}
		return nil, err
	}
	return b, nil
}

// Connect opens a Broker using the default registry.
func Connect(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Broker, error) {
	return DefaultRegistry.Connect(ctx, cfg, logger)
}

// Capabilities reports how the underlying transport acknowledges messages.
func (b *Broker) Capabilities() Capabilities { return b.caps }

// Publisher returns a publisher that fails with ErrBrokerClosed once the
// broker has been closed.
func (b *Broker) Publisher() message.Publisher { return brokerPublisher{b} }

// Subscriber returns a subscriber bound to the broker's lifecycle.
func (b *Broker) Subscriber() message.Subscriber { return brokerSubscriber{b} }

// Closed reports whether Close has been called.
func (b *Broker) Closed() bool { return b.closed.Load() }

// Close shuts down the publisher, the subscriber and the shared connection.
// It is safe to call more than once.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		var errs []error
		if err := b.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
		if b.release != nil {
			if err := b.release(); err != nil {
				errs = append(errs, fmt.Errorf("close connection: %w", err))
			}
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}

type brokerPublisher struct{ b *Broker }

func (p brokerPublisher) Publish(topic string, messages ...*message.Message) error {
	if p.b.closed.Load() {
		return errspkg.ErrBrokerClosed
	}
	for _, msg := range messages {
		if !p.b.caps.FitsMessage(len(msg.Payload)) {
			return fmt.Errorf("%w: message %s is %d bytes, %s accepts %d",
				errspkg.ErrMessageTooLarge, msg.UUID, len(msg.Payload), p.b.caps.Name, p.b.caps.MaxMessageSize)
		}
	}
	return p.b.publisher.Publish(topic, messages...)
}

// Close is a no-op; the broker owns the underlying publisher.
func (brokerPublisher) Close() error { return nil }

type brokerSubscriber struct{ b *Broker }

func (s brokerSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.b.closed.Load() {
		return nil, errspkg.ErrBrokerClosed
	}
	return s.b.subscriber.Subscribe(ctx, topic)
}

// Close is a no-op; the broker owns the underlying subscriber.
func (brokerSubscriber) Close() error { return nil }
