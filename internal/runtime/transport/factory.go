package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/logpipe/internal/runtime/config"
	errspkg "github.com/drblury/logpipe/internal/runtime/errors"
	publictransport "github.com/drblury/logpipe/transport"

	// Register the built-in transports.
	_ "github.com/drblury/logpipe/transport/transports"
)

// Broker is the process-scoped broker connection shared by the publish
// adapter and the queue consumer.
type Broker = publictransport.Broker

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport = publictransport.Transport

// NewBroker wraps an already built transport in a Broker.
func NewBroker(t Transport, caps Capabilities) (*Broker, error) {
	return publictransport.NewBroker(t, caps)
}

// Factory abstracts how the runtime opens its broker connection.
type Factory interface {
	Connect(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (*Broker, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (*Broker, error)

func (f FactoryFunc) Connect(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (*Broker, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the factory backed by the transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Connect(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (*Broker, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	return publictransport.Connect(ctx, conf, logger)
}

// StaticFactory always hands out the same broker. A consumer built from it
// treats the broker as its own and closes it on shutdown.
func StaticFactory(b *Broker) Factory {
	return FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (*Broker, error) {
		if b == nil {
			return nil, fmt.Errorf("transport: static factory: %w", errspkg.ErrBrokerClosed)
		}
		return b, nil
	})
}
