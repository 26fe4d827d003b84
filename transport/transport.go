// Package transport defines the broker abstraction shared by the log
// publisher and the queue consumer. Each implementation lives in its own
// sub-package and registers itself with the transport registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
// Close, when set, releases resources shared by both halves (for example the
// AMQP connection) and runs after the publisher and subscriber are closed.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Close      func() error
}

// Builder is the function signature for creating a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports.
type Config interface {
	// GetPubSubSystem returns the transport type name.
	GetPubSubSystem() string

	// GetBrokerURL returns the connection URI for network brokers.
	GetBrokerURL() string
}
