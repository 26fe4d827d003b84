// Package channel is the in-memory transport used by tests and local runs.
// Queues live inside the process; nothing survives a restart, and a nack
// hands the message straight back to the subscriber.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/logpipe/transport"
)

const TransportName = "channel"

// OutputBuffer is the per-subscription delivery buffer.
const OutputBuffer = 64

// Factory creates the shared pub/sub. Tests replace it to observe the
// configuration Build passes in.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	ps := gochannel.NewGoChannel(cfg, logger)
	return ps, ps
}

func init() { Register() }

// Register adds the channel transport to transport.DefaultRegistry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, Capabilities())
}

// PubSubConfig keeps published records until a subscriber attaches, so the
// interceptor may publish before the consumer has subscribed.
func PubSubConfig() gochannel.Config {
	return gochannel.Config{
		Persistent:          true,
		OutputChannelBuffer: OutputBuffer,
	}
}

// Build ignores cfg; every call yields an independent set of queues.
func Build(_ context.Context, _ transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(PubSubConfig(), logger)
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}

func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
