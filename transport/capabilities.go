package transport

// Capabilities describes how a transport behaves on acknowledgement. The
// consumer relies on these flags to decide how a rejected message is
// finalised.
type Capabilities struct {
	// SupportsAck indicates the transport supports explicit message acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment.
	SupportsNack bool

	// DiscardsOnNack indicates a nacked message is rejected without being
	// redelivered. When false the transport requeues on nack, so a consumer
	// that must not requeue has to acknowledge instead.
	DiscardsOnNack bool

	// SupportsNativeDLQ indicates the broker can dead-letter a rejected
	// message by itself once the queue is configured for it.
	SupportsNativeDLQ bool

	// SupportsOrdering indicates messages on one queue are delivered in order.
	SupportsOrdering bool

	// Durable indicates queued messages survive a broker restart.
	Durable bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the transport.
	Name string
}

// SupportsReliableDelivery returns true if the transport supports at-least-once
// delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// RejectRequeues reports whether nacking a message would hand it back to the
// queue instead of dropping it.
func (c Capabilities) RejectRequeues() bool {
	return c.SupportsNack && !c.DiscardsOnNack
}

// FitsMessage reports whether a payload of n bytes is within MaxMessageSize.
func (c Capabilities) FitsMessage(n int) bool {
	return c.MaxMessageSize <= 0 || int64(n) <= c.MaxMessageSize
}

// Fields describes c as structured log fields.
func (c Capabilities) Fields() map[string]any {
	return map[string]any{
		"transport":        c.Name,
		"durable":          c.Durable,
		"ordering":         c.SupportsOrdering,
		"native_dlq":       c.SupportsNativeDLQ,
		"reject_requeues":  c.RejectRequeues(),
		"max_message_size": c.MaxMessageSize,
	}
}

// Predefined capability sets for the built-in transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsAck:      true,
		SupportsNack:     true,
		DiscardsOnNack:   false,
		SupportsOrdering: true,
	}

	// RabbitMQCapabilities for the RabbitMQ/AMQP transport, configured to
	// reject without requeue.
	RabbitMQCapabilities = Capabilities{
		Name:              "rabbitmq",
		SupportsAck:       true,
		SupportsNack:      true,
		DiscardsOnNack:    true,
		SupportsNativeDLQ: true,
		SupportsOrdering:  true,
		Durable:           true,
		MaxMessageSize:    134217728, // RabbitMQ default max_message_size (128MB)
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
