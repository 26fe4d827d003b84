// Package transport wires the runtime to the broker implementations under
// github.com/drblury/logpipe/transport.
package transport

import (
	publictransport "github.com/drblury/logpipe/transport"
)

// Capabilities is an alias for the transport Capabilities.
type Capabilities = publictransport.Capabilities

// Predefined capability sets.
var (
	ChannelCapabilities  = publictransport.ChannelCapabilities
	RabbitMQCapabilities = publictransport.RabbitMQCapabilities
)

// GetCapabilities returns the capabilities for a transport by name.
func GetCapabilities(transportName string) Capabilities {
	return publictransport.GetCapabilities(transportName)
}
