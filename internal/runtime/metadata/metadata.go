package metadata

import (
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Metadata holds the headers carried alongside a published log record.
// Methods never modify the receiver.
type Metadata map[string]string

// New builds Metadata from alternating key/value pairs. Empty values are
// skipped, as is a trailing key without a value.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			md[pairs[i]] = pairs[i+1]
		}
	}
	return md
}

// With returns a copy of m with key set. An empty value leaves m as is.
func (m Metadata) With(key, value string) Metadata {
	if value == "" {
		return m
	}
	out := make(Metadata, len(m)+1)
	maps.Copy(out, m)
	out[key] = value
	return out
}

// Get returns the value stored under key, or fallback when it is absent or
// empty.
func (m Metadata) Get(key, fallback string) string {
	if v := m[key]; v != "" {
		return v
	}
	return fallback
}

// Watermill copies m into a Watermill message header map.
func (m Metadata) Watermill() message.Metadata {
	out := make(message.Metadata, len(m))
	maps.Copy(out, m)
	return out
}

// FromWatermill copies the headers of a consumed message.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	maps.Copy(out, md)
	return out
}
