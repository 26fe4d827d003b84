package transport

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/logpipe/internal/runtime/errors"
)

// aliases maps accepted config spellings onto registered names.
var aliases = map[string]string{
	"amqp":      "rabbitmq",
	"gochannel": "channel",
}

// Canonical normalises a transport name and resolves aliases.
func Canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[name]; ok {
		return alias
	}
	return name
}

type registration struct {
	build Builder
	caps  Capabilities
	// hasCaps distinguishes Register from RegisterWithCapabilities.
	hasCaps bool
}

// Registry maps transport names to their builders and acknowledgement
// capabilities. Names are stored in canonical form.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// DefaultRegistry is the process-wide registry the transport sub-packages
// register into from init.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds a builder without capabilities. Known capabilities of an
// earlier registration under the same name are kept.
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = Canonical(name)
	entry := r.entries[name]
	entry.build = builder
	r.entries[name] = entry
}

// RegisterWithCapabilities adds a builder together with how the transport
// treats acknowledgements.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[Canonical(name)] = registration{build: builder, caps: caps, hasCaps: true}
}

// GetCapabilities returns the registered capabilities, or a zero set
// carrying only the name when none are known.
func (r *Registry) GetCapabilities(name string) Capabilities {
	name = Canonical(name)
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok || !entry.hasCaps {
		return Capabilities{Name: name}
	}
	return entry.caps
}

// Build creates the transport named by cfg.GetPubSubSystem.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, errspkg.ErrConfigRequired
	}
	name := Canonical(cfg.GetPubSubSystem())

	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok || entry.build == nil {
		return Transport{}, fmt.Errorf("%w %q (registered: %s)", errspkg.ErrUnknownTransport, name, strings.Join(r.Names(), ", "))
	}
	return entry.build(ctx, cfg, logger)
}

// Names lists the registered transports in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[Canonical(name)]
	return ok
}

// Register adds a builder to DefaultRegistry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a builder and its capabilities to
// DefaultRegistry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a transport from DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
