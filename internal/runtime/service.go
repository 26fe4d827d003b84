package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/logpipe/internal/runtime/config"
	errspkg "github.com/drblury/logpipe/internal/runtime/errors"
	loggingpkg "github.com/drblury/logpipe/internal/runtime/logging"
	"github.com/drblury/logpipe/internal/runtime/records"
	sinkpkg "github.com/drblury/logpipe/internal/runtime/sink"
	transportpkg "github.com/drblury/logpipe/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// RecordStore persists decoded records. store.Services satisfies it.
type RecordStore interface {
	Persist(ctx context.Context, rec records.Record) error
}

// PoisonSink receives a diagnostic for every rejected message.
type PoisonSink interface {
	Poison(queue string, payload []byte, err error)
}

// ServiceDependencies holds the collaborators of the queue consumer. Store
// is required; the rest have defaults.
type ServiceDependencies struct {
	Store RecordStore
	Sink  PoisonSink

	// Broker is a connection shared with the producer side. When nil the
	// service connects through TransportFactory and closes the broker when
	// it stops.
	Broker           *transportpkg.Broker
	TransportFactory transportpkg.Factory

	Hooks                     ConsumerHooks
	Metrics                   *PipelineMetrics
	MetricsRegisterer         prometheus.Registerer
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.

	// Now supplies the receipt time. Defaults to time.Now.
	Now func() time.Time
}

// Service is the queue consumer: a Watermill router with one handler per
// logical queue, each on its own subscription and processing serially.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	broker     *transportpkg.Broker
	ownsBroker bool
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	store         RecordStore
	sink          PoisonSink
	hooks         ConsumerHooks
	metrics       *PipelineMetrics
	registerer    prometheus.Registerer
	now           func() time.Time
	receiptLevels map[records.Level]bool

	queues   []*QueueInfo
	queuesMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
	servers       []*http.Server

	lifecycleMu sync.Mutex
	started     bool
	closed      bool
}

// NewService validates conf, connects to the broker and registers the three
// queue handlers. Call Start to begin consuming.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if deps.Store == nil {
		return nil, errspkg.ErrStoreRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	receipt, err := records.ParseLevels(conf.ReceiptTimestampLevels)
	if err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating queue consumer", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf.String(),
	})

	s := &Service{
		Conf:          conf,
		Logger:        log,
		store:         deps.Store,
		sink:          deps.Sink,
		hooks:         deps.Hooks,
		metrics:       deps.Metrics,
		registerer:    deps.MetricsRegisterer,
		now:           deps.Now,
		receiptLevels: make(map[records.Level]bool, len(receipt)),
	}
	for _, lvl := range receipt {
		s.receiptLevels[lvl] = true
	}
	if s.sink == nil {
		s.sink = sinkpkg.New(log)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}

	broker := deps.Broker
	if broker == nil {
		factory := deps.TransportFactory
		if factory == nil {
			factory = transportpkg.DefaultFactory()
		}
		broker, err = factory.Connect(ctx, conf, wmLogger)
		if err != nil {
			return nil, err
		}
		s.ownsBroker = true
	}
	s.broker = broker
	s.logBrokerCapabilities()
	s.publisher = broker.Publisher()
	s.subscriber = broker.Subscriber()

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: conf.ShutdownTimeout}, wmLogger)
	if err != nil {
		s.release()
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		s.release()
		return nil, err
	}
	for _, route := range s.queueRoutes() {
		if err := s.registerQueue(route); err != nil {
			s.release()
			return nil, err
		}
	}
	return s, nil
}

// Start runs the router until ctx is cancelled or Close is called. Messages
// already being persisted are allowed to finish.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	if s.closed {
		s.lifecycleMu.Unlock()
		return errspkg.ErrServiceClosed
	}
	s.started = true
	s.lifecycleMu.Unlock()

	s.StartWebUIServer()
	s.startHTTPServers()
	err := routerRun(s.router, ctx)
	s.stopHTTPServers()
	if rerr := s.release(); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return err
}

// Running is closed once every queue handler is subscribed.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Close stops the router and, when the service opened it, the broker. A
// service that was never started closes without waiting on the router.
func (s *Service) Close() error {
	s.lifecycleMu.Lock()
	s.closed = true
	started := s.started
	s.lifecycleMu.Unlock()

	if !started {
		return s.release()
	}
	err := s.router.Close()
	if rerr := s.release(); rerr != nil {
		err = errors.Join(err, rerr)
	}
	return err
}

// Queues lists the registered queue handlers.
func (s *Service) Queues() []*QueueInfo {
	s.queuesMu.RLock()
	defer s.queuesMu.RUnlock()
	return append([]*QueueInfo(nil), s.queues...)
}

// Metrics returns the pipeline metrics, or nil when none were supplied.
func (s *Service) Metrics() *PipelineMetrics { return s.metrics }

func (s *Service) logBrokerCapabilities() {
	caps := s.broker.Capabilities()
	fields := loggingpkg.LogFields(caps.Fields())
	fields["owns_broker"] = s.ownsBroker
	s.Logger.Info("Broker connected", fields)

	if s.Conf.DeadLetterQueue == "" && caps.DiscardsOnNack && !caps.SupportsNativeDLQ {
		s.Logger.Warn("Rejected messages will be discarded, no dead-letter queue is configured", loggingpkg.LogFields{
			"transport": caps.Name,
		})
	}
}

func (s *Service) release() error {
	if !s.ownsBroker || s.broker == nil {
		return nil
	}
	return s.broker.Close()
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on the HTTP server for port. Servers
// start with the router.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.servers = append(s.servers, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}(srv)
	}
}

func (s *Service) stopHTTPServers() {
	s.httpServersMu.Lock()
	servers := s.servers
	s.servers = nil
	s.httpServersMu.Unlock()

	for _, srv := range servers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx)
		cancel()
	}
}
