package logpipe

import (
	runtimepkg "github.com/drblury/logpipe/internal/runtime"
	"github.com/drblury/logpipe/internal/runtime/classify"
	configpkg "github.com/drblury/logpipe/internal/runtime/config"
	errspkg "github.com/drblury/logpipe/internal/runtime/errors"
	idspkg "github.com/drblury/logpipe/internal/runtime/ids"
	jsoncodec "github.com/drblury/logpipe/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/logpipe/internal/runtime/logging"
	metadatapkg "github.com/drblury/logpipe/internal/runtime/metadata"
	"github.com/drblury/logpipe/internal/runtime/records"
	sinkpkg "github.com/drblury/logpipe/internal/runtime/sink"
	storepkg "github.com/drblury/logpipe/internal/runtime/store"
	transportpkg "github.com/drblury/logpipe/internal/runtime/transport"
	newtransport "github.com/drblury/logpipe/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	RecordStore         = runtimepkg.RecordStore
	PoisonSink          = runtimepkg.PoisonSink
	QueueRoute          = runtimepkg.QueueRoute
	Broker              = transportpkg.Broker
	Transport           = transportpkg.Transport
	TransportFactory    = transportpkg.Factory

	// Records
	Level           = records.Level
	Record          = records.Record
	Primary         = records.Primary
	Meta            = records.Meta
	Info            = records.Info
	Warning         = records.Warning
	Exception       = records.Exception
	Failed          = records.Failed
	Fallback        = records.Fallback
	ValidationError = records.ValidationError
	DecodeError     = records.DecodeError

	// Classification
	Exchange = classify.Exchange
	Outcome  = classify.Outcome
	Fault    = classify.Fault

	// Producer side
	Publisher             = runtimepkg.Publisher
	PublisherDependencies = runtimepkg.PublisherDependencies
	PublishOutcome        = runtimepkg.PublishOutcome
	PublishStatus         = runtimepkg.PublishStatus
	Producer              = runtimepkg.Producer
	Routes                = runtimepkg.Routes
	Interceptor           = runtimepkg.Interceptor
	InterceptorConfig     = runtimepkg.InterceptorConfig

	// Diagnostics
	Sink         = sinkpkg.Sink
	SinkOption   = sinkpkg.Option
	FailedWriter = sinkpkg.FailedWriter

	// Persistence
	Services         = storepkg.Services
	InfoService      = storepkg.InfoService
	AttentionService = storepkg.AttentionService
	FailedService    = storepkg.FailedService
	Query            = storepkg.Query

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	RejectedMessageError  = runtimepkg.RejectedMessageError
	RejectReason          = runtimepkg.RejectReason
	ConfigValidationError = errspkg.ConfigValidationError

	QueueInfo         = runtimepkg.QueueInfo
	QueueStats        = runtimepkg.QueueStats
	RejectedBreakdown = runtimepkg.RejectedBreakdown
	LatencyMetrics    = runtimepkg.LatencyMetrics

	// Consumer hooks
	ConsumeContext = runtimepkg.ConsumeContext
	ConsumerHooks  = runtimepkg.ConsumerHooks

	// Pipeline metrics
	PipelineMetrics = runtimepkg.PipelineMetrics
	QueueCounts     = runtimepkg.QueueCounts
	MetricsSnapshot = runtimepkg.MetricsSnapshot

	// Transport capabilities
	Capabilities = transportpkg.Capabilities

	TransportBuilder  = newtransport.Builder
	TransportConfig   = newtransport.Config
	TransportRegistry = newtransport.Registry
)

// Record levels.
const (
	LevelInfo      = records.LevelInfo
	LevelWarning   = records.LevelWarning
	LevelException = records.LevelException
	LevelFailed    = records.LevelFailed
)

// Publish outcomes.
const (
	StatusPublished = runtimepkg.StatusPublished
	StatusFellBack  = runtimepkg.StatusFellBack
	StatusDropped   = runtimepkg.StatusDropped
)

// Rejection reasons.
const (
	RejectPoison  = runtimepkg.RejectPoison
	RejectInvalid = runtimepkg.RejectInvalid
	RejectPersist = runtimepkg.RejectPersist
)

// HeaderCorrelationID is the inbound header carrying a correlation id.
const HeaderCorrelationID = runtimepkg.HeaderCorrelationID

// Metadata keys set on every published record.
const (
	MetadataKeyRecordID      = metadatapkg.KeyRecordID
	MetadataKeyLevel         = metadatapkg.KeyLevel
	MetadataKeyServiceName   = metadatapkg.KeyServiceName
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyTraceID       = metadatapkg.KeyTraceID
	MetadataKeyRejectReason  = metadatapkg.KeyRejectReason
)

var (
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewService   = runtimepkg.NewService
	NewPublisher = runtimepkg.NewPublisher

	NewInterceptor   = runtimepkg.NewInterceptor
	Intercept        = runtimepkg.Intercept
	SetAction        = runtimepkg.SetAction
	SetOutcome       = runtimepkg.SetOutcome
	WithCorrelation  = runtimepkg.WithCorrelationID
	CorrelationID    = runtimepkg.CorrelationID
	Classify         = classify.Classify
	RoutesFromConfig = runtimepkg.RoutesFromConfig

	NewInfo      = records.NewInfo
	NewWarning   = records.NewWarning
	NewException = records.NewException
	NewFailed    = records.NewFailed
	NewFallback  = records.NewFallback
	Validate     = records.Validate
	EncodeRecord = records.Encode
	DecodeRecord = records.Decode
	ParseLevel   = records.ParseLevel

	NewSink          = sinkpkg.New
	WithFailedWriter = sinkpkg.WithFailedWriter
	WithWriteTimeout = sinkpkg.WithWriteTimeout

	OpenStore        = storepkg.Open
	MigrateStore     = storepkg.Migrate
	CloseStore       = storepkg.Close
	NewStoreServices = storepkg.NewServices

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	DeadLetterMiddleware    = runtimepkg.DeadLetterMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	NewPipelineMetrics = runtimepkg.NewPipelineMetrics
	IsRejected         = runtimepkg.IsRejected

	GetCapabilities        = transportpkg.GetCapabilities
	DefaultTransports      = transportpkg.DefaultFactory
	StaticTransportFactory = transportpkg.StaticFactory

	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrPublisherRequired = errspkg.ErrPublisherRequired
	ErrTopicRequired     = errspkg.ErrTopicRequired
	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrRecordRequired    = errspkg.ErrRecordRequired
	ErrStoreRequired     = errspkg.ErrStoreRequired
	ErrBrokerClosed      = errspkg.ErrBrokerClosed
	ErrServiceClosed     = errspkg.ErrServiceClosed
	ErrMessageTooLarge   = errspkg.ErrMessageTooLarge
	ErrDuplicateID       = storepkg.ErrDuplicateID
	ErrNotFound          = storepkg.ErrNotFound
	ErrPublishTimeout    = runtimepkg.ErrPublishTimeout

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewLogrus            = loggingpkg.NewLogrus
	NewWatermillAdapter  = loggingpkg.NewWatermillAdapter

	NewMetadata = metadatapkg.New

	NewRecordID = idspkg.NewRecordID
)

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
