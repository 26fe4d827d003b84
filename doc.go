// Package logpipe turns every HTTP call a service handles into exactly one
// structured log record, ships it over a message broker and persists it in a
// relational store. Nothing the pipeline does can change or delay the
// response beyond the time needed to publish, and no failure inside the
// pipeline reaches the caller.
//
// The producer side is an Interceptor wrapped around the service's handlers.
// It buffers the request and the response, classifies the exchange as Info,
// Warning, Exception or Failed, and hands the record to a Publisher. The
// Publisher routes the record to one of three queues by level. If that
// publish fails, the record is replaced by a Failed record that is sent once
// to the failed queue; if that fails too, the Sink writes a local
// diagnostic.
//
// The consumer side is a Service: a Watermill router with one handler per
// queue. Each handler decodes the payload, optionally restamps the receipt
// time, and inserts the record through the persistence services. Malformed,
// misrouted and invalid messages are rejected without requeue and can be
// forwarded to a dead-letter queue.
//
// # Transports
//
//   - rabbitmq: durable queues over AMQP, reject without requeue
//   - channel: in-memory Go channels for tests and local development
//
// # Persistence
//
// OpenStore accepts "sqlite" or "postgres". MigrateStore creates the three
// append-only tables InfoLogs, ExceptionAndWarningLogs and FailedLogs.
//
// # Middleware
//
// The default consumer chain adds correlation IDs, debug logging,
// OpenTelemetry tracing, optional Prometheus metrics, optional dead-letter
// forwarding and panic recovery. It has no retry stage. Extra middleware
// goes in ServiceDependencies.Middlewares.
//
// # Hooks
//
// ConsumerHooks run after a record is persisted and after a message is
// rejected. LoggingHooks and AlertingHooks cover the common cases.
package logpipe
