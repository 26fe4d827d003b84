/*
Package runtime implements the producer and consumer halves of the log
pipeline on top of Watermill.

# Producer

  - interceptor.go: HTTP middleware that buffers the exchange, classifies it
    and publishes one record per call. The captured response is replayed
    unchanged; a handler panic is re-raised after its Exception record is
    published.
  - context.go: per-call state a handler can set through SetAction and
    SetOutcome, plus the correlation id.
  - publisher.go: level-to-queue routing, the single Failed fallback and the
    hand-off to the diagnostic sink.

# Consumer

  - service.go: the Service, its broker connection, router and HTTP servers.
  - routes.go: one handler per queue. A message is decoded, checked against
    the levels its queue carries, restamped when configured, and inserted.
    Duplicate ids are acknowledged; everything else that fails is rejected
    without requeue.
  - rejection.go: RejectedMessageError and the poison, invalid and persist
    reasons.
  - middleware.go: the default router middleware chain.
  - hooks.go: callbacks for persisted and rejected messages.

# Monitoring

  - metrics.go: PipelineMetrics, Prometheus counters shared by both halves.
  - stats.go: per-queue statistics with latency percentiles.
  - webui.go: /api/queues, a JSON view of the above.

# Sub-packages

  - classify/: maps an HTTP exchange onto one record
  - config/: envconfig-backed configuration with validation
  - errors/: sentinel errors
  - ids/: ULID record identifiers
  - jsoncodec/: JSON encoding
  - logging/: ServiceLogger and its slog, logrus and Watermill adapters
  - metadata/: message header keys
  - records/: the record taxonomy, validation and wire codec
  - sink/: last-resort diagnostics for dropped and rejected records
  - store/: gorm-backed persistence services
  - transport/: broker connection wiring
*/
package runtime
