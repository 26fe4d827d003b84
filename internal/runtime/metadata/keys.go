package metadata

// Header keys attached to every published log record. They let the consumer
// and operators route or correlate a message without decoding its payload.
const (
	KeyRecordID      = "record_id"
	KeyLevel         = "level"
	KeyServiceName   = "service_name"
	KeyCorrelationID = "correlation_id"
	KeyTraceID       = "trace_id"

	// KeyRejectReason is set on messages forwarded to the dead-letter queue.
	KeyRejectReason = "reject_reason"
)
