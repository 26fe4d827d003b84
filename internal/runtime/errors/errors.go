package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired    = sterrors.New("logpipe: consumer service is required")
	ErrPublisherRequired  = sterrors.New("logpipe: publisher is required")
	ErrSubscriberRequired = sterrors.New("logpipe: subscriber is required")
	ErrTopicRequired      = sterrors.New("logpipe: topic is required")
	ErrConfigRequired     = sterrors.New("logpipe: configuration is required")
	ErrLoggerRequired     = sterrors.New("logpipe: logger is required")
	ErrRecordRequired     = sterrors.New("logpipe: record is required")
	ErrStoreRequired      = sterrors.New("logpipe: persistence service is required")
	ErrBrokerClosed       = sterrors.New("logpipe: broker is closed")
	ErrUnknownTransport   = sterrors.New("logpipe: unknown transport")
	ErrServiceClosed      = sterrors.New("logpipe: consumer service is closed")
	ErrMessageTooLarge    = sterrors.New("logpipe: message exceeds the transport size limit")
)

// ConfigValidationError reports a configuration that cannot be used to start
// a producer or a consumer.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("logpipe: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
