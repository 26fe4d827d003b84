package runtime

import (
	"errors"
	"fmt"

	"github.com/drblury/logpipe/internal/runtime/records"
	storepkg "github.com/drblury/logpipe/internal/runtime/store"
)

// ErrLevelMismatch reports a record whose level does not belong on the queue
// it arrived on.
var ErrLevelMismatch = errors.New("logpipe: record level not accepted on this queue")

// RejectReason tells why the consumer refused a message.
type RejectReason string

const (
	// RejectPoison covers payloads that cannot be interpreted: a missing or
	// unknown level, a level foreign to the queue, a strict decode failure or
	// a missing createdAt.
	RejectPoison RejectReason = "poison"
	// RejectInvalid covers records that decode but break a field constraint.
	RejectInvalid RejectReason = "invalid"
	// RejectPersist covers inserts the store refused or could not complete.
	RejectPersist RejectReason = "persist"
)

// RejectedMessageError is returned by a queue handler when a message is
// rejected without requeue.
type RejectedMessageError struct {
	Queue   string
	Reason  RejectReason
	Payload []byte
	Err     error
}

func (e *RejectedMessageError) Error() string {
	return fmt.Sprintf("rejected message on %s (%s): %v", e.Queue, e.Reason, e.Err)
}

func (e *RejectedMessageError) Unwrap() error { return e.Err }

// IsRejected reports whether err carries a RejectedMessageError.
func IsRejected(err error) bool {
	var rejected *RejectedMessageError
	return errors.As(err, &rejected)
}

func rejectReason(err error) RejectReason {
	var verr *records.ValidationError
	var derr *records.DecodeError
	switch {
	case errors.As(err, &derr),
		errors.Is(err, records.ErrMissingLevel),
		errors.Is(err, records.ErrUnknownLevel),
		errors.Is(err, records.ErrMalformed),
		errors.Is(err, records.ErrMissingCreatedAt),
		errors.Is(err, ErrLevelMismatch),
		errors.Is(err, storepkg.ErrWrongLevel):
		return RejectPoison
	case errors.As(err, &verr):
		return RejectInvalid
	default:
		return RejectPersist
	}
}
