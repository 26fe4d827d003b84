package records

import (
	"fmt"
	"strings"
)

// UnknownService labels fallbacks whose original carried no service name.
const UnknownService = "unknown"

// Fallback is the Failed record emitted when a primary record could not be
// published. It is a Record, so it can be encoded and sent to the failed
// queue, but it is not a Primary: NewFallback cannot be applied to it.
type Fallback struct {
	failed Failed
}

// NewFallback describes original and the reason it could not be delivered.
// The original is embedded in its wire form when it encodes cleanly and in
// Go syntax otherwise. Every field is clipped so the fallback itself always
// passes Validate.
func NewFallback(original Primary, reason error) Fallback {
	payload, err := Encode(original)
	var originalText string
	if err == nil {
		originalText = string(payload)
	} else {
		originalText = fmt.Sprintf("%+v", original)
	}

	service := strings.TrimSpace(original.Header().ServiceName)
	if service == "" {
		service = UnknownService
	}

	msg := "publish failed"
	var stack string
	if reason != nil {
		msg += ": " + reason.Error()
		if detailed := fmt.Sprintf("%+v", reason); detailed != reason.Error() {
			stack = detailed
		}
	}

	return Fallback{failed: NewFailed(
		Clip(service, MaxServiceName),
		Clip(originalText, MaxText),
		Clip(msg, MaxSummary),
		Clip(stack, MaxText),
	)}
}

func (Fallback) Level() Level     { return LevelFailed }
func (f Fallback) Header() Meta   { return f.failed.Meta }
func (f Fallback) rules() []rule  { return f.failed.rules() }
func (f Fallback) Failed() Failed { return f.failed }
