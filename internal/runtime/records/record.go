package records

import (
	"time"

	"github.com/drblury/logpipe/internal/runtime/ids"
)

// Length bounds, counted in characters.
const (
	MaxServiceName = 100
	MaxSummary     = 1000
	MaxText        = 4000
)

// Meta is the header shared by every record variant.
type Meta struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	ServiceName string    `json:"serviceName"`
}

// NewMeta stamps a fresh identifier and the current UTC time.
func NewMeta(serviceName string) Meta {
	now := time.Now().UTC()
	return Meta{
		ID:          ids.NewRecordIDAt(now),
		CreatedAt:   now,
		ServiceName: serviceName,
	}
}

// Record is implemented by the four variants and by Fallback. The level is a
// property of the concrete type and therefore cannot change once a record
// exists.
type Record interface {
	Level() Level
	Header() Meta
	rules() []rule
}

// Primary is a record produced at a boundary point. Only primaries may be
// turned into a Fallback, which caps fallback nesting at one level.
type Primary interface {
	Record
	primary()
}

// Info records a call whose response reported success.
type Info struct {
	Meta
	Request  string `json:"request"`
	Response string `json:"response"`
}

// Warning records a call that completed but reported failure or an
// ambiguous outcome.
type Warning struct {
	Meta
	Request        string `json:"request"`
	WarningMessage string `json:"warningMessage"`
	Response       string `json:"response"`
}

// Exception records a call whose handler faulted.
type Exception struct {
	Meta
	Request          string `json:"request"`
	ExceptionMessage string `json:"exceptionMessage"`
	StackTrace       string `json:"stackTrace"`
}

// Failed records something the pipeline itself could not handle.
type Failed struct {
	Meta
	OriginalMessage string `json:"originalMessage"`
	FailedMessage   string `json:"failedMessage"`
	StackTrace      string `json:"stackTrace,omitempty"`
}

func NewInfo(serviceName, request, response string) Info {
	return Info{Meta: NewMeta(serviceName), Request: request, Response: response}
}

func NewWarning(serviceName, request, message, response string) Warning {
	return Warning{Meta: NewMeta(serviceName), Request: request, WarningMessage: message, Response: response}
}

func NewException(serviceName, request, message, stack string) Exception {
	return Exception{Meta: NewMeta(serviceName), Request: request, ExceptionMessage: message, StackTrace: stack}
}

func NewFailed(serviceName, original, message, stack string) Failed {
	return Failed{Meta: NewMeta(serviceName), OriginalMessage: original, FailedMessage: message, StackTrace: stack}
}

func (Info) Level() Level      { return LevelInfo }
func (Warning) Level() Level   { return LevelWarning }
func (Exception) Level() Level { return LevelException }
func (Failed) Level() Level    { return LevelFailed }

func (r Info) Header() Meta      { return r.Meta }
func (r Warning) Header() Meta   { return r.Meta }
func (r Exception) Header() Meta { return r.Meta }
func (r Failed) Header() Meta    { return r.Meta }

func (Info) primary()      {}
func (Warning) primary()   {}
func (Exception) primary() {}
func (Failed) primary()    {}

func (r Info) rules() []rule {
	return append(r.Meta.rules(),
		rule{field: "request", value: r.Request, max: MaxSummary, required: true},
	)
}

func (r Warning) rules() []rule {
	return append(r.Meta.rules(),
		rule{field: "request", value: r.Request, max: MaxSummary, required: true},
		rule{field: "warningMessage", value: r.WarningMessage, max: MaxSummary, required: true},
		rule{field: "response", value: r.Response, max: MaxText},
	)
}

func (r Exception) rules() []rule {
	return append(r.Meta.rules(),
		rule{field: "request", value: r.Request, max: MaxSummary, required: true},
		rule{field: "exceptionMessage", value: r.ExceptionMessage, max: MaxSummary, required: true},
		rule{field: "stackTrace", value: r.StackTrace, max: MaxText},
	)
}

func (r Failed) rules() []rule {
	return append(r.Meta.rules(),
		rule{field: "originalMessage", value: r.OriginalMessage, max: MaxText, required: true},
		rule{field: "failedMessage", value: r.FailedMessage, max: MaxSummary, required: true},
		rule{field: "stackTrace", value: r.StackTrace, max: MaxText},
	)
}

func (m Meta) rules() []rule {
	return []rule{
		{field: "id", value: m.ID, required: true},
		{field: "serviceName", value: m.ServiceName, max: MaxServiceName, required: true},
		{field: "createdAt", missing: m.CreatedAt.IsZero()},
	}
}
