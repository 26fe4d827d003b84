// Package classify maps a captured HTTP exchange onto exactly one log record.
package classify

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/drblury/logpipe/internal/runtime/jsoncodec"
	"github.com/drblury/logpipe/internal/runtime/records"
)

// Messages attached to records produced by the fallback tiers.
const (
	MsgNoSuccessFlag      = "no success flag present"
	MsgNotStructured      = "response was not valid structured data"
	MsgFailureWithoutText = "response reported failure without a message"
	MsgClassifierFault    = "classification failed"
	EmptyBodyPlaceholder  = "(empty response body)"
)

const (
	successFalse = `"success":false`
	successTrue  = `"success":true`
	messageKey   = `"message":`
)

// Fault describes a handler that panicked before producing a response.
type Fault struct {
	Message string
	Stack   string
}

// FaultFromPanic converts a recovered panic value into a Fault.
func FaultFromPanic(v any, stack []byte) *Fault {
	var msg string
	switch val := v.(type) {
	case error:
		msg = val.Error()
	case string:
		msg = val
	default:
		msg = fmt.Sprintf("%v", val)
	}
	if strings.TrimSpace(msg) == "" {
		msg = "panic"
	}
	return &Fault{Message: msg, Stack: string(stack)}
}

// Outcome lets a handler state its result explicitly instead of relying on
// the response body heuristics.
type Outcome struct {
	Level   records.Level
	Message string
}

// Exchange is one handled call as seen by the interceptor.
type Exchange struct {
	ServiceName  string
	Method       string
	Path         string
	RequestBody  string
	StatusCode   int
	ResponseBody string

	// Fault is set when the handler panicked. It takes precedence over
	// everything else.
	Fault *Fault

	// Outcome, when set to a valid level, bypasses the body heuristics.
	Outcome *Outcome
}

var parserPool fastjson.ParserPool

// Classify returns the record describing ex. It never panics: a fault inside
// classification itself yields a Failed record.
func Classify(ex Exchange) (rec records.Primary) {
	service := serviceName(ex.ServiceName)
	defer func() {
		if r := recover(); r != nil {
			rec = records.NewFailed(
				service,
				records.Clip(nonEmpty(ex.ResponseBody), records.MaxText),
				MsgClassifierFault,
				records.Clip(fmt.Sprintf("%v\n%s", r, debug.Stack()), records.MaxText),
			)
		}
	}()

	request := RequestSummary(ex.Method, ex.Path, ex.RequestBody)

	if ex.Fault != nil {
		return records.NewException(
			service,
			request,
			records.Clip(ex.Fault.Message, records.MaxSummary),
			records.Clip(ex.Fault.Stack, records.MaxText),
		)
	}

	if ex.Outcome != nil && ex.Outcome.Level.Valid() {
		return fromOutcome(service, request, ex)
	}

	body := ex.ResponseBody
	switch {
	case strings.Contains(body, successFalse):
		msg, ok := ExtractMessage(body)
		if !ok {
			msg = MsgFailureWithoutText
		}
		return records.NewWarning(service, request, records.Clip(msg, records.MaxSummary), records.Clip(body, records.MaxText))
	case strings.Contains(body, successTrue):
		return records.NewInfo(service, request, body)
	}

	p := parserPool.Get()
	_, err := p.Parse(body)
	parserPool.Put(p)
	if err == nil {
		return records.NewWarning(service, request, MsgNoSuccessFlag, records.Clip(body, records.MaxText))
	}
	return records.NewFailed(
		service,
		records.Clip(nonEmpty(body), records.MaxText),
		MsgNotStructured,
		records.Clip(fmt.Sprintf("status %d: %v", ex.StatusCode, err), records.MaxText),
	)
}

func fromOutcome(service, request string, ex Exchange) records.Primary {
	msg := strings.TrimSpace(ex.Outcome.Message)
	switch ex.Outcome.Level {
	case records.LevelInfo:
		return records.NewInfo(service, request, ex.ResponseBody)
	case records.LevelWarning:
		if msg == "" {
			msg = MsgFailureWithoutText
		}
		return records.NewWarning(service, request, records.Clip(msg, records.MaxSummary), records.Clip(ex.ResponseBody, records.MaxText))
	case records.LevelException:
		if msg == "" {
			msg = fmt.Sprintf("handler reported an exception (status %d)", ex.StatusCode)
		}
		return records.NewException(service, request, records.Clip(msg, records.MaxSummary), "")
	default:
		if msg == "" {
			msg = "handler reported a failure"
		}
		return records.NewFailed(service, records.Clip(nonEmpty(ex.ResponseBody), records.MaxText), records.Clip(msg, records.MaxSummary), "")
	}
}

// RequestSummary renders "METHOD path body", clipped to the summary bound.
func RequestSummary(method, path, body string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{strings.ToUpper(strings.TrimSpace(method)), strings.TrimSpace(path), strings.TrimSpace(body)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	summary := strings.Join(parts, " ")
	if summary == "" {
		summary = "-"
	}
	return records.Clip(summary, records.MaxSummary)
}

// ExtractMessage finds the first "message": key in body and returns the
// quoted string that follows it. This is a substring scan, not a parse.
func ExtractMessage(body string) (string, bool) {
	idx := strings.Index(body, messageKey)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimLeft(body[idx+len(messageKey):], " \t\r\n")
	if !strings.HasPrefix(rest, `"`) {
		return "", false
	}

	end := -1
	for i := 1; i < len(rest); i++ {
		if rest[i] == '\\' {
			i++
			continue
		}
		if rest[i] == '"' {
			end = i
			break
		}
	}
	if end < 0 {
		return "", false
	}

	raw := rest[:end+1]
	var msg string
	if err := jsoncodec.Unmarshal([]byte(raw), &msg); err != nil {
		msg = raw[1 : len(raw)-1]
	}
	if strings.TrimSpace(msg) == "" {
		return "", false
	}
	return msg, true
}

func serviceName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return records.UnknownService
	}
	return records.Clip(name, records.MaxServiceName)
}

func nonEmpty(body string) string {
	if strings.TrimSpace(body) == "" {
		return EmptyBodyPlaceholder
	}
	return body
}
