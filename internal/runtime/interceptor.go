package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/logpipe/internal/runtime/classify"
	"github.com/drblury/logpipe/internal/runtime/ids"
	loggingpkg "github.com/drblury/logpipe/internal/runtime/logging"
	"github.com/drblury/logpipe/internal/runtime/records"
)

// HeaderCorrelationID is read from inbound requests and echoed into record
// metadata. A fresh id is generated when it is absent.
const HeaderCorrelationID = "X-Correlation-ID"

const tracerName = "github.com/drblury/logpipe"

// InterceptorConfig customises an Interceptor.
type InterceptorConfig struct {
	// ServiceName labels records when neither SetAction nor a route pattern
	// names the call.
	ServiceName string
	Logger      loggingpkg.ServiceLogger
}

// Interceptor wraps HTTP handlers so every call produces exactly one log
// record while the caller receives the handler's response unchanged.
type Interceptor struct {
	producer    Producer
	serviceName string
	logger      loggingpkg.ServiceLogger
	tracer      trace.Tracer
}

// NewInterceptor returns an Interceptor publishing through producer.
func NewInterceptor(producer Producer, cfg InterceptorConfig) *Interceptor {
	return &Interceptor{
		producer:    producer,
		serviceName: cfg.ServiceName,
		logger:      cfg.Logger,
		tracer:      otel.Tracer(tracerName),
	}
}

// Middleware adapts the interceptor to the func(http.Handler) http.Handler
// shape used by chi and most routers.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i.serve(w, r, next)
	})
}

// Intercept is shorthand for NewInterceptor(producer, cfg).Middleware.
func Intercept(producer Producer, cfg InterceptorConfig) func(http.Handler) http.Handler {
	return NewInterceptor(producer, cfg).Middleware
}

func (i *Interceptor) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx, span := i.tracer.Start(r.Context(), "logpipe.intercept", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	correlationID := r.Header.Get(HeaderCorrelationID)
	if correlationID == "" {
		correlationID = ids.NewRecordID()
	}
	ctx = WithCorrelationID(ctx, correlationID)
	ctx, state := withCallState(ctx)

	requestBody := bufferRequestBody(r)
	r = r.WithContext(ctx)
	buf := newBufferedResponse()

	var (
		fault     *classify.Fault
		panicking any
	)
	func() {
		defer func() {
			if v := recover(); v != nil {
				panicking = v
				fault = classify.FaultFromPanic(v, debug.Stack())
			}
		}()
		next.ServeHTTP(buf, r)
	}()

	// The captured response is replayed and a handler panic re-raised even
	// if recording below goes wrong.
	defer func() {
		if fault == nil || buf.wroteHeader {
			buf.flushTo(w)
		}
		if fault != nil {
			panic(panicking)
		}
	}()

	action, outcome := state.snapshot()
	ex := classify.Exchange{
		ServiceName:  i.resolveServiceName(r, action),
		Method:       r.Method,
		Path:         r.URL.Path,
		RequestBody:  requestBody,
		StatusCode:   buf.statusCode(),
		ResponseBody: buf.body.String(),
		Fault:        fault,
		Outcome:      outcome,
	}
	i.record(ctx, span, ex)
}

// record classifies and publishes. Nothing it does may reach the caller.
func (i *Interceptor) record(ctx context.Context, span trace.Span, ex classify.Exchange) {
	defer func() {
		if v := recover(); v != nil && i.logger != nil {
			i.logger.Error("log record could not be produced", fmt.Errorf("%v", v), loggingpkg.LogFields{
				"service_name": ex.ServiceName,
			})
		}
	}()

	rec := classify.Classify(ex)
	span.SetAttributes(
		attribute.String("logpipe.service_name", rec.Header().ServiceName),
		attribute.String("logpipe.level", rec.Level().String()),
		attribute.String("logpipe.record_id", rec.Header().ID),
	)
	if i.producer == nil {
		return
	}
	outcome := i.producer.Publish(context.WithoutCancel(ctx), rec)
	span.SetAttributes(
		attribute.String("logpipe.publish_status", string(outcome.Status)),
		attribute.Int("logpipe.publish_attempts", outcome.Attempts),
	)
	if outcome.Err != nil {
		span.RecordError(outcome.Err)
	}
	if outcome.Status == StatusDropped {
		span.SetStatus(codes.Error, "log record dropped")
	}
	if rec.Level() == records.LevelException {
		span.SetStatus(codes.Error, "handler panicked")
	}
}

// resolveServiceName prefers an explicit action name, then the matched
// route pattern, then the configured service name, then METHOD path.
func (i *Interceptor) resolveServiceName(r *http.Request, action string) string {
	if action != "" {
		return action
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return records.Clip(r.Method+" "+pattern, records.MaxServiceName)
		}
	}
	if i.serviceName != "" {
		return i.serviceName
	}
	return records.Clip(r.Method+" "+r.URL.Path, records.MaxServiceName)
}

// bufferRequestBody reads the whole body and puts an equivalent reader back
// so downstream handlers see it unchanged.
func bufferRequestBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), errReader{err}))
		return string(data)
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return string(data)
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// bufferedResponse captures what the downstream handler writes so it can be
// classified before being sent on.
type bufferedResponse struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	if !b.wroteHeader {
		return http.StatusOK
	}
	return b.status
}

// flushTo replays the captured response onto w.
func (b *bufferedResponse) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = v
	}
	w.WriteHeader(b.statusCode())
	if b.body.Len() > 0 {
		_, _ = w.Write(b.body.Bytes())
	}
}
