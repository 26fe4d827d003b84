package runtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/drblury/logpipe/internal/runtime/classify"
	"github.com/drblury/logpipe/internal/runtime/records"
)

type recordingProducer struct {
	mu      sync.Mutex
	recs    []records.Primary
	ctxs    []context.Context
	panics  bool
	outcome PublishOutcome
}

func (p *recordingProducer) Publish(ctx context.Context, rec records.Primary) PublishOutcome {
	p.mu.Lock()
	p.recs = append(p.recs, rec)
	p.ctxs = append(p.ctxs, ctx)
	p.mu.Unlock()
	if p.panics {
		panic("producer exploded")
	}
	if p.outcome.Status == "" {
		return PublishOutcome{Status: StatusPublished, Attempts: 1}
	}
	return p.outcome
}

func (p *recordingProducer) Records() []records.Primary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]records.Primary(nil), p.recs...)
}

func (p *recordingProducer) only(t *testing.T) records.Primary {
	t.Helper()
	recs := p.Records()
	if len(recs) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(recs))
	}
	return recs[0]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Book-Count", "3")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestInterceptorSuccessIsInfoWithActionName(t *testing.T) {
	producer := &recordingProducer{}
	handler := Intercept(producer, InterceptorConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetAction(r.Context(), "GetBooks")
		writeJSON(w, http.StatusOK, `{"success":true,"data":[]}`)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/books", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != `{"success":true,"data":[]}` {
		t.Fatalf("response changed: %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Book-Count") != "3" || rr.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("headers changed: %#v", rr.Header())
	}
	rec := producer.only(t)
	info, ok := rec.(records.Info)
	if !ok {
		t.Fatalf("expected Info, got %T", rec)
	}
	if info.ServiceName != "GetBooks" {
		t.Fatalf("expected action name, got %q", info.ServiceName)
	}
	if info.Response != `{"success":true,"data":[]}` {
		t.Fatalf("unexpected response text %q", info.Response)
	}
}

func TestInterceptorFailureFlagIsWarning(t *testing.T) {
	producer := &recordingProducer{}
	handler := Intercept(producer, InterceptorConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetAction(r.Context(), "GetBook")
		writeJSON(w, http.StatusNotFound, `{"success":false,"message":"Book not found"}`)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/books/42", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status changed: %d", rr.Code)
	}
	warn, ok := producer.only(t).(records.Warning)
	if !ok {
		t.Fatalf("expected Warning, got %T", producer.only(t))
	}
	if warn.WarningMessage != "Book not found" {
		t.Fatalf("unexpected warning message %q", warn.WarningMessage)
	}
}

func TestInterceptorRestoresRequestBody(t *testing.T) {
	producer := &recordingProducer{}
	handler := Intercept(producer, InterceptorConfig{ServiceName: "library"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusCreated, `{"success":true,"echo":`+string(body)+`}`)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/books", strings.NewReader(`{"title":"Dune"}`))
	handler.ServeHTTP(rr, req)

	if rr.Body.String() != `{"success":true,"echo":{"title":"Dune"}}` {
		t.Fatalf("downstream did not see the request body: %q", rr.Body.String())
	}
	info := producer.only(t).(records.Info)
	if info.Request != `POST /books {"title":"Dune"}` {
		t.Fatalf("unexpected request summary %q", info.Request)
	}
	if info.ServiceName != "library" {
		t.Fatalf("expected configured service name, got %q", info.ServiceName)
	}
}

func TestInterceptorPanicIsExceptionAndReraised(t *testing.T) {
	producer := &recordingProducer{}
	handler := Intercept(producer, InterceptorConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetAction(r.Context(), "DeleteBook")
		panic(errors.New("nil shelf"))
	}))

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/books/1", nil))
	}()

	if err, ok := recovered.(error); !ok || err.Error() != "nil shelf" {
		t.Fatalf("original panic must be re-raised, got %v", recovered)
	}
	exc, ok := producer.only(t).(records.Exception)
	if !ok {
		t.Fatalf("expected Exception, got %T", producer.only(t))
	}
	if exc.ExceptionMessage != "nil shelf" || exc.ServiceName != "DeleteBook" {
		t.Fatalf("unexpected exception record: %+v", exc)
	}
	if !strings.Contains(exc.StackTrace, "goroutine") {
		t.Fatalf("expected a stack trace, got %q", exc.StackTrace)
	}
}

func TestInterceptorPanicReachesFrameworkRecoverer(t *testing.T) {
	producer := &recordingProducer{}
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(Intercept(producer, InterceptorConfig{}))
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("framework recoverer should answer 500, got %d", rr.Code)
	}
	if _, ok := producer.only(t).(records.Exception); !ok {
		t.Fatalf("expected Exception record")
	}
}

func TestInterceptorUsesRoutePattern(t *testing.T) {
	producer := &recordingProducer{}
	r := chi.NewRouter()
	r.Use(Intercept(producer, InterceptorConfig{ServiceName: "library"}))
	r.Get("/books/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true}`)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books/7", nil))

	if got := producer.only(t).Header().ServiceName; got != "GET /books/{id}" {
		t.Fatalf("expected route pattern, got %q", got)
	}
}

func TestInterceptorFallsBackToMethodAndPath(t *testing.T) {
	producer := &recordingProducer{}
	handler := Intercept(producer, InterceptorConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := producer.only(t).Header().ServiceName; got != "GET /health" {
		t.Fatalf("unexpected service name %q", got)
	}
}

func TestInterceptorResponseSurvivesProducerPanic(t *testing.T) {
	producer := &recordingProducer{panics: true}
	handler := Intercept(producer, InterceptorConfig{Logger: newTestLogger()})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusAccepted, `{"success":true}`)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/books", nil))

	if rr.Code != http.StatusAccepted || rr.Body.String() != `{"success":true}` {
		t.Fatalf("response must be delivered unchanged, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestInterceptorResponseSurvivesDroppedRecord(t *testing.T) {
	producer := &recordingProducer{outcome: PublishOutcome{Status: StatusDropped, Attempts: 2, Err: errBrokerDown}}
	handler := Intercept(producer, InterceptorConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, "not json at all")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/books", nil))

	if rr.Body.String() != "not json at all" {
		t.Fatalf("response changed: %q", rr.Body.String())
	}
	if _, ok := producer.only(t).(records.Failed); !ok {
		t.Fatalf("unstructured body should classify as Failed")
	}
}

func TestInterceptorExplicitOutcome(t *testing.T) {
	producer := &recordingProducer{}
	handler := Intercept(producer, InterceptorConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetOutcome(r.Context(), classify.Outcome{Level: records.LevelWarning, Message: "stock low"})
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/books", nil))

	warn, ok := producer.only(t).(records.Warning)
	if !ok || warn.WarningMessage != "stock low" {
		t.Fatalf("explicit outcome should win, got %#v", producer.only(t))
	}
}

func TestInterceptorPropagatesCorrelationID(t *testing.T) {
	producer := &recordingProducer{}
	handler := Intercept(producer, InterceptorConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))

	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req.Header.Set(HeaderCorrelationID, "corr-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got := CorrelationID(producer.ctxs[0]); got != "corr-42" {
		t.Fatalf("expected correlation id on publish context, got %q", got)
	}
}

func TestInterceptorDefaultStatusAndEmptyBody(t *testing.T) {
	producer := &recordingProducer{}
	handler := Intercept(producer, InterceptorConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/noop", nil))

	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Body.String())
	}
	if len(producer.Records()) != 1 {
		t.Fatalf("every call must produce one record")
	}
}

func TestSetActionOutsideInterceptedRequest(t *testing.T) {
	if SetAction(context.Background(), "x") {
		t.Fatal("SetAction should report false without an interceptor")
	}
	if SetOutcome(context.Background(), classify.Outcome{Level: records.LevelInfo}) {
		t.Fatal("SetOutcome should report false without an interceptor")
	}
}
