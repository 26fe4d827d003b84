package runtime

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/logpipe/internal/runtime/jsoncodec"
	"github.com/drblury/logpipe/internal/runtime/records"
)

func TestHandleGetQueuesReturnsJSON(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{Metrics: NewPipelineMetrics(nil)})
	rec := records.NewInfo("GetBooks", "GET /books", `{"success":true}`)
	payload, _ := records.Encode(rec)
	h := wrapHandlerWithStats(svc.consume(routeByName(t, svc, "message-consumer"), svc.Queues()[0].Stats), svc.Queues()[0].Stats)
	if err := h(message.NewMessage(rec.ID, payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rr := httptest.NewRecorder()
	svc.handleGetQueues(rr, httptest.NewRequest(http.MethodGet, "/api/queues", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected application/json content type, got %s", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("no CORS headers without configured origins, got %s", got)
	}

	var body struct {
		Queues []struct {
			Name  string `json:"name"`
			Stats struct {
				MessagesProcessed uint64 `json:"messages_processed"`
				MessagesPersisted uint64 `json:"messages_persisted"`
			} `json:"stats"`
		} `json:"queues"`
		Totals struct {
			Persisted uint64 `json:"persisted"`
		} `json:"totals"`
		Broker string `json:"broker"`
	}
	if err := jsoncodec.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
	if len(body.Queues) != 3 || body.Queues[0].Name != "message-consumer" {
		t.Fatalf("unexpected payload: %+v", body)
	}
	if body.Queues[0].Stats.MessagesProcessed != 1 || body.Queues[0].Stats.MessagesPersisted != 1 {
		t.Fatalf("expected stats for the consumed message: %+v", body.Queues[0].Stats)
	}
	if body.Totals.Persisted != 1 {
		t.Fatalf("expected pipeline totals, got %+v", body.Totals)
	}
	if body.Broker != "channel" {
		t.Fatalf("expected broker name, got %q", body.Broker)
	}
}

func TestHandleGetQueuesCORS(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{})
	svc.Conf.WebUICORSAllowedOrigins = []string{"https://ops.example.com"}

	req := httptest.NewRequest(http.MethodOptions, "/api/queues", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rr := httptest.NewRecorder()
	svc.handleGetQueues(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Fatalf("unexpected allowed origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/queues", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	svc.handleGetQueues(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin must not be allowed, got %q", got)
	}
}

func TestHandleGetQueuesRejectsWrites(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{})
	rr := httptest.NewRecorder()
	svc.handleGetQueues(rr, httptest.NewRequest(http.MethodPost, "/api/queues", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if rr.Header().Get("Allow") != "GET, OPTIONS" {
		t.Fatalf("expected Allow header, got %q", rr.Header().Get("Allow"))
	}
}

func TestStartWebUIServerRegistersEndpoint(t *testing.T) {
	svc := newTestService(t, ServiceDependencies{})
	svc.StartWebUIServer()
	if len(svc.httpServers) != 0 {
		t.Fatal("web UI is off by default")
	}

	svc.Conf.WebUIEnabled = true
	svc.StartWebUIServer()
	if _, ok := svc.httpServers[8081]; !ok {
		t.Fatal("expected the default web UI port")
	}
}
