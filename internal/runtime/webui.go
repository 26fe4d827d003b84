package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/logpipe/internal/runtime/jsoncodec"
)

type queuesResponse struct {
	Queues  []*QueueInfo    `json:"queues"`
	Totals  MetricsSnapshot `json:"totals"`
	Broker  string          `json:"broker"`
	Closing bool            `json:"closing"`
}

// StartWebUIServer exposes queue statistics when the web UI is enabled.
func (s *Service) StartWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}

	port := s.Conf.WebUIPort
	if port == 0 {
		port = 8081
	}

	s.RegisterHTTPHandler(port, "/api/queues", http.HandlerFunc(s.handleGetQueues))
}

func (s *Service) handleGetQueues(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.Conf != nil && len(s.Conf.WebUICORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if allowed := s.getAllowedCORSOrigin(origin); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := queuesResponse{
		Queues: s.Queues(),
		Totals: s.metrics.Snapshot(),
	}
	if s.broker != nil {
		resp.Broker = s.broker.Capabilities().Name
		resp.Closing = s.broker.Closed()
	}

	body, err := jsoncodec.Marshal(resp)
	if err != nil {
		s.Logger.Error("Failed to encode queue stats", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(body)
}

// getAllowedCORSOrigin returns the Access-Control-Allow-Origin value for
// requestOrigin, or "" when it is not allowed.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
