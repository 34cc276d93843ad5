package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the debug sidecar HTTP server exposing /metrics and /healthz,
// deliberately separate from the hand-rolled C3/C4 transport stack this
// worker implements for signalling — a production voice worker still
// wants a standard net/http-backed debug surface for scraping and
// liveness probes, the same split the teacher keeps between its own
// hand-built call-handling path and its observability package's plain
// net/http health endpoints.
type Server struct {
	httpServer *http.Server
}

// NewServer returns a Server bound to addr, serving metrics from m.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", healthzHandler)

	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start runs the server until Stop is called or it fails to bind.
// ListenAndServe's own error is returned to the caller, who decides
// whether a failed debug sidecar should be fatal.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down within the given timeout.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}
