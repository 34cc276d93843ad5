package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsRegistersExpectedCollectors(t *testing.T) {
	m := New()
	m.ActiveRooms.Set(3)
	m.RoomsCreatedTotal.Inc()
	m.PipelinePacketsTotal.WithLabelValues("decoder", "in").Inc()
	m.QueueDroppedTotal.WithLabelValues("encoder").Inc()
	m.CircuitBreakerState.WithLabelValues("tts-http").Set(1)

	mfs, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"voiceagent_active_rooms",
		"voiceagent_rooms_created_total",
		"voiceagent_pipeline_packets_total",
		"voiceagent_queue_dropped_total",
		"voiceagent_circuit_breaker_state",
	} {
		if !names[want] {
			t.Errorf("missing metric %q", want)
		}
	}
}

func TestServerServesMetricsAndHealthz(t *testing.T) {
	m := New()
	m.ActiveRooms.Set(1)
	srv := NewServer("127.0.0.1:0", m)

	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "voiceagent_active_rooms") {
		t.Fatal("expected /metrics output to contain voiceagent_active_rooms")
	}

	resp2, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp2.StatusCode)
	}
}

func TestStopShutsDownCleanly(t *testing.T) {
	m := New()
	srv := NewServer("127.0.0.1:0", m)
	go srv.Start()
	time.Sleep(10 * time.Millisecond)
	if err := srv.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
