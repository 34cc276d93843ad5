package protoo

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/observability"
	"github.com/runner365/voiceagent/internal/reactor"
	"github.com/runner365/voiceagent/internal/transport/ws"
)

func TestRequestFailsWhenNotConnected(t *testing.T) {
	loop := reactor.New()
	go loop.Run()
	defer loop.Stop()

	c := New(loop, zerolog.Nop(), "127.0.0.1", 1, "/ws", false, Callbacks{}, nil)
	if _, err := c.Request("echo", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error when not connected")
	}
}

func TestAsyncConnectThrottled(t *testing.T) {
	loop := reactor.New()
	go loop.Run()
	defer loop.Stop()

	c := New(loop, zerolog.Nop(), "127.0.0.1", 1, "/ws", false, Callbacks{}, nil)
	c.lastConnectMs = nowMs()
	c.state = stateIdle

	c.AsyncConnect()
	time.Sleep(10 * time.Millisecond)

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != stateIdle {
		t.Fatalf("state = %v, want stateIdle (throttled)", state)
	}
}

func TestAsyncConnectAssignsFreshTraceIDPerDial(t *testing.T) {
	loop := reactor.New()
	go loop.Run()
	defer loop.Stop()

	c := New(loop, zerolog.Nop(), "127.0.0.1", 1, "/ws", false, Callbacks{}, nil)

	c.AsyncConnect()
	time.Sleep(10 * time.Millisecond)
	c.mu.Lock()
	first := c.traceID
	c.state = stateIdle // simulate the reset a failed/closed dial performs
	c.lastConnectMs = 0 // bypass the reconnect throttle for this test
	c.mu.Unlock()
	if first == "" {
		t.Fatal("expected a trace id to be assigned on dial")
	}

	c.AsyncConnect()
	time.Sleep(10 * time.Millisecond)
	c.mu.Lock()
	second := c.traceID
	c.mu.Unlock()
	if second == "" || second == first {
		t.Fatalf("expected a fresh trace id on the next dial, got %q twice", second)
	}
}

func TestReconnectCountsAfterFirstConnect(t *testing.T) {
	m := observability.New()
	loop := reactor.New()
	go loop.Run()
	defer loop.Stop()

	c := New(loop, zerolog.Nop(), "127.0.0.1", 1, "/ws", false, Callbacks{}, m)

	// The first transition into stateConnected is an initial connect, not a
	// reconnect: it must not increment the counter.
	c.mu.Lock()
	isReconnect := c.everConnected
	c.everConnected = true
	c.mu.Unlock()
	if isReconnect {
		t.Fatal("everConnected should start false")
	}

	// A second transition into stateConnected is a reconnect.
	c.mu.Lock()
	isReconnect = c.everConnected
	c.mu.Unlock()
	if !isReconnect {
		t.Fatal("everConnected should be true after the first connect")
	}
	if isReconnect {
		m.SignallingReconnectsTotal.Inc()
	}

	mfs, err := m.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var got float64
	for _, mf := range mfs {
		if mf.GetName() == "voiceagent_signalling_reconnects_total" {
			for _, metric := range mf.GetMetric() {
				got += metric.GetCounter().GetValue()
			}
		}
	}
	if got != 1 {
		t.Fatalf("reconnects_total = %v, want 1", got)
	}
}

func TestOnMessageRoutesNotificationVsResponse(t *testing.T) {
	loop := reactor.New()
	go loop.Run()
	defer loop.Stop()

	var gotResponse, gotNotification string
	c := New(loop, zerolog.Nop(), "127.0.0.1", 1, "/ws", false, Callbacks{
		OnResponse:     func(text string) { gotResponse = text },
		OnNotification: func(text string) { gotNotification = text },
	}, nil)

	respMsg := `{"response":true,"id":1,"ok":true}`
	notifMsg := `{"notification":true,"method":"opus_data"}`

	c.onMessage(ws.OpText, []byte(respMsg))
	c.onMessage(ws.OpText, []byte(notifMsg))

	if gotResponse != respMsg {
		t.Fatalf("gotResponse = %q, want %q", gotResponse, respMsg)
	}
	if gotNotification != notifMsg {
		t.Fatalf("gotNotification = %q, want %q", gotNotification, notifMsg)
	}
}
