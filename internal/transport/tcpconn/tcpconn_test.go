package tcpconn

import (
	"testing"
	"time"

	"github.com/runner365/voiceagent/internal/reactor"
)

func TestDialConnectAndEcho(t *testing.T) {
	loop := reactor.New()
	go loop.Run()
	defer loop.Stop()

	accepted := make(chan *Conn, 1)
	srv, err := Listen(loop, "tcp", "127.0.0.1:0", nil, func(status int, conn *Conn) {
		if status != StatusOK {
			return
		}
		conn.AsyncRead()
		accepted <- conn
	})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer srv.Close()

	addr := srv.ln.Addr().String()

	connected := make(chan int, 1)
	var client *Conn
	client = Dial(loop, "tcp", addr, false, nil, Callbacks{
		OnConnect: func(status int) { connected <- status },
	})

	select {
	case status := <-connected:
		if status != StatusOK {
			t.Fatalf("client OnConnect status = %d", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	var server *Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
	}

	serverGotEcho := make(chan struct{}, 1)
	server.cb.OnRead = func(status int, data []byte) {
		if status == StatusOK && len(data) > 0 {
			server.Send(data)
			serverGotEcho <- struct{}{}
		}
	}

	client.Send([]byte("ping"))

	select {
	case <-serverGotEcho:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw client payload")
	}

	clientGotEcho := make(chan []byte, 1)
	client.cb.OnRead = func(status int, data []byte) {
		if status == StatusOK && len(data) > 0 {
			clientGotEcho <- append([]byte(nil), data...)
		}
	}
	client.AsyncRead()

	select {
	case got := <-clientGotEcho:
		if string(got) != "ping" {
			t.Fatalf("echo = %q, want %q", got, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never saw echo")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	loop := reactor.New()
	go loop.Run()
	defer loop.Stop()

	srv, err := Listen(loop, "tcp", "127.0.0.1:0", nil, nil)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer srv.Close()

	connected := make(chan int, 1)
	client := Dial(loop, "tcp", srv.ln.Addr().String(), false, nil, Callbacks{
		OnConnect: func(status int) { connected <- status },
	})
	<-connected

	if err := client.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
