// Package tcpconn implements the TCP/TLS endpoint (§4.2): non-blocking-style
// connect/accept with explicit per-operation callbacks delivered on the
// reactor loop thread, and an internal buffer-during-handshake discipline
// for TLS so the byte-oriented surface above it never has to know whether
// the wire is plaintext or encrypted.
package tcpconn

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/runner365/voiceagent/internal/reactor"
)

// Status codes mirror the specification's OnRead/OnWrite status convention:
// 0 means success, a negative value is fatal, and for OnRead specifically a
// zero length with status 0 means the peer half-closed the stream.
const (
	StatusOK = 0
)

// Callbacks are all invoked on the reactor loop thread via Loop.Post, never
// directly from the connection's internal read/write goroutines.
type Callbacks struct {
	OnConnect func(status int)
	OnRead    func(status int, data []byte)
	OnWrite   func(status int, bytesSent int)
	OnClose   func(err error)
}

// ResolveFailure, ConnectRefused and TransportClosed are the three failure
// classes the specification calls out for the client side of C2.
type ResolveFailure struct{ Err error }

func (e *ResolveFailure) Error() string { return fmt.Sprintf("tcpconn: resolve failed: %v", e.Err) }

type ConnectRefused struct{ Err error }

func (e *ConnectRefused) Error() string { return fmt.Sprintf("tcpconn: connect refused: %v", e.Err) }

type TransportClosed struct{}

func (e *TransportClosed) Error() string { return "tcpconn: transport closed" }

// Conn is a client connection. All exported methods are safe to call from
// any goroutine; all callback delivery happens on loop.
type Conn struct {
	loop *reactor.Loop
	cb   Callbacks

	mu      sync.Mutex
	raw     net.Conn
	ready   bool // handshake (if any) complete; buffered sends may now flush
	closed  bool
	pending [][]byte

	tlsEnabled bool
	tlsConfig  *tls.Config
}

// Dial starts a non-blocking-style connect: the network dial (and, if
// tlsEnabled, the TLS handshake) runs on an internal goroutine, and
// OnConnect is posted to the loop on completion, mirroring the libuv
// connect-callback shape this component is descended from.
func Dial(loop *reactor.Loop, network, addr string, tlsEnabled bool, tlsConfig *tls.Config, cb Callbacks) *Conn {
	c := &Conn{
		loop:       loop,
		cb:         cb,
		tlsEnabled: tlsEnabled,
		tlsConfig:  tlsConfig,
	}
	go c.connect(network, addr)
	return c
}

func (c *Conn) connect(network, addr string) {
	raw, err := net.Dial(network, addr)
	if err != nil {
		status := -1
		if _, ok := err.(*net.OpError); ok {
			status = -1
		}
		c.loop.Post(func() {
			if c.cb.OnConnect != nil {
				c.cb.OnConnect(status)
			}
		})
		return
	}

	if c.tlsEnabled {
		tc := tls.Client(raw, c.tlsConfig)
		if err := tc.Handshake(); err != nil {
			tc.Close()
			c.loop.Post(func() {
				if c.cb.OnConnect != nil {
					c.cb.OnConnect(-1)
				}
			})
			return
		}
		raw = tc
	}

	c.mu.Lock()
	c.raw = raw
	c.ready = true
	flush := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, p := range flush {
		c.writeNow(p)
	}

	c.loop.Post(func() {
		if c.cb.OnConnect != nil {
			c.cb.OnConnect(StatusOK)
		}
	})
}

// Send copies payload into an internal write request. If the connection is
// still mid-handshake, the write is queued and flushed once ready. Result
// is reported asynchronously via OnWrite.
func (c *Conn) Send(data []byte) {
	cp := append([]byte(nil), data...)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.loop.Post(func() {
			if c.cb.OnWrite != nil {
				c.cb.OnWrite(-1, 0)
			}
		})
		return
	}
	if !c.ready {
		c.pending = append(c.pending, cp)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.writeNow(cp)
}

func (c *Conn) writeNow(data []byte) {
	go func() {
		c.mu.Lock()
		raw := c.raw
		c.mu.Unlock()
		if raw == nil {
			return
		}
		n, err := raw.Write(data)
		status := StatusOK
		if err != nil {
			status = -1
		}
		c.loop.Post(func() {
			if c.cb.OnWrite != nil {
				c.cb.OnWrite(status, n)
			}
		})
	}()
}

// AsyncRead arms exactly one read completion. The caller re-arms by calling
// AsyncRead again from within (or after) OnRead, which gives the owner
// explicit control over read back-pressure instead of an always-on pump.
func (c *Conn) AsyncRead() {
	c.mu.Lock()
	raw := c.raw
	closed := c.closed
	c.mu.Unlock()
	if closed || raw == nil {
		return
	}

	go func() {
		buf := make([]byte, 64*1024)
		n, err := raw.Read(buf)
		if err != nil {
			status := -1
			if errors.Is(err, io.EOF) {
				status = StatusOK // peer half-closed: zero length, status 0
			}
			c.loop.Post(func() {
				if c.cb.OnRead != nil {
					c.cb.OnRead(status, nil)
				}
			})
			return
		}
		if n == 0 {
			c.loop.Post(func() {
				if c.cb.OnRead != nil {
					c.cb.OnRead(StatusOK, nil)
				}
			})
			return
		}
		data := buf[:n]
		c.loop.Post(func() {
			if c.cb.OnRead != nil {
				c.cb.OnRead(StatusOK, data)
			}
		})
	}()
}

// Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	raw := c.raw
	c.mu.Unlock()

	var err error
	if raw != nil {
		err = raw.Close()
	}
	if c.cb.OnClose != nil {
		c.cb.OnClose(err)
	}
	return err
}

// SetCallbacks installs cb on a connection that was constructed without
// them, such as one handed to a Server's onAccept before the caller has
// decided how to handle it. Not safe to call concurrently with delivery of
// a callback that is being replaced.
func (c *Conn) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	onClose := c.cb.OnClose
	c.cb = cb
	if onClose != nil && cb.OnClose == nil {
		c.cb.OnClose = onClose
	}
	c.mu.Unlock()
}

// RemoteAddr returns the remote endpoint string used as the server-side
// session map key, or "" if not yet connected.
func (c *Conn) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.raw == nil {
		return ""
	}
	return c.raw.RemoteAddr().String()
}

// wrapAccepted adapts an already-accepted net.Conn (server side) into a
// ready Conn with no connect phase.
func wrapAccepted(loop *reactor.Loop, raw net.Conn, cb Callbacks) *Conn {
	return &Conn{
		loop:  loop,
		cb:    cb,
		raw:   raw,
		ready: true,
	}
}
