// Package protoo implements the signalling client (§4.5): a JSON
// request/notification/response protocol layered on the WebSocket client,
// with an echo-based keepalive and throttled reconnection.
package protoo

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/observability"
	"github.com/runner365/voiceagent/internal/reactor"
	"github.com/runner365/voiceagent/internal/transport/tcpconn"
	"github.com/runner365/voiceagent/internal/transport/ws"
)

const (
	echoInterval     = 15000 * time.Millisecond
	reconnectBackoff = 5000 * time.Millisecond
)

// Callbacks are delivered on the reactor loop thread.
type Callbacks struct {
	OnConnected    func()
	OnResponse     func(text string)
	OnNotification func(text string)
	OnClosed       func(code int, reason string)
}

type connState int

const (
	stateIdle connState = iota
	stateDialing
	stateHandshaking
	stateConnected
)

// Client is the protoo signalling client. The owner (the room manager)
// drives AsyncConnect and the echo keepalive from its own 10ms tick;
// Client does not start any timers of its own beyond what StartKeepalive
// arms once connected.
type Client struct {
	loop    *reactor.Loop
	log     zerolog.Logger
	cb      Callbacks
	metrics *observability.Metrics

	host    string
	port    uint16
	subpath string
	secure  bool

	mu            sync.Mutex
	state         connState
	conn          *tcpconn.Conn
	session       *ws.Session
	handshakeKey  string
	handshakeBuf  []byte
	lastConnectMs int64
	everConnected bool
	traceID       string

	nextID int64
}

// New returns a disconnected Client targeting host:port/subpath. metrics
// is optional; when non-nil, every connect after the first one increments
// voiceagent_signalling_reconnects_total.
func New(loop *reactor.Loop, log zerolog.Logger, host string, port uint16, subpath string, secure bool, cb Callbacks, metrics *observability.Metrics) *Client {
	return &Client{
		loop:    loop,
		log:     log,
		cb:      cb,
		metrics: metrics,
		host:    host,
		port:    port,
		subpath: subpath,
		secure:  secure,
	}
}

// IsConnected reports whether the WebSocket handshake has completed.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

// AsyncConnect is idempotent and throttled to one attempt per 5000ms.
func (c *Client) AsyncConnect() {
	now := nowMs()
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return
	}
	if now-c.lastConnectMs < int64(reconnectBackoff/time.Millisecond) {
		c.mu.Unlock()
		return
	}
	c.lastConnectMs = now
	c.state = stateDialing
	c.traceID = uuid.NewString()
	traceID := c.traceID
	c.mu.Unlock()

	c.log.Info().Str("trace_id", traceID).Msg("protoo: dialing")

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	var tlsConfig *tls.Config
	if c.secure {
		tlsConfig = &tls.Config{ServerName: c.host}
	}

	c.conn = tcpconn.Dial(c.loop, "tcp", addr, c.secure, tlsConfig, tcpconn.Callbacks{
		OnConnect: c.onTCPConnect,
		OnRead:    c.onTCPRead,
		OnWrite:   func(int, int) {},
		OnClose:   c.onTCPClose,
	})
}

func (c *Client) onTCPConnect(status int) {
	if status != tcpconn.StatusOK {
		c.log.Warn().Int("status", status).Msg("protoo: connect failed")
		c.reset()
		return
	}
	req, key := ws.ClientRequest(c.host, c.subpath, "protoo")

	c.mu.Lock()
	c.handshakeKey = key
	c.state = stateHandshaking
	c.mu.Unlock()

	c.conn.Send(ws.EncodeRequest(req))
	c.conn.AsyncRead()
}

func (c *Client) onTCPRead(status int, data []byte) {
	if status != tcpconn.StatusOK || data == nil {
		c.log.Info().Msg("protoo: transport closed")
		c.reset()
		if c.cb.OnClosed != nil {
			c.cb.OnClosed(1006, "transport closed")
		}
		return
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == stateHandshaking {
		c.mu.Lock()
		c.handshakeBuf = append(c.handshakeBuf, data...)
		buf := c.handshakeBuf
		c.mu.Unlock()

		resp, consumed, ok, err := ws.ParseResponseHead(buf)
		if err != nil {
			c.log.Warn().Err(err).Msg("protoo: malformed handshake response")
			c.conn.Close()
			c.reset()
			return
		}
		if !ok {
			return
		}
		if err := ws.ValidateServerAccept(resp, c.handshakeKey); err != nil {
			c.log.Warn().Err(err).Msg("protoo: handshake accept mismatch")
			c.conn.Close()
			c.reset()
			return
		}

		rest := buf[consumed:]
		c.mu.Lock()
		c.handshakeBuf = nil
		c.session = ws.NewSession(ws.RoleClient, ws.Callbacks{
			OnMessage: c.onMessage,
			OnClose:   c.onWSClose,
			OnSend:    func(frame []byte) { c.conn.Send(frame) },
		})
		c.state = stateConnected
		session := c.session
		traceID := c.traceID
		isReconnect := c.everConnected
		c.everConnected = true
		c.mu.Unlock()

		if isReconnect && c.metrics != nil {
			c.metrics.SignallingReconnectsTotal.Inc()
		}
		c.log.Info().Str("trace_id", traceID).Bool("reconnect", isReconnect).Msg("protoo: connected")

		session.StartKeepalive(c.loop, nil)
		c.conn.AsyncRead()

		if c.cb.OnConnected != nil {
			c.cb.OnConnected()
		}
		if len(rest) > 0 {
			c.feedSession(rest)
		}
		return
	}

	if state == stateConnected {
		c.feedSession(data)
		c.conn.AsyncRead()
	}
}

func (c *Client) feedSession(data []byte) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.Feed(data); err != nil {
		c.log.Warn().Err(err).Msg("protoo: framing violation")
	}
}

func (c *Client) onMessage(op ws.Opcode, payload []byte) {
	if op != ws.OpText {
		return
	}
	text := string(payload)

	var probe struct {
		Request      bool `json:"request"`
		Response     bool `json:"response"`
		Notification bool `json:"notification"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		c.log.Warn().Err(err).Msg("protoo: malformed message")
		return
	}

	switch {
	case probe.Response && c.cb.OnResponse != nil:
		c.cb.OnResponse(text)
	case probe.Notification && c.cb.OnNotification != nil:
		c.cb.OnNotification(text)
	}
}

func (c *Client) onWSClose(code int, reason string) {
	c.reset()
	if c.cb.OnClosed != nil {
		c.cb.OnClosed(code, reason)
	}
}

func (c *Client) onTCPClose(error) {
	c.reset()
}

func (c *Client) reset() {
	c.mu.Lock()
	if c.session != nil {
		c.session.StopKeepalive()
	}
	c.session = nil
	c.state = stateIdle
	c.mu.Unlock()
}

// Request sends {request:true, id, method, data} and returns the id used.
func (c *Client) Request(method string, data json.RawMessage) (int64, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	msg := map[string]interface{}{
		"request": true,
		"id":      id,
		"method":  method,
		"data":    data,
	}
	return id, c.sendJSON(msg)
}

// Notification sends {notification:true, method, data}.
func (c *Client) Notification(method string, data json.RawMessage) error {
	msg := map[string]interface{}{
		"notification": true,
		"method":       method,
		"data":         data,
	}
	return c.sendJSON(msg)
}

// SendEcho is the liveness probe described in §4.5: every 15000ms, if
// connected, send an echo request carrying the current time. Receipt is
// not verified.
func (c *Client) SendEcho() error {
	payload, _ := json.Marshal(map[string]interface{}{
		"ts":   nowMs(),
		"type": "voiceagent_worker",
	})
	_, err := c.Request("echo", payload)
	return err
}

func (c *Client) sendJSON(msg map[string]interface{}) error {
	c.mu.Lock()
	session := c.session
	connected := c.state == stateConnected
	c.mu.Unlock()
	if !connected || session == nil {
		return fmt.Errorf("protoo: not connected")
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	session.SendText(b)
	return nil
}

func nowMs() int64 { return time.Now().UnixMilli() }
