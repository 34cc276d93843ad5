package ws

import (
	"encoding/binary"
	"time"

	"github.com/runner365/voiceagent/internal/reactor"
)

// Role distinguishes a client session (outbound frames must be masked)
// from a server session (outbound frames must not be).
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

const (
	pingInterval       = 2000 * time.Millisecond
	clientDeadAfter    = 15000 * time.Millisecond
	serverDeadAfter    = 60000 * time.Millisecond
)

// Callbacks are invoked from whatever goroutine calls Session.Feed —
// callers that need loop-thread delivery should dispatch through
// reactor.Loop.Post themselves, matching how C4 composes with C2.
type Callbacks struct {
	OnMessage func(opcode Opcode, payload []byte)
	OnClose   func(code int, reason string)
	OnSend    func(frame []byte) // raw bytes to write to the transport
}

// Session applies control-frame semantics (ping/pong/close) and drives the
// keepalive timer on top of a raw Decoder/Encoder pair.
type Session struct {
	role Role
	dec  *Decoder
	cb   Callbacks

	lastRecvPongMs int64
	closed         bool

	cancelKeepalive reactor.Cancel
}

// NewSession wraps a fresh Decoder with control-frame handling for role.
func NewSession(role Role, cb Callbacks) *Session {
	return &Session{
		role: role,
		dec:  NewDecoder(),
		cb:   cb,
	}
}

// Feed decodes newly-arrived bytes and dispatches data frames to
// OnMessage, handling ping/pong/close frames internally. Returns an error
// (always ErrProtocol) if framing is violated; the caller must close with
// code 1002.
func (s *Session) Feed(data []byte) error {
	frames, err := s.dec.Feed(data)
	for _, f := range frames {
		s.handle(f)
	}
	if err != nil {
		s.sendClose(1002, "protocol violation")
		if s.cb.OnClose != nil {
			s.cb.OnClose(1002, "protocol violation")
		}
		return err
	}
	return nil
}

func (s *Session) handle(f Frame) {
	switch f.Opcode {
	case OpPing:
		s.send(OpPong, f.Payload)
	case OpPong:
		s.lastRecvPongMs = nowMs()
	case OpClose:
		code, reason := parseClosePayload(f.Payload)
		if validCloseCode(code) {
			s.sendClose(code, "")
		} else {
			s.sendClose(1002, "Invalid close code")
		}
		if s.cb.OnClose != nil {
			s.cb.OnClose(code, reason)
		}
	default:
		if s.cb.OnMessage != nil {
			s.cb.OnMessage(f.Opcode, f.Payload)
		}
	}
}

// SendText/SendBinary queue a data frame for the transport.
func (s *Session) SendText(payload []byte) { s.send(OpText, payload) }
func (s *Session) SendBinary(payload []byte) { s.send(OpBinary, payload) }

func (s *Session) send(op Opcode, payload []byte) {
	masked := s.role == RoleClient
	var mask [4]byte
	if masked {
		mask = RandomMask()
	}
	if s.cb.OnSend != nil {
		s.cb.OnSend(Encode(op, payload, masked, mask))
	}
}

func (s *Session) sendClose(code int, reason string) {
	if s.closed {
		return
	}
	s.closed = true
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload[:2], uint16(code))
	copy(payload[2:], reason)
	s.send(OpClose, payload)
}

// StartKeepalive arms the 2000ms ping timer and the dead-peer check on
// loop. pingPayload receives the current ms timestamp to embed, matching
// the wire contract the protoo layer expects to observe as "time moved".
func (s *Session) StartKeepalive(loop *reactor.Loop, pingPayload func(nowMs int64) []byte) {
	s.lastRecvPongMs = nowMs()
	s.cancelKeepalive = loop.Schedule(pingInterval, func() bool {
		if s.closed {
			return false
		}
		now := nowMs()
		deadAfter := int64(clientDeadAfter / time.Millisecond)
		if s.role == RoleServer {
			deadAfter = int64(serverDeadAfter / time.Millisecond)
		}
		if now-s.lastRecvPongMs > deadAfter {
			s.sendClose(1001, "peer unresponsive")
			if s.cb.OnClose != nil {
				s.cb.OnClose(1001, "peer unresponsive")
			}
			return false
		}
		var payload []byte
		if pingPayload != nil {
			payload = pingPayload(now)
		}
		s.send(OpPing, payload)
		return true
	})
}

// StopKeepalive cancels the keepalive timer, if armed.
func (s *Session) StopKeepalive() {
	if s.cancelKeepalive != nil {
		s.cancelKeepalive()
	}
}

func validCloseCode(code int) bool {
	if code < 1000 || code >= 5000 {
		return false
	}
	switch code {
	case 1004, 1005, 1006, 1015:
		return false
	}
	return true
}

func parseClosePayload(payload []byte) (int, string) {
	if len(payload) < 2 {
		return 1005, ""
	}
	code := int(binary.BigEndian.Uint16(payload[:2]))
	return code, string(payload[2:])
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
