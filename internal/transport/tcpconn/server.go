package tcpconn

import (
	"crypto/tls"
	"net"
	"sync"

	"github.com/runner365/voiceagent/internal/reactor"
)

// Server binds, listens, and on accept constructs a per-connection session,
// invoking OnAccept on the loop thread. Sessions self-remove from the
// server's map when closed; the map is otherwise only read by callers
// wanting to enumerate live sessions (e.g. for a shutdown sweep).
type Server struct {
	loop      *reactor.Loop
	ln        net.Listener
	onAccept  func(status int, conn *Conn)
	tlsConfig *tls.Config

	mu       sync.Mutex
	sessions map[string]*Conn
}

// Listen binds addr ("host:port") and starts accepting in the background.
// If tlsConfig is non-nil, accepted connections run the TLS server
// handshake before OnAccept fires.
func Listen(loop *reactor.Loop, network, addr string, tlsConfig *tls.Config, onAccept func(status int, conn *Conn)) (*Server, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, &ResolveFailure{Err: err}
	}
	s := &Server{
		loop:      loop,
		ln:        ln,
		onAccept:  onAccept,
		tlsConfig: tlsConfig,
		sessions:  make(map[string]*Conn),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			s.loop.Post(func() {
				if s.onAccept != nil {
					s.onAccept(-1, nil)
				}
			})
			return
		}
		go s.handleAccepted(raw)
	}
}

func (s *Server) handleAccepted(raw net.Conn) {
	if s.tlsConfig != nil {
		tc := tls.Server(raw, s.tlsConfig)
		if err := tc.Handshake(); err != nil {
			tc.Close()
			return
		}
		raw = tc
	}

	key := raw.RemoteAddr().String()
	conn := wrapAccepted(s.loop, raw, Callbacks{})
	conn.cb.OnClose = func(error) { s.remove(key) }

	s.mu.Lock()
	s.sessions[key] = conn
	s.mu.Unlock()

	s.loop.Post(func() {
		if s.onAccept != nil {
			s.onAccept(StatusOK, conn)
		}
	})
}

func (s *Server) remove(key string) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}

// Sessions returns a snapshot of the current remote-endpoint -> Conn map.
func (s *Server) Sessions() map[string]*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Conn, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = v
	}
	return out
}

// Close stops accepting new connections. Existing sessions are unaffected.
func (s *Server) Close() error {
	return s.ln.Close()
}
