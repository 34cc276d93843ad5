// Package controlhttp implements the worker's local control-plane listener
// (§6: "Local HTTP control endpoint: POST /echo"). It is built on the same
// hand-rolled TCP (internal/transport/tcpconn) and HTTP/1.1 framing
// (internal/transport/httpframe) components the signalling transport uses,
// not net/http — this listener is part of the hand-rolled transport stack
// the rest of the worker is built on, not an ambient debug surface.
package controlhttp

import (
	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/reactor"
	"github.com/runner365/voiceagent/internal/transport/httpframe"
	"github.com/runner365/voiceagent/internal/transport/tcpconn"
)

// Server accepts plaintext HTTP/1.1 connections and dispatches each parsed
// request through a Router. Only /echo is registered by default; callers
// may add more via Router().AddHandler before calling Listen.
type Server struct {
	loop   *reactor.Loop
	log    zerolog.Logger
	router *httpframe.Router
	ln     *tcpconn.Server
}

// New returns a Server with the §6 /echo handler already registered.
func New(loop *reactor.Loop, log zerolog.Logger) *Server {
	s := &Server{loop: loop, log: log, router: httpframe.NewRouter()}
	s.router.AddHandler("POST", "/echo", echoHandler)
	return s
}

// Router exposes the handler table so a caller can register additional
// control endpoints before Listen is called.
func (s *Server) Router() *httpframe.Router {
	return s.router
}

// Listen binds addr and starts accepting connections in the background.
func (s *Server) Listen(addr string) error {
	ln, err := tcpconn.Listen(s.loop, "tcp", addr, nil, s.onAccept)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Close stops accepting new connections. Sessions already in flight run to
// completion on their own.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) onAccept(status int, conn *tcpconn.Conn) {
	if status != tcpconn.StatusOK {
		return
	}
	sess := &session{conn: conn, dec: httpframe.NewDecoder(), router: s.router, log: s.log}
	conn.SetCallbacks(tcpconn.Callbacks{OnRead: sess.onRead})
	conn.AsyncRead()
}

// session owns one accepted connection's decode-dispatch-respond cycle.
type session struct {
	conn   *tcpconn.Conn
	dec    *httpframe.Decoder
	router *httpframe.Router
	log    zerolog.Logger
}

func (sess *session) onRead(status int, data []byte) {
	if status != tcpconn.StatusOK {
		sess.conn.Close()
		return
	}
	if len(data) == 0 {
		if req, ok := sess.dec.FinishUntilClose(); ok {
			sess.dispatch(req)
		}
		sess.conn.Close()
		return
	}

	reqs, err := sess.dec.Feed(data)
	if err != nil {
		sess.log.Warn().Err(err).Msg("control http: malformed request, closing connection")
		sess.conn.Close()
		return
	}
	for _, req := range reqs {
		sess.dispatch(req)
	}
	sess.conn.AsyncRead()
}

func (sess *session) dispatch(req httpframe.Request) {
	fn, ok := sess.router.Lookup(req.Method, req.Target)
	var resp httpframe.Response
	if !ok {
		resp = httpframe.Response{Status: 400, Body: []byte("unsupported method or path")}
	} else {
		resp = fn(req)
	}
	sess.conn.Send(httpframe.EncodeResponse(resp))
}

// echoHandler returns the request body verbatim, per the original worker's
// AddPostHandle("/echo", EchoMessageHandle).
func echoHandler(req httpframe.Request) httpframe.Response {
	return httpframe.Response{Status: 200, Body: req.Body}
}
