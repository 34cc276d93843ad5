package ws

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/runner365/voiceagent/internal/transport/httpframe"
	"github.com/runner365/voiceagent/internal/wire"
)

// ErrHandshake covers any deviation from the §4.4.1 requirements; the
// caller responds 400 and closes.
var ErrHandshake = errors.New("ws: handshake validation failed")

func headerEqualFold(h http.Header, key, want string) bool {
	return strings.EqualFold(strings.TrimSpace(h.Get(key)), want)
}

func headerContainsToken(h http.Header, key, token string) bool {
	for _, field := range strings.Split(h.Get(key), ",") {
		if strings.EqualFold(strings.TrimSpace(field), token) {
			return true
		}
	}
	return false
}

// ServerHandshake validates an upgrade request per §4.4.1 and returns the
// 101 response to send, or an error (the caller sends 400 and closes).
// subprotocol, if non-empty, is echoed back as Sec-WebSocket-Protocol.
func ServerHandshake(req httpframe.Request, subprotocol string) (httpframe.Response, error) {
	if !headerContainsToken(req.Headers, "Connection", "Upgrade") {
		return httpframe.Response{}, ErrHandshake
	}
	if !headerEqualFold(req.Headers, "Upgrade", "websocket") {
		return httpframe.Response{}, ErrHandshake
	}
	if strings.TrimSpace(req.Headers.Get("Sec-WebSocket-Version")) != "13" {
		return httpframe.Response{}, ErrHandshake
	}
	key := strings.TrimSpace(req.Headers.Get("Sec-WebSocket-Key"))
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != 16 {
		return httpframe.Response{}, ErrHandshake
	}

	headers := make(http.Header)
	headers.Set("Upgrade", "websocket")
	headers.Set("Connection", "Upgrade")
	headers.Set("Sec-WebSocket-Accept", wire.AcceptKey(key))
	if subprotocol != "" {
		headers.Set("Sec-WebSocket-Protocol", subprotocol)
	}

	return httpframe.Response{Status: 101, Reason: "Switching Protocols", Headers: headers}, nil
}

// ClientRequest builds the client-side handshake request and returns the
// key it used, so the caller can validate the server's Sec-WebSocket-Accept
// against it.
func ClientRequest(host, path, subprotocol string) (httpframe.Request, string) {
	var raw [16]byte
	_, _ = rand.Read(raw[:])
	key := base64.StdEncoding.EncodeToString(raw[:])

	headers := make(http.Header)
	headers.Set("Host", host)
	headers.Set("Upgrade", "websocket")
	headers.Set("Connection", "Upgrade")
	headers.Set("Sec-WebSocket-Key", key)
	headers.Set("Sec-WebSocket-Version", "13")
	if subprotocol != "" {
		headers.Set("Sec-WebSocket-Protocol", subprotocol)
	}

	req := httpframe.Request{
		Method:  "GET",
		Target:  path,
		Version: "HTTP/1.1",
		Headers: headers,
	}
	return req, key
}

// ParseResponseHead parses a complete "status-line CRLF headers CRLF CRLF"
// block, returning the response and the number of bytes consumed. ok is
// false if the terminating blank line hasn't arrived yet. This is used
// only for the one-shot client handshake response; ordinary body framing
// is httpframe's job.
func ParseResponseHead(data []byte) (httpframe.Response, int, bool, error) {
	idx := indexCRLFCRLF(data)
	if idx < 0 {
		return httpframe.Response{}, 0, false, nil
	}
	head := string(data[:idx])
	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 {
		return httpframe.Response{}, 0, false, ErrHandshake
	}
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 2 {
		return httpframe.Response{}, 0, false, ErrHandshake
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return httpframe.Response{}, 0, false, ErrHandshake
	}

	headers := make(http.Header)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		ci := strings.IndexByte(line, ':')
		if ci < 0 {
			continue
		}
		headers.Add(strings.TrimSpace(line[:ci]), strings.TrimLeft(line[ci+1:], " "))
	}

	return httpframe.Response{Status: status, Headers: headers}, idx + 4, true, nil
}

func indexCRLFCRLF(data []byte) int {
	for i := 0; i+4 <= len(data); i++ {
		if data[i] == '\r' && data[i+1] == '\n' && data[i+2] == '\r' && data[i+3] == '\n' {
			return i
		}
	}
	return -1
}

// EncodeRequest serializes req as an HTTP/1.1 request line + headers
// (no body), used to send the client handshake GET.
func EncodeRequest(req httpframe.Request) []byte {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteString(" ")
	b.WriteString(req.Target)
	b.WriteString(" ")
	b.WriteString(req.Version)
	b.WriteString("\r\n")
	for key, vals := range req.Headers {
		for _, v := range vals {
			b.WriteString(key)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ValidateServerAccept checks the server's 101 response against the key
// the client sent. A mismatch means the caller must close with reason text.
func ValidateServerAccept(resp httpframe.Response, key string) error {
	if resp.Status != 101 {
		return ErrHandshake
	}
	want := wire.AcceptKey(key)
	got := strings.TrimSpace(resp.Headers.Get("Sec-WebSocket-Accept"))
	if got != want {
		return ErrHandshake
	}
	return nil
}
