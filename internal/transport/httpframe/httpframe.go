// Package httpframe implements the HTTP/1.1 framer (§4.3): a pure state
// machine over a byte stream that accumulates a request, parses its start
// line and headers, and applies the matching body-length strategy (fixed
// or chunked) before handing a complete Request to the owner. A request
// with neither Content-Length nor chunked Transfer-Encoding has no body;
// the until-close mode has a decoder state, but parseHead never selects it.
package httpframe

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/runner365/voiceagent/internal/buffer"
)

// Request is one parsed HTTP/1.1 request.
type Request struct {
	Method  string
	Target  string
	Version string
	Headers http.Header
	Body    []byte
}

// Response is what a handler produces; the framer serializes it onto the
// wire.
type Response struct {
	Status  int
	Reason  string
	Headers http.Header
	Body    []byte
}

// ProtocolError marks a malformed start line, header, or chunk encoding.
// It is fatal for the connection: the caller must close after observing it.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "httpframe: protocol error: " + e.Reason }

type bodyMode int

const (
	bodyNone bodyMode = iota
	bodyFixed
	bodyChunked
	bodyUntilClose
)

// Decoder accumulates bytes for a single connection and emits complete
// Requests. It has no knowledge of sockets; Feed is called with whatever
// bytes arrived, and step() parses out one Request at a time.
type Decoder struct {
	buf *buffer.Buffer

	headersDone bool
	req         Request
	mode        bodyMode
	fixedLen    int

	chunkState   chunkState
	chunkSize    int
	chunkScratch bytes.Buffer
	bodyScratch  bytes.Buffer
}

type chunkState int

const (
	chunkReadSize chunkState = iota
	chunkReadData
	chunkReadDataCRLF
	chunkReadTrailerCRLF
)

// NewDecoder returns a Decoder ready to accept the start of a new request.
func NewDecoder() *Decoder {
	return &Decoder{buf: buffer.New()}
}

// Feed appends newly-read bytes and returns as many complete requests as
// can now be parsed out of the stream. A non-nil error is fatal; the
// connection must be closed without attempting to recover the stream.
func (d *Decoder) Feed(data []byte) ([]Request, error) {
	d.buf.Append(data)

	var out []Request
	for {
		req, ok, err := d.step()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, req)
	}
}

func (d *Decoder) step() (Request, bool, error) {
	if !d.headersDone {
		idx := bytes.Index(d.buf.Data(), []byte("\r\n\r\n"))
		if idx < 0 {
			return Request{}, false, nil
		}
		head := append([]byte(nil), d.buf.Data()[:idx]...)
		d.buf.Consume(idx + 4)

		req, mode, fixedLen, err := parseHead(head)
		if err != nil {
			return Request{}, false, err
		}
		d.req = req
		d.mode = mode
		d.fixedLen = fixedLen
		d.headersDone = true
		d.bodyScratch.Reset()
		d.chunkState = chunkReadSize
	}

	switch d.mode {
	case bodyNone:
		return d.finish(), true, nil

	case bodyFixed:
		need := d.fixedLen - d.bodyScratch.Len()
		avail := d.buf.Data()
		if len(avail) < need {
			d.bodyScratch.Write(avail)
			d.buf.Consume(len(avail))
			return Request{}, false, nil
		}
		d.bodyScratch.Write(avail[:need])
		d.buf.Consume(need)
		return d.finish(), true, nil

	case bodyUntilClose:
		// Until-close bodies are only resolved by the transport signalling
		// EOF; the caller is expected to call FinishUntilClose() at that point. Feed
		// just keeps buffering.
		avail := d.buf.Data()
		d.bodyScratch.Write(avail)
		d.buf.Consume(len(avail))
		return Request{}, false, nil

	case bodyChunked:
		return d.stepChunked()
	}
	return Request{}, false, nil
}

func (d *Decoder) stepChunked() (Request, bool, error) {
	for {
		switch d.chunkState {
		case chunkReadSize:
			data := d.buf.Data()
			idx := bytes.Index(data, []byte("\r\n"))
			if idx < 0 {
				if len(data) > 64 {
					return Request{}, false, &ProtocolError{Reason: "chunk size line too long"}
				}
				return Request{}, false, nil
			}
			line := data[:idx]
			if semi := bytes.IndexByte(line, ';'); semi >= 0 {
				line = line[:semi]
			}
			size, err := strconv.ParseUint(strings.TrimSpace(string(line)), 16, 32)
			if err != nil {
				return Request{}, false, &ProtocolError{Reason: "unparseable chunk size: " + err.Error()}
			}
			d.buf.Consume(idx + 2)
			d.chunkSize = int(size)
			if d.chunkSize == 0 {
				d.chunkState = chunkReadTrailerCRLF
			} else {
				d.chunkState = chunkReadData
			}

		case chunkReadData:
			data := d.buf.Data()
			if len(data) < d.chunkSize {
				return Request{}, false, nil
			}
			d.bodyScratch.Write(data[:d.chunkSize])
			d.buf.Consume(d.chunkSize)
			d.chunkState = chunkReadDataCRLF

		case chunkReadDataCRLF:
			data := d.buf.Data()
			if len(data) < 2 {
				return Request{}, false, nil
			}
			if data[0] != '\r' || data[1] != '\n' {
				return Request{}, false, &ProtocolError{Reason: "malformed chunk terminator"}
			}
			d.buf.Consume(2)
			d.chunkState = chunkReadSize

		case chunkReadTrailerCRLF:
			data := d.buf.Data()
			if len(data) < 2 {
				return Request{}, false, nil
			}
			if data[0] != '\r' || data[1] != '\n' {
				return Request{}, false, &ProtocolError{Reason: "malformed final chunk terminator"}
			}
			d.buf.Consume(2)
			return d.finish(), true, nil
		}
	}
}

// FinishUntilClose is called by the owning connection when the transport
// observes EOF while a bodyUntilClose request is in progress.
func (d *Decoder) FinishUntilClose() (Request, bool) {
	if !d.headersDone || d.mode != bodyUntilClose {
		return Request{}, false
	}
	return d.finish(), true
}

func (d *Decoder) finish() Request {
	req := d.req
	req.Body = append([]byte(nil), d.bodyScratch.Bytes()...)
	d.headersDone = false
	d.bodyScratch.Reset()
	d.req = Request{}
	return req
}

func parseHead(head []byte) (Request, bodyMode, int, error) {
	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return Request{}, bodyNone, 0, &ProtocolError{Reason: "empty start line"}
	}

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 {
		return Request{}, bodyNone, 0, &ProtocolError{Reason: "malformed start line: " + lines[0]}
	}

	req := Request{
		Method:  parts[0],
		Target:  parts[1],
		Version: parts[2],
		Headers: make(http.Header),
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return Request{}, bodyNone, 0, &ProtocolError{Reason: "malformed header line: " + line}
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimLeft(line[idx+1:], " ")
		req.Headers.Add(key, val)
	}

	mode := bodyNone
	fixedLen := 0

	if te := req.Headers.Get("Transfer-Encoding"); strings.EqualFold(te, "chunked") {
		mode = bodyChunked
	} else if cl := req.Headers.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return Request{}, bodyNone, 0, &ProtocolError{Reason: "invalid Content-Length: " + cl}
		}
		if n > 0 {
			mode = bodyFixed
			fixedLen = n
		}
	}

	return req, mode, fixedLen, nil
}

// EncodeResponse serializes resp as an HTTP/1.1 response. Content-Length is
// set automatically from len(Body) unless already present.
func EncodeResponse(resp Response) []byte {
	if resp.Reason == "" {
		resp.Reason = statusText(resp.Status)
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", resp.Status, resp.Reason)

	if resp.Headers == nil {
		resp.Headers = make(http.Header)
	}
	if resp.Headers.Get("Content-Length") == "" {
		resp.Headers.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	}
	for key, vals := range resp.Headers {
		for _, v := range vals {
			fmt.Fprintf(&b, "%s: %s\r\n", key, v)
		}
	}
	b.WriteString("\r\n")
	b.Write(resp.Body)
	return b.Bytes()
}

func statusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 101:
		return "Switching Protocols"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	default:
		return "Unknown"
	}
}
