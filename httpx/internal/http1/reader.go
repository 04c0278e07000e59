package http1

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"dqx0.com/go/httpbody/httpx/internal/pipe"
)

// ErrHeaderTooLarge reports a request head over the configured limit.
var ErrHeaderTooLarge = errors.New("http1: header section too large")

var errRequestLine = fmt.Errorf("%w: bad request line", ErrMalformedRequest)

// ParsedRequest is the wire-level result of reading a request head. The
// body is not read here; pass Header to NewBody to select its framing.
type ParsedRequest struct {
	Method     string
	RequestURI string
	Proto      string
	Header     map[string][]string
}

// Reader parses request heads off a connection's pipe. Because the pipe
// is shared with the body readers, everything on the connection moves
// through one buffer and one cursor.
type Reader struct {
	In *pipe.Reader
	// MaxHeaderBytes bounds the whole request head, request line
	// included. Zero means a small default.
	MaxHeaderBytes int
}

// ReadRequest parses the request line and header section. io.EOF is
// returned only when the stream ends before the first byte of a
// request, which is how a keep-alive connection signals a clean close.
func (r *Reader) ReadRequest(ctx context.Context) (*ParsedRequest, error) {
	total := 0
	line, err := r.readLine(ctx, &total, true)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, errRequestLine
	}
	method, uri, proto := parts[0], parts[1], parts[2]
	if !strings.HasPrefix(proto, "HTTP/1.") {
		return nil, errRequestLine
	}
	hdr := make(map[string][]string)
	if err := r.readHeaders(ctx, &total, hdr); err != nil {
		return nil, err
	}
	return &ParsedRequest{
		Method:     method,
		RequestURI: uri,
		Proto:      proto,
		Header:     hdr,
	}, nil
}

// readHeaders drains complete field lines from the pipe until the empty
// line, refilling when a line is split across reads.
func (r *Reader) readHeaders(ctx context.Context, total *int, hdr map[string][]string) error {
	for {
		buf := r.In.Buffered()
		consumed, done, err := ParseFieldLines(buf, hdr)
		r.In.Advance(consumed)
		*total += consumed
		if err != nil {
			return err
		}
		if r.overLimit(*total) {
			return ErrHeaderTooLarge
		}
		if done {
			return nil
		}
		if r.overLimit(*total + len(r.In.Buffered())) {
			return ErrHeaderTooLarge
		}
		if r.In.Completed() {
			return io.ErrUnexpectedEOF
		}
		if err := r.In.More(ctx); err != nil {
			return err
		}
	}
}

// readLine reads one CRLF-terminated line. With first set, end of
// stream before any byte is io.EOF rather than a parse error.
func (r *Reader) readLine(ctx context.Context, total *int, first bool) (string, error) {
	for {
		buf := r.In.Buffered()
		if j := bytes.IndexByte(buf, '\n'); j >= 0 {
			if j == 0 || buf[j-1] != '\r' {
				return "", errBareLF
			}
			line := string(buf[:j-1])
			r.In.Advance(j + 1)
			*total += j + 1
			if r.overLimit(*total) {
				return "", ErrHeaderTooLarge
			}
			return line, nil
		}
		if r.overLimit(*total + len(buf)) {
			return "", ErrHeaderTooLarge
		}
		if r.In.Completed() {
			if first && len(buf) == 0 {
				return "", io.EOF
			}
			return "", io.ErrUnexpectedEOF
		}
		if err := r.In.More(ctx); err != nil {
			return "", err
		}
	}
}

func (r *Reader) overLimit(n int) bool {
	limit := r.MaxHeaderBytes
	if limit <= 0 {
		limit = 64 << 10
	}
	return n > limit
}
