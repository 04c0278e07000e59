package http1

import (
	"context"
	"io"
	"strconv"
	"strings"

	"dqx0.com/go/httpbody/httpx/internal/pipe"
)

// Control is the body reader's channel back to the connection: interim
// responses and trailer-header parsing. Implemented by the server's
// per-request frame control.
type Control interface {
	// ProduceContinue writes the 100 Continue interim response if the
	// request asked for one and the final response has not begun.
	// Called at most once per request, best-effort.
	ProduceContinue()

	// TakeMessageHeaders parses complete trailer field lines from buf
	// into the request's header collection. It consumes only whole
	// lines; done reports whether the terminating empty line was seen.
	TakeMessageHeaders(buf []byte) (consumed int, done bool, err error)
}

// Body reads one request's message body off the connection's pipe,
// honoring the framing the request headers selected. Zero or one Body
// exists per request; it must be drained (or the connection abandoned)
// before the next request is parsed.
//
// Body is not safe for concurrent use.
type Body struct {
	in  *pipe.Reader
	ctl Control

	mode          bodyMode
	keepAlive     bool
	contentLength int64

	continuePending bool
	err             error // terminal: rejection or transport fault
}

// bodyMode is the framing-specific half of a Body: one of identityMode,
// fixedMode, chunkedMode.
type bodyMode interface {
	// peek returns the next payload view, empty at end of body. It may
	// suspend via b.await and reject via b.fail.
	peek(ctx context.Context, b *Body) ([]byte, error)
	// onConsumed is told how many peeked bytes the caller took, after
	// the pipe cursor has advanced past them.
	onConsumed(n int)
}

// NewBody selects the framing for a request and returns its body reader.
// hdr must hold canonicalized keys, as produced by ReadRequest. The only
// error returned is a *RequestRejectedError for an unparsable
// Content-Length; no reader exists in that case.
func NewBody(proto string, hdr map[string][]string, in *pipe.Reader, ctl Control) (*Body, error) {
	b := &Body{in: in, ctl: ctl, continuePending: true}
	b.keepAlive = proto != "HTTP/1.0"

	if conn := getHeader(hdr, "Connection"); conn != "" {
		if strings.EqualFold(conn, "upgrade") {
			// The remainder of the connection is the body.
			b.keepAlive = false
			b.contentLength = -1
			b.mode = identityMode{}
			return b, nil
		}
		b.keepAlive = strings.EqualFold(conn, "keep-alive")
	}

	if getHeader(hdr, "Transfer-Encoding") != "" {
		// The outermost coding is taken to be chunked; the header
		// parser is responsible for stricter TE validation.
		b.contentLength = -1
		b.mode = &chunkedMode{}
		return b, nil
	}

	if v := getHeader(hdr, "Content-Length"); v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, &RequestRejectedError{Reason: RejectInvalidContentLength, Detail: v}
		}
		b.contentLength = int64(n)
		b.mode = &fixedMode{remaining: n}
		return b, nil
	}

	b.mode = &fixedMode{}
	return b, nil
}

// KeepAlive is the framing selector's verdict on whether the connection
// may carry another request after this body.
func (b *Body) KeepAlive() bool { return b.keepAlive }

// ContentLength is the declared body length, or -1 when the framing does
// not declare one (chunked, upgrade).
func (b *Body) ContentLength() int64 { return b.contentLength }

// Read copies the next payload bytes into p. It returns io.EOF once the
// body is exhausted. Bytes already buffered are returned without
// touching the connection.
func (b *Body) Read(ctx context.Context, p []byte) (int, error) {
	seg, err := b.peek(ctx)
	if err != nil {
		return 0, err
	}
	if len(seg) == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	n := copy(p, seg)
	b.consume(n)
	return n, nil
}

// WriteTo streams the whole body into dst. A segment handed to dst is
// reported consumed even when the write fails, so a retried request
// cannot see the same bytes twice; the write error is then returned.
func (b *Body) WriteTo(ctx context.Context, dst io.Writer) (int64, error) {
	var total int64
	for {
		seg, err := b.peek(ctx)
		if err != nil {
			return total, err
		}
		if len(seg) == 0 {
			return total, nil
		}
		n, werr := dst.Write(seg)
		total += int64(n)
		b.consume(len(seg))
		if werr != nil {
			return total, werr
		}
	}
}

// Drain discards the rest of the body, leaving the pipe cursor at the
// first byte after it (after the trailers, for chunked). Required
// before the connection can be reused.
func (b *Body) Drain(ctx context.Context) error {
	for {
		seg, err := b.peek(ctx)
		if err != nil {
			return err
		}
		if len(seg) == 0 {
			return nil
		}
		b.consume(len(seg))
	}
}

func (b *Body) peek(ctx context.Context) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	seg, err := b.mode.peek(ctx, b)
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// consume is the single write path into the pipe: release the bytes the
// caller took, then let the mode update its counters.
func (b *Body) consume(n int) {
	b.in.Advance(n)
	b.mode.onConsumed(n)
}

// await suspends until the pipe holds more bytes than it does now, or
// reports completion. The first suspension of the request produces the
// 100 Continue interim response.
func (b *Body) await(ctx context.Context) error {
	if b.continuePending {
		b.continuePending = false
		if b.ctl != nil {
			b.ctl.ProduceContinue()
		}
	}
	if err := b.in.More(ctx); err != nil {
		b.err = err
		return err
	}
	return nil
}

// fail records a terminal rejection and returns it. Every later
// operation on the Body returns the same error.
func (b *Body) fail(reason RejectReason, detail string) error {
	e := &RequestRejectedError{Reason: reason, Detail: detail}
	b.err = e
	return e
}

// identityMode delivers the remainder of the connection: end of body is
// end of stream. Used for upgraded connections.
type identityMode struct{}

func (identityMode) peek(ctx context.Context, b *Body) ([]byte, error) {
	for {
		if seg := b.in.Buffered(); len(seg) > 0 {
			return seg, nil
		}
		if b.in.Completed() {
			return nil, nil
		}
		if err := b.await(ctx); err != nil {
			return nil, err
		}
	}
}

func (identityMode) onConsumed(int) {}

// fixedMode delivers exactly remaining more bytes, the Content-Length
// framing.
type fixedMode struct {
	remaining uint64
}

func (m *fixedMode) peek(ctx context.Context, b *Body) ([]byte, error) {
	if m.remaining == 0 {
		return nil, nil
	}
	for {
		seg := b.in.Buffered()
		if len(seg) > 0 {
			if uint64(len(seg)) > m.remaining {
				seg = seg[:m.remaining]
			}
			return seg, nil
		}
		if b.in.Completed() {
			return nil, b.fail(RejectUnexpectedEndOfRequestContent, "")
		}
		if err := b.await(ctx); err != nil {
			return nil, err
		}
	}
}

func (m *fixedMode) onConsumed(n int) {
	// peek clamps to remaining, so n never exceeds it.
	m.remaining -= uint64(n)
}

func getHeader(h map[string][]string, key string) string {
	if vv, ok := h[key]; ok && len(vv) > 0 {
		return vv[0]
	}
	return ""
}
