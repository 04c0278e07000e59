// Package pipe provides the buffered input the HTTP/1.1 wire layer reads
// from. One Reader wraps one connection; request-line, headers, bodies and
// trailers of every request on that connection share its buffer and cursor.
//
// The consumer borrows views via Buffered and releases bytes via Advance.
// A view is valid only until the next Advance or More call. Unconsumed
// bytes stay pinned in the buffer, which is what throttles a fast peer
// against a slow consumer: the Reader does not issue another source read
// until the consumer asks for more.
package pipe

import (
	"context"
	"io"
)

const readChunk = 4 << 10

// Reader buffers bytes from a source connection and hands out contiguous
// views of the not-yet-consumed range. It is not safe for concurrent use;
// one goroutine owns a connection and its Reader.
type Reader struct {
	src       io.Reader
	buf       []byte
	r         int // start of unconsumed range in buf
	completed bool
	err       error
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// NewReaderBytes returns a Reader whose buffer is pre-seeded with b and
// whose source is src. Used by tests and by callers that already hold
// bytes read ahead of the current parse position.
func NewReaderBytes(b []byte, src io.Reader) *Reader {
	return &Reader{src: src, buf: append([]byte(nil), b...)}
}

// Buffered returns the current unconsumed view. The slice aliases the
// internal buffer and is invalidated by the next Advance or More.
func (p *Reader) Buffered() []byte { return p.buf[p.r:] }

// Completed reports whether the source has reached end of stream. Bytes
// may still be Buffered after completion.
func (p *Reader) Completed() bool { return p.completed }

// Advance releases n consumed bytes. n must not exceed len(Buffered()).
func (p *Reader) Advance(n int) {
	if n < 0 || n > len(p.buf)-p.r {
		panic("pipe: advance beyond buffered data")
	}
	p.r += n
	if p.r == len(p.buf) {
		// Whole buffer consumed; reset so the backing array is reused.
		p.buf = p.buf[:0]
		p.r = 0
	}
}

// More is the suspension point: it blocks in the source until at least one
// byte beyond the current buffer arrives, or the stream completes. It
// returns nil in both cases; the caller distinguishes them via Completed.
// A source error other than EOF is returned as-is, and again on every
// later call.
func (p *Reader) More(ctx context.Context) error {
	if p.err != nil {
		return p.err
	}
	if p.completed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		p.err = err
		return err
	}
	p.compact()
	if free := cap(p.buf) - len(p.buf); free < readChunk {
		grown := make([]byte, len(p.buf), len(p.buf)+readChunk)
		copy(grown, p.buf)
		p.buf = grown
	}
	n, err := p.src.Read(p.buf[len(p.buf):cap(p.buf)])
	p.buf = p.buf[:len(p.buf)+n]
	if err == io.EOF {
		p.completed = true
		return nil
	}
	if err != nil {
		p.err = err
		return err
	}
	if n == 0 {
		// A conforming Reader returns n > 0 or an error; guard anyway.
		return p.More(ctx)
	}
	return nil
}

// Peek returns the current view, pulling from the source first if nothing
// is buffered. An empty view with Completed() true means end of stream.
func (p *Reader) Peek(ctx context.Context) ([]byte, error) {
	if len(p.Buffered()) == 0 && !p.completed {
		if err := p.More(ctx); err != nil {
			return nil, err
		}
	}
	return p.Buffered(), nil
}

func (p *Reader) compact() {
	if p.r == 0 {
		return
	}
	n := copy(p.buf, p.buf[p.r:])
	p.buf = p.buf[:n]
	p.r = 0
}
