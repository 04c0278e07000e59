package http1

import (
	"bytes"
	"context"
	"fmt"
	"math"
)

// chunkState orders the phases of decoding one chunked message body.
// Transitions only move forward, except chunkSuffix reopening
// chunkPrefix for the next chunk.
type chunkState int

const (
	chunkPrefix chunkState = iota
	chunkExtension
	chunkData
	chunkSuffix
	chunkTrailer
	chunkTrailerHeaders
	chunkComplete
)

// chunkedMode decodes Transfer-Encoding: chunked incrementally. Each
// parse step looks at the pipe's buffered view and either commits a
// transition (consuming the framing bytes it decided on) or reports
// that it needs more input. Payload bytes are never consumed here; they
// are handed out as views and released when the caller reports them
// consumed.
type chunkedMode struct {
	state     chunkState
	remaining uint32 // payload bytes left in the current chunk
}

// stepResult is what one parse attempt produced.
type stepResult int

const (
	stepAdvanced stepResult = iota // state or cursor moved; run the loop again
	stepNeedMore                   // buffered bytes are inconclusive; wait
)

func (m *chunkedMode) peek(ctx context.Context, b *Body) ([]byte, error) {
	for {
		var res stepResult
		var err error
		switch m.state {
		case chunkPrefix:
			res, err = m.parsePrefix(b)
		case chunkExtension:
			res = m.parseExtension(b)
		case chunkData:
			if m.remaining == 0 {
				m.state = chunkSuffix
				continue
			}
			seg := b.in.Buffered()
			if len(seg) > 0 {
				if uint64(len(seg)) > uint64(m.remaining) {
					seg = seg[:m.remaining]
				}
				return seg, nil
			}
			res = stepNeedMore
		case chunkSuffix:
			res, err = m.parseSuffix(b)
		case chunkTrailer:
			res = m.parseTrailer(b)
		case chunkTrailerHeaders:
			res, err = m.parseTrailerHeaders(b)
		case chunkComplete:
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if res == stepNeedMore {
			if b.in.Completed() {
				return nil, b.fail(RejectChunkedRequestIncomplete, "")
			}
			if err := b.await(ctx); err != nil {
				return nil, err
			}
		}
	}
}

func (m *chunkedMode) onConsumed(n int) {
	// Data views are clamped to remaining, so n never exceeds it. When
	// the count hits zero the next peek observes it and moves to the
	// suffix.
	m.remaining -= uint32(n)
}

// parsePrefix parses the chunk-size line. The whole decision is
// committed at once: nothing is consumed until a terminator (';' or
// CRLF) is in the buffer, so a partial line can simply be re-scanned
// after the next fill.
func (m *chunkedMode) parsePrefix(b *Body) (stepResult, error) {
	buf := b.in.Buffered()
	var size uint32
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		if d, ok := unhex(c); ok {
			if size > (math.MaxUint32-uint32(d))/16 {
				return 0, b.fail(RejectBadChunkSizeData, "chunk size overflow")
			}
			size = size*16 + uint32(d)
			continue
		}
		switch c {
		case ';':
			m.remaining = size
			m.state = chunkExtension
			b.in.Advance(i + 1)
			return stepAdvanced, nil
		case '\r':
			if i+1 >= len(buf) {
				// Lone CR at the edge of the buffer is inconclusive.
				return stepNeedMore, nil
			}
			if buf[i+1] != '\n' {
				return 0, b.fail(RejectBadChunkSizeData, fmt.Sprintf("%q after CR in chunk size", buf[i+1]))
			}
			m.remaining = size
			if size > 0 {
				m.state = chunkData
			} else {
				m.state = chunkTrailer
			}
			b.in.Advance(i + 2)
			return stepAdvanced, nil
		default:
			return 0, b.fail(RejectBadChunkSizeData, fmt.Sprintf("%q in chunk size", c))
		}
	}
	return stepNeedMore, nil
}

// parseExtension skips extension text up to CRLF. Extensions are not
// interpreted. A CR not followed by LF is treated as extension text and
// scanning continues past it.
func (m *chunkedMode) parseExtension(b *Body) stepResult {
	buf := b.in.Buffered()
	i := bytes.IndexByte(buf, '\r')
	if i < 0 {
		b.in.Advance(len(buf))
		return stepNeedMore
	}
	if i+1 >= len(buf) {
		// Keep the CR; its follower decides what it is.
		b.in.Advance(i)
		return stepNeedMore
	}
	if buf[i+1] != '\n' {
		b.in.Advance(i + 1)
		return stepAdvanced
	}
	if m.remaining > 0 {
		m.state = chunkData
	} else {
		m.state = chunkTrailer
	}
	b.in.Advance(i + 2)
	return stepAdvanced
}

// parseSuffix expects exactly CRLF after the chunk payload.
func (m *chunkedMode) parseSuffix(b *Body) (stepResult, error) {
	buf := b.in.Buffered()
	if len(buf) < 2 {
		return stepNeedMore, nil
	}
	if buf[0] != '\r' || buf[1] != '\n' {
		return 0, b.fail(RejectBadChunkSuffix, fmt.Sprintf("%q", buf[:2]))
	}
	m.state = chunkPrefix
	b.in.Advance(2)
	return stepAdvanced, nil
}

// parseTrailer decides, after the zero-sized chunk, whether trailer
// headers follow. Nothing is consumed on the trailer-headers path; the
// header parser takes those bytes.
func (m *chunkedMode) parseTrailer(b *Body) stepResult {
	buf := b.in.Buffered()
	if len(buf) == 0 {
		return stepNeedMore
	}
	if buf[0] != '\r' {
		m.state = chunkTrailerHeaders
		return stepAdvanced
	}
	if len(buf) < 2 {
		return stepNeedMore
	}
	if buf[1] == '\n' {
		m.state = chunkComplete
		b.in.Advance(2)
		return stepAdvanced
	}
	m.state = chunkTrailerHeaders
	return stepAdvanced
}

// parseTrailerHeaders hands the buffered view to the connection's
// header parser, which appends parsed trailer fields to the request
// header collection. Only fully-parsed lines are consumed, so parsing
// resumes cleanly after the next fill.
func (m *chunkedMode) parseTrailerHeaders(b *Body) (stepResult, error) {
	consumed, done, err := b.ctl.TakeMessageHeaders(b.in.Buffered())
	b.in.Advance(consumed)
	if err != nil {
		b.err = err
		return 0, err
	}
	if done {
		m.state = chunkComplete
		return stepAdvanced, nil
	}
	return stepNeedMore, nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
