package http1

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"dqx0.com/go/httpbody/httpx/internal/pipe"
)

func readReq(t *testing.T, raw string, maxHeader int) (*ParsedRequest, *pipe.Reader, error) {
	t.Helper()
	in := pipe.NewReader(strings.NewReader(raw))
	r := &Reader{In: in, MaxHeaderBytes: maxHeader}
	pr, err := r.ReadRequest(context.Background())
	return pr, in, err
}

func TestReader_RequestLineAndHeaders(t *testing.T) {
	raw := "POST /upload HTTP/1.1\r\nHost: x\r\ncontent-length: 5\r\n\r\nhello"
	pr, in, err := readReq(t, raw, 8<<10)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if pr.Method != "POST" || pr.RequestURI != "/upload" || pr.Proto != "HTTP/1.1" {
		t.Fatalf("request line parsed as %q %q %q", pr.Method, pr.RequestURI, pr.Proto)
	}
	// Keys are canonicalized on insert.
	if got := getHeader(pr.Header, "Content-Length"); got != "5" {
		t.Fatalf("Content-Length=%q", got)
	}
	if got := string(in.Buffered()); got != "hello" {
		t.Fatalf("body bytes disturbed: %q", got)
	}
}

func TestReader_BodyAfterHead(t *testing.T) {
	raw := "POST / HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"
	pr, in, err := readReq(t, raw, 8<<10)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	b, err := NewBody(pr.Proto, pr.Header, in, &testControl{hdr: pr.Header})
	if err != nil {
		t.Fatalf("NewBody: %v", err)
	}
	if b.ContentLength() != 5 {
		t.Fatalf("ContentLength=%d", b.ContentLength())
	}
	var sb strings.Builder
	if _, err := b.WriteTo(context.Background(), &sb); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if sb.String() != "hello" {
		t.Fatalf("body=%q", sb.String())
	}
}

func TestReader_PipelinedRequests(t *testing.T) {
	raw := "POST /a HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc" +
		"GET /b HTTP/1.1\r\nHost: y\r\n\r\n"
	in := pipe.NewReader(strings.NewReader(raw))
	r := &Reader{In: in}
	ctx := context.Background()

	pr1, err := r.ReadRequest(ctx)
	if err != nil {
		t.Fatalf("first ReadRequest: %v", err)
	}
	b, err := NewBody(pr1.Proto, pr1.Header, in, &testControl{hdr: pr1.Header})
	if err != nil {
		t.Fatalf("NewBody: %v", err)
	}
	if err := b.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	pr2, err := r.ReadRequest(ctx)
	if err != nil {
		t.Fatalf("second ReadRequest: %v", err)
	}
	if pr2.Method != "GET" || pr2.RequestURI != "/b" {
		t.Fatalf("second request parsed as %q %q", pr2.Method, pr2.RequestURI)
	}

	// A third read sees the clean end of the stream.
	if _, err := r.ReadRequest(ctx); err != io.EOF {
		t.Fatalf("third ReadRequest err=%v, want io.EOF", err)
	}
}

func TestReader_BareLFRejected(t *testing.T) {
	if _, _, err := readReq(t, "GET / HTTP/1.1\nHost: x\r\n\r\n", 8<<10); !errors.Is(err, errBareLF) {
		t.Fatalf("err=%v, want bare LF rejection", err)
	}
	if _, _, err := readReq(t, "GET / HTTP/1.1\r\nHost: x\n\r\n", 8<<10); !errors.Is(err, errBareLF) {
		t.Fatalf("header bare LF err=%v", err)
	}
}

func TestReader_InvalidHeaderName(t *testing.T) {
	if _, _, err := readReq(t, "GET / HTTP/1.1\r\nBad( : v\r\n\r\n", 8<<10); !errors.Is(err, errMalformedHeader) {
		t.Fatalf("err=%v, want malformed header", err)
	}
}

func TestReader_HeaderTooLarge(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nA: " + strings.Repeat("x", 100) + "\r\n\r\n"
	if _, _, err := readReq(t, raw, 32); !errors.Is(err, ErrHeaderTooLarge) {
		t.Fatalf("err=%v, want header too large", err)
	}
}

func TestReader_MalformedRequestLine(t *testing.T) {
	for _, raw := range []string{"GET /\r\n\r\n", "GET / SPDY/3\r\n\r\n", " / HTTP/1.1\r\n\r\n"} {
		if _, _, err := readReq(t, raw, 8<<10); !errors.Is(err, errRequestLine) {
			t.Fatalf("raw=%q err=%v, want request line error", raw, err)
		}
	}
}

func TestReader_TruncatedHead(t *testing.T) {
	if _, _, err := readReq(t, "GET / HTTP/1.1\r\nHost: x\r\n", 8<<10); err != io.ErrUnexpectedEOF {
		t.Fatalf("err=%v, want io.ErrUnexpectedEOF", err)
	}
}

func TestParseFieldLines_Incremental(t *testing.T) {
	h := make(map[string][]string)
	full := "X-A: 1\r\nX-B: 2\r\n\r\n"

	// Only a whole line is consumed; the split tail stays.
	consumed, done, err := ParseFieldLines([]byte(full[:10]), h)
	if err != nil || done {
		t.Fatalf("partial parse: consumed=%d done=%v err=%v", consumed, done, err)
	}
	if consumed != len("X-A: 1\r\n") {
		t.Fatalf("consumed=%d, want %d", consumed, len("X-A: 1\r\n"))
	}
	consumed2, done, err := ParseFieldLines([]byte(full[consumed:]), h)
	if err != nil || !done {
		t.Fatalf("rest parse: done=%v err=%v", done, err)
	}
	if consumed+consumed2 != len(full) {
		t.Fatalf("total consumed=%d, want %d", consumed+consumed2, len(full))
	}
	if h["X-A"][0] != "1" || h["X-B"][0] != "2" {
		t.Fatalf("headers=%v", h)
	}
}

func TestParseFieldLines_SanitizesValue(t *testing.T) {
	h := make(map[string][]string)
	_, done, err := ParseFieldLines([]byte("X-A: a\x00b\tc\r\n\r\n"), h)
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if got := h["X-A"][0]; got != "ab\tc" {
		t.Fatalf("value=%q, want control bytes stripped, HTAB kept", got)
	}
}
