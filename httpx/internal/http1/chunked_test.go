package http1

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"dqx0.com/go/httpbody/httpx/internal/pipe"
)

func newChunkedTestBody(t *testing.T, src io.Reader) (*Body, *testControl) {
	t.Helper()
	in := pipe.NewReader(src)
	return newTestBodyIn(t, in)
}

func newTestBodyIn(t *testing.T, in *pipe.Reader) (*Body, *testControl) {
	t.Helper()
	hdr := hdrWith("Transfer-Encoding", "chunked")
	ctl := &testControl{hdr: hdr}
	b, err := NewBody("HTTP/1.1", hdr, in, ctl)
	if err != nil {
		t.Fatalf("NewBody: %v", err)
	}
	return b, ctl
}

func readAllBody(t *testing.T, b *Body) (string, error) {
	t.Helper()
	var sb strings.Builder
	_, err := b.WriteTo(context.Background(), &sb)
	return sb.String(), err
}

func TestChunked_Reassembly(t *testing.T) {
	b, _ := newChunkedTestBody(t, strings.NewReader("4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"))
	got, err := readAllBody(t, b)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if got != "Wikipedia" {
		t.Fatalf("body=%q, want Wikipedia", got)
	}
}

func TestChunked_FragmentationInvariance(t *testing.T) {
	wire := "4\r\nWiki\r\n5\r\npedia\r\nC;ext=1\r\n in chunks\r\n\r\n0\r\nX-T: v\r\n\r\n"
	const want = "Wikipedia in chunks\r\n"

	t.Run("byte by byte", func(t *testing.T) {
		var frags [][]byte
		for i := 0; i < len(wire); i++ {
			frags = append(frags, []byte{wire[i]})
		}
		b, ctl := newChunkedTestBody(t, &fragmentedSource{frags: frags})
		got, err := readAllBody(t, b)
		if err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		if got != want {
			t.Fatalf("body=%q, want %q", got, want)
		}
		if ctl.continues != 1 {
			t.Fatalf("continues=%d, want 1", ctl.continues)
		}
		if v := ctl.hdr["X-T"]; len(v) != 1 || v[0] != "v" {
			t.Fatalf("trailer not appended: %v", ctl.hdr)
		}
	})

	t.Run("every two-way split", func(t *testing.T) {
		for cut := 1; cut < len(wire); cut++ {
			src := &fragmentedSource{frags: [][]byte{[]byte(wire[:cut]), []byte(wire[cut:])}}
			b, _ := newChunkedTestBody(t, src)
			got, err := readAllBody(t, b)
			if err != nil {
				t.Fatalf("cut=%d: %v", cut, err)
			}
			if got != want {
				t.Fatalf("cut=%d: body=%q", cut, got)
			}
		}
	})
}

func TestChunked_Extension(t *testing.T) {
	b, _ := newChunkedTestBody(t, strings.NewReader("5;name=value\r\nhello\r\n0\r\n\r\n"))
	got, err := readAllBody(t, b)
	if err != nil || got != "hello" {
		t.Fatalf("body=%q err=%v", got, err)
	}
}

func TestChunked_ExtensionEmbeddedCR(t *testing.T) {
	// A CR inside extension text that is not followed by LF is kept as
	// extension text; scanning continues.
	b, _ := newChunkedTestBody(t, strings.NewReader("5;a=\rb\r\nhello\r\n0\r\n\r\n"))
	got, err := readAllBody(t, b)
	if err != nil || got != "hello" {
		t.Fatalf("body=%q err=%v", got, err)
	}
}

func TestChunked_ZeroExtension(t *testing.T) {
	b, _ := newChunkedTestBody(t, strings.NewReader("0;done\r\n\r\n"))
	got, err := readAllBody(t, b)
	if err != nil || got != "" {
		t.Fatalf("body=%q err=%v", got, err)
	}
}

func TestChunked_TrailerHeaders(t *testing.T) {
	b, ctl := newChunkedTestBody(t, strings.NewReader("0\r\nX-Trailer: v\r\nX-Other: w\r\n\r\n"))
	got, err := readAllBody(t, b)
	if err != nil || got != "" {
		t.Fatalf("body=%q err=%v", got, err)
	}
	if v := ctl.hdr["X-Trailer"]; len(v) != 1 || v[0] != "v" {
		t.Fatalf("X-Trailer=%v", ctl.hdr["X-Trailer"])
	}
	if v := ctl.hdr["X-Other"]; len(v) != 1 || v[0] != "w" {
		t.Fatalf("X-Other=%v", ctl.hdr["X-Other"])
	}
}

func TestChunked_EmptyBodyNoTrailers(t *testing.T) {
	next := "GET /next HTTP/1.1\r\n\r\n"
	in := pipe.NewReaderBytes([]byte("0\r\n\r\n"+next), strings.NewReader(""))
	b, ctl := newTestBodyIn(t, in)
	if err := b.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := string(in.Buffered()); got != next {
		t.Fatalf("cursor off after trailerless end: %q", got)
	}
	if ctl.continues != 0 {
		t.Fatalf("continues=%d, want 0", ctl.continues)
	}
}

func TestChunked_DrainPositionsAfterTrailers(t *testing.T) {
	next := "PUT /n HTTP/1.1\r\n\r\n"
	wire := "3\r\nabc\r\n0\r\nX-T: 1\r\n\r\n"
	in := pipe.NewReaderBytes([]byte(wire+next), strings.NewReader(""))
	b, _ := newTestBodyIn(t, in)
	if err := b.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := string(in.Buffered()); got != next {
		t.Fatalf("cursor off after trailers: %q", got)
	}
}

func TestChunked_BadSuffix(t *testing.T) {
	b, _ := newChunkedTestBody(t, strings.NewReader("3\r\nabcXY0\r\n\r\n"))
	_, err := readAllBody(t, b)
	var rej *RequestRejectedError
	if !errors.As(err, &rej) || rej.Reason != RejectBadChunkSuffix {
		t.Fatalf("err=%v, want BadChunkSuffix", err)
	}
}

func TestChunked_BadSizeData(t *testing.T) {
	for _, wire := range []string{"zz\r\n", "5 \r\nhello\r\n", "3\rXabc\r\n"} {
		t.Run(wire, func(t *testing.T) {
			b, _ := newChunkedTestBody(t, strings.NewReader(wire))
			_, err := readAllBody(t, b)
			var rej *RequestRejectedError
			if !errors.As(err, &rej) || rej.Reason != RejectBadChunkSizeData {
				t.Fatalf("err=%v, want BadChunkSizeData", err)
			}
		})
	}
}

func TestChunked_SizeBounds(t *testing.T) {
	// FFFFFFFF fits the accumulator; the read then sees chunk data.
	b, _ := newChunkedTestBody(t, strings.NewReader("FFFFFFFF\r\nsome data"))
	buf := make([]byte, 9)
	n, err := b.Read(context.Background(), buf)
	if err != nil || string(buf[:n]) != "some data" {
		t.Fatalf("Read=%q %v", buf[:n], err)
	}
	m := b.mode.(*chunkedMode)
	if m.state != chunkData {
		t.Fatalf("state=%d, want chunkData", m.state)
	}

	// One more nibble overflows and is rejected.
	b2, _ := newChunkedTestBody(t, strings.NewReader("100000000\r\n"))
	_, err = b2.Read(context.Background(), buf)
	var rej *RequestRejectedError
	if !errors.As(err, &rej) || rej.Reason != RejectBadChunkSizeData {
		t.Fatalf("err=%v, want overflow rejection", err)
	}
}

func TestChunked_TruncatedAnywhere(t *testing.T) {
	wire := "4\r\nWiki\r\n0\r\nX-T: v\r\n\r\n"
	for cut := 0; cut < len(wire); cut++ {
		b, _ := newChunkedTestBody(t, strings.NewReader(wire[:cut]))
		_, err := readAllBody(t, b)
		var rej *RequestRejectedError
		if !errors.As(err, &rej) || rej.Reason != RejectChunkedRequestIncomplete {
			t.Fatalf("cut=%d: err=%v, want ChunkedRequestIncomplete", cut, err)
		}
	}
}

func TestChunked_ReadAcrossChunks(t *testing.T) {
	b, _ := newChunkedTestBody(t, strings.NewReader("1\r\na\r\n1\r\nb\r\n1\r\nc\r\n0\r\n\r\n"))
	got, err := io.ReadAll(readerFunc(func(p []byte) (int, error) {
		return b.Read(context.Background(), p)
	}))
	if err != nil || string(got) != "abc" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}
