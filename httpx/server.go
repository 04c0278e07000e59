package httpx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"dqx0.com/go/httpbody/httpx/internal/http1"
	"dqx0.com/go/httpbody/httpx/internal/pipe"
	"dqx0.com/go/httpbody/internal/obs"
)

type Handler interface {
	ServeHTTP(ResponseWriter, *Request)
}

type HandlerFunc func(ResponseWriter, *Request)

func (f HandlerFunc) ServeHTTP(w ResponseWriter, r *Request) {
	f(w, r)
}

type ResponseWriter interface {
	Header() Header
	Write([]byte) (int, error)
	WriteHeader(status int)
}

type Server struct {
	Addr              string
	Handler           Handler
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	Logger obs.Logger
	Meter  obs.Meter
}

func (s *Server) ListenAndServe() error {
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Serve(l net.Listener) error {
	defer l.Close()
	for {
		c, err := l.Accept()
		if err != nil {
			return err
		}
		go s.serveConn(c)
	}
}

// frameControl is the body reader's channel back to the connection: it
// owns the lazy 100 Continue and routes trailer fields into the
// request's header collection.
type frameControl struct {
	bw     *bufio.Writer
	expect bool // client sent Expect: 100-continue
	sent   bool
	// started reports whether the final response has begun; once it
	// has, an interim response would corrupt the stream.
	started func() bool
	hdr     map[string][]string
}

func (f *frameControl) ProduceContinue() {
	if !f.expect || f.sent {
		return
	}
	if f.started != nil && f.started() {
		return
	}
	f.sent = true
	if err := http1.WriteContinue(f.bw); err == nil {
		_ = f.bw.Flush()
	}
}

func (f *frameControl) TakeMessageHeaders(buf []byte) (int, bool, error) {
	return http1.ParseFieldLines(buf, f.hdr)
}

// requestBody adapts a *http1.Body to the io.ReadCloser handlers
// expect. Close drains the remaining body so the connection can carry
// the next request.
type requestBody struct {
	ctx  context.Context
	body *http1.Body
	read int64
	cerr error
	done bool
}

func (b *requestBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(b.ctx, p)
	b.read += int64(n)
	if err != nil && err != io.EOF {
		err = wrapRejection(err)
	}
	return n, err
}

func (b *requestBody) Close() error {
	if b.done {
		return b.cerr
	}
	b.done = true
	b.cerr = wrapRejection(b.body.Drain(b.ctx))
	return b.cerr
}

// connResponseWriter streams the response. For HTTP/1.1 keep-alive
// responses without a Content-Length it switches to chunked encoding.
type connResponseWriter struct {
	bw        *bufio.Writer
	proto     string
	keepAlive bool
	status    int
	wroteHdr  bool
	chunked   bool
	hdr       Header
}

func (w *connResponseWriter) Header() Header {
	if w.hdr == nil {
		w.hdr = Header{}
	}
	return w.hdr
}

func (w *connResponseWriter) decideChunked() bool {
	if strings.EqualFold(w.hdr.Get("Connection"), "close") {
		w.keepAlive = false
	}
	hasCL := w.hdr.Get("Content-Length") != ""
	return w.proto == "HTTP/1.1" && w.keepAlive && !hasCL
}

func (w *connResponseWriter) startIfNeeded() error {
	if w.wroteHdr {
		return nil
	}
	if w.status == 0 {
		w.status = 200
	}
	w.chunked = w.decideChunked()
	if w.hdr != nil {
		w.hdr.Del("Connection")
	}
	hdrMap := map[string][]string(w.hdr)
	ka := w.keepAlive && (w.chunked || w.hdr.Get("Content-Length") != "")
	if err := http1.StartResponse(w.bw, w.status, "", hdrMap, w.chunked, ka); err != nil {
		return err
	}
	w.wroteHdr = true
	return nil
}

func (w *connResponseWriter) WriteHeader(status int) {
	if w.wroteHdr {
		return
	}
	if status == 0 {
		status = 200
	}
	w.status = status
	_ = w.startIfNeeded() // best-effort; error surfaces on Flush
}

func (w *connResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHdr {
		if err := w.startIfNeeded(); err != nil {
			return 0, err
		}
	}
	if w.chunked {
		n, err := http1.WriteChunked(w.bw, p)
		if err != nil {
			return n, err
		}
		if err := w.bw.Flush(); err != nil {
			return n, err
		}
		return n, nil
	}
	return w.bw.Write(p)
}

func (w *connResponseWriter) Flush() error {
	if !w.wroteHdr {
		if err := w.startIfNeeded(); err != nil {
			return err
		}
	}
	return w.bw.Flush()
}

func (s *Server) serveConn(c net.Conn) {
	defer c.Close()
	ctx := context.Background()
	in := pipe.NewReader(c)
	bw := bufio.NewWriter(c)
	rr := &http1.Reader{In: in, MaxHeaderBytes: s.MaxHeaderBytes}
	for {
		if s.ReadHeaderTimeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(s.ReadHeaderTimeout))
		}
		pr, err := rr.ReadRequest(ctx)
		if err != nil {
			s.badHead(bw, err)
			return
		}
		hdr := Header(pr.Header)
		s.count("httpx_requests_total", 1)

		fc := &frameControl{
			bw:     bw,
			expect: strings.EqualFold(hdr.Get("Expect"), "100-continue"),
			hdr:    pr.Header,
		}
		body, err := http1.NewBody(pr.Proto, pr.Header, in, fc)
		if err != nil {
			s.reject(bw, wrapRejection(err), nil)
			return
		}

		if s.ReadTimeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		} else {
			_ = c.SetReadDeadline(time.Time{})
		}

		r := s.buildRequest(ctx, pr, hdr)
		rb := &requestBody{ctx: r.Context(), body: body}
		r.Body = rb
		r.ContentLength = body.ContentLength()

		srw := &connResponseWriter{bw: bw, proto: pr.Proto, keepAlive: body.KeepAlive(), hdr: Header{}}
		fc.started = func() bool { return srw.wroteHdr }

		h := s.Handler
		if h == nil {
			h = HandlerFunc(func(w ResponseWriter, r *Request) {
				w.WriteHeader(404)
				w.Write([]byte("not found"))
			})
		}
		h.ServeHTTP(srw, r)

		// Satisfy the request framing before the connection is reused.
		drainErr := rb.Close()
		s.count("httpx_request_body_bytes", float64(rb.read))
		if drainErr != nil {
			s.reject(bw, drainErr, srw)
			return
		}

		if s.WriteTimeout > 0 {
			_ = c.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
		}
		if srw.chunked {
			if err := http1.EndChunked(bw); err != nil {
				return
			}
		}
		if err := bw.Flush(); err != nil {
			return
		}

		framed := srw.chunked || srw.hdr.Get("Content-Length") != "" || noResponseBody(srw.status, r.Method)
		if !(body.KeepAlive() && srw.keepAlive && framed) {
			return
		}
		if s.IdleTimeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		} else if s.ReadTimeout > 0 {
			_ = c.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		} else {
			_ = c.SetReadDeadline(time.Time{})
		}
	}
}

func (s *Server) buildRequest(ctx context.Context, pr *http1.ParsedRequest, hdr Header) *Request {
	var u *url.URL
	if strings.HasPrefix(pr.RequestURI, "http://") || strings.HasPrefix(pr.RequestURI, "https://") {
		u, _ = url.Parse(pr.RequestURI)
	} else {
		u, _ = url.ParseRequestURI(pr.RequestURI)
	}
	r := &Request{
		Method:     pr.Method,
		URL:        u,
		RequestURI: pr.RequestURI,
		Proto:      pr.Proto,
		Header:     hdr,
		Host:       hdr.Get("Host"),
		RequestID:  genID(),
	}
	rctx := WithRequestID(ctx, r.RequestID)
	if cid := hdr.Get("X-Request-Id"); cid != "" {
		r.CorrelationID = cid
		rctx = WithCorrelationID(rctx, cid)
	}
	if tid, sid, flags, ok := parseTraceparent(hdr.Get("Traceparent")); ok {
		r.TraceID = tid
		r.ParentSpanID = sid
		r.SpanID = genSpanID()
		rctx = WithTrace(rctx, Trace{TraceID: tid, SpanID: r.SpanID, ParentSpanID: sid, Flags: flags})
	}
	return WithContext(r, rctx)
}

// badHead answers a failed request-head read: nothing for a clean close
// or a transport fault, 431 for an oversized head, 400 for anything the
// parser refused.
func (s *Server) badHead(bw *bufio.Writer, err error) {
	status := 0
	switch {
	case errors.Is(err, io.EOF):
		return // clean close between requests
	case errors.Is(err, http1.ErrHeaderTooLarge):
		err = fmt.Errorf("%w: %w", ErrHeaderTooLarge, err)
		status = 431
	case errors.Is(err, http1.ErrMalformedRequest), errors.Is(err, io.ErrUnexpectedEOF):
		err = fmt.Errorf("%w: %w", ErrProtocolViolation, err)
		status = 400
	}
	s.logf(obs.Warn, "read request: %v", err)
	if status == 0 {
		return // transport fault; no response can help
	}
	_ = http1.WriteResponse(bw, status, "", map[string][]string{"Content-Length": {"0"}}, nil, false)
	_ = bw.Flush()
}

// reject answers a framing violation: best-effort 400 when the response
// has not begun, then close. Transport faults take the same path minus
// the response. err is expected to be wrapped by wrapRejection already.
func (s *Server) reject(bw *bufio.Writer, err error, srw *connResponseWriter) {
	var rej *http1.RequestRejectedError
	if errors.As(err, &rej) {
		s.logf(obs.Warn, "request rejected: %v", err)
		s.count("httpx_request_rejections_total", 1, obs.Label{Key: "reason", Value: rej.Reason.String()})
		if srw == nil || !srw.wroteHdr {
			_ = http1.WriteResponse(bw, 400, "", map[string][]string{"Content-Length": {"0"}}, nil, false)
		}
		_ = bw.Flush()
		return
	}
	s.logf(obs.Error, "request body: %v", err)
}

func (s *Server) logf(level obs.Level, format string, args ...interface{}) {
	if s.Logger == nil {
		return
	}
	s.Logger.Logf(level, format, args...)
}

func (s *Server) count(name string, v float64, labels ...obs.Label) {
	if s.Meter == nil {
		return
	}
	s.Meter.Counter(name, v, labels...)
}

func noResponseBody(status int, method string) bool {
	if method == "HEAD" {
		return true
	}
	if status >= 100 && status < 200 {
		return true
	}
	return status == 204 || status == 304
}
