package httpx

import (
	"context"
	"io"
	"net/url"
)

// Request represents an inbound HTTP/1.1 request.
//
// Body streams the message body as it arrives on the connection; it is
// valid until the handler returns. ContentLength is -1 when the framing
// does not declare a length (chunked, upgrade). For chunked requests,
// trailer fields appear in Header once the body has been read to EOF.
type Request struct {
	Method        string
	URL           *url.URL
	RequestURI    string
	Proto         string
	Header        Header
	Body          io.ReadCloser
	Host          string
	ContentLength int64
	ctx           context.Context
	// RequestID is the server-generated identifier for this request.
	RequestID string
	// CorrelationID is an ID propagated by the peer (X-Request-ID).
	CorrelationID string
	// TraceID/SpanID/ParentSpanID carry W3C trace context, set only when
	// an inbound traceparent header was present and valid. TraceID and
	// ParentSpanID come from that header; SpanID is generated by the
	// server for its side of the request.
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// Context returns the request's context. If nil, returns Background.
func (r *Request) Context() context.Context {
	if r == nil || r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context changed to ctx.
func WithContext(r *Request, ctx context.Context) *Request {
	if r == nil {
		return nil
	}
	r2 := *r
	r2.ctx = ctx
	return &r2
}
