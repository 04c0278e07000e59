package httpx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Request identity: every inbound request gets a generated RequestID,
// and a peer-supplied X-Request-ID rides along as the correlation ID.
// Both are carried on the request context for handlers and log lines.

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyCorrelationID
)

// WithRequestID returns a new context that carries a request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFrom extracts the request ID from ctx.
func RequestIDFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKeyRequestID).(string)
	return s, ok && s != ""
}

// WithCorrelationID returns a new context that carries a correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

// CorrelationIDFrom extracts the correlation ID from ctx.
func CorrelationIDFrom(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ctxKeyCorrelationID).(string)
	return s, ok && s != ""
}

// genID returns a 32-hex request identifier.
func genID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	// Fallback to timestamp-based ID if rand fails (unlikely)
	t := time.Now().UnixNano()
	var fb [16]byte
	for i := 0; i < 16; i++ {
		fb[i] = byte(t >> (uint(i%8) * 8))
	}
	return hex.EncodeToString(fb[:])
}
