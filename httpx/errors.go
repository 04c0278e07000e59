package httpx

import (
	"errors"
	"fmt"

	"dqx0.com/go/httpbody/httpx/internal/http1"
)

var (
	// ErrBadRequest matches every protocol-level rejection a handler can
	// observe from the request body.
	ErrBadRequest = errors.New("httpx: bad request")
	// ErrHeaderTooLarge matches a request head over Server.MaxHeaderBytes;
	// the server answers it with 431.
	ErrHeaderTooLarge = errors.New("httpx: header too large")
	// ErrBodyIncomplete matches the subset of rejections where the peer
	// stopped sending mid-body (truncated content or chunk framing).
	ErrBodyIncomplete = errors.New("httpx: request body incomplete")
	// ErrProtocolViolation matches a request head the parser could not
	// accept at all.
	ErrProtocolViolation = errors.New("httpx: protocol violation")
)

// wrapRejection ties a wire-level framing rejection to the package
// sentinels, so handler code can use errors.Is without importing the
// wire layer. Truncation reasons match ErrBodyIncomplete in addition to
// ErrBadRequest; non-rejection errors pass through untouched.
func wrapRejection(err error) error {
	var rej *http1.RequestRejectedError
	if err == nil || !errors.As(err, &rej) {
		return err
	}
	switch rej.Reason {
	case http1.RejectUnexpectedEndOfRequestContent, http1.RejectChunkedRequestIncomplete:
		return fmt.Errorf("%w: %w: %w", ErrBadRequest, ErrBodyIncomplete, err)
	default:
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
}
