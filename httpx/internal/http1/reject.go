package http1

import (
	"errors"
	"fmt"
)

// ErrRequestRejected is the sentinel all framing rejections match via
// errors.Is. The concrete *RequestRejectedError carries the reason.
var ErrRequestRejected = errors.New("http1: request rejected")

// RejectReason classifies a protocol-level framing violation in the
// request body. A rejection is terminal: the connection cannot carry
// further requests because the parse position is no longer trustworthy.
type RejectReason int

const (
	RejectInvalidContentLength RejectReason = iota
	RejectUnexpectedEndOfRequestContent
	RejectChunkedRequestIncomplete
	RejectBadChunkSuffix
	RejectBadChunkSizeData
)

func (r RejectReason) String() string {
	switch r {
	case RejectInvalidContentLength:
		return "invalid Content-Length"
	case RejectUnexpectedEndOfRequestContent:
		return "unexpected end of request content"
	case RejectChunkedRequestIncomplete:
		return "chunked request incomplete"
	case RejectBadChunkSuffix:
		return "bad chunk suffix"
	case RejectBadChunkSizeData:
		return "bad chunk size data"
	default:
		return "protocol violation"
	}
}

// RequestRejectedError reports why the body reader aborted the request.
type RequestRejectedError struct {
	Reason RejectReason
	Detail string
}

func (e *RequestRejectedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("http1: %s: %s", e.Reason, e.Detail)
	}
	return "http1: " + e.Reason.String()
}

func (e *RequestRejectedError) Is(target error) bool { return target == ErrRequestRejected }
