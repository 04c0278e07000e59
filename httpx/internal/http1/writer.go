package http1

import (
	"bufio"
	"fmt"
)

// WriteResponse writes a complete HTTP/1.1 response in one call. hdr
// keys should be canonicalized by the caller. Used for short, final
// responses such as error replies.
func WriteResponse(bw *bufio.Writer, status int, reason string, hdr map[string][]string, body []byte, keepAlive bool) error {
	if err := StartResponse(bw, status, reason, hdr, false, keepAlive); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := bw.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// StartResponse writes the status line and headers, including the
// Connection header and, when chunked, Transfer-Encoding. It writes no
// body bytes.
func StartResponse(bw *bufio.Writer, status int, reason string, hdr map[string][]string, chunked, keepAlive bool) error {
	if reason == "" {
		reason = defaultReason(status)
	}
	if _, err := fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", status, reason); err != nil {
		return err
	}
	if chunked {
		delete(hdr, "Content-Length")
		if _, err := fmt.Fprint(bw, "Transfer-Encoding: chunked\r\n"); err != nil {
			return err
		}
	}
	for k, vv := range hdr {
		// Connection is set below from keepAlive; drop any duplicate.
		if k == "Connection" {
			continue
		}
		for _, v := range vv {
			if _, err := fmt.Fprintf(bw, "%s: %s\r\n", k, sanitizeFieldValue(v)); err != nil {
				return err
			}
		}
	}
	conn := "close"
	if keepAlive {
		conn = "keep-alive"
	}
	if _, err := fmt.Fprintf(bw, "Connection: %s\r\n\r\n", conn); err != nil {
		return err
	}
	return nil
}

// WriteChunked writes one chunk of a chunked response body. Empty input
// writes nothing; the zero-sized chunk is the terminator and belongs to
// EndChunked.
func WriteChunked(bw *bufio.Writer, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(bw, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	if _, err := bw.Write(p); err != nil {
		return 0, err
	}
	if _, err := fmt.Fprint(bw, "\r\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

// EndChunked writes the terminating zero-length chunk.
func EndChunked(bw *bufio.Writer) error {
	_, err := fmt.Fprint(bw, "0\r\n\r\n")
	return err
}

func defaultReason(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 204:
		return "No Content"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 408:
		return "Request Timeout"
	case 413:
		return "Content Too Large"
	case 431:
		return "Request Header Fields Too Large"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	default:
		return ""
	}
}
