package http1

import (
	"bufio"
	"fmt"
)

// WriteContinue writes the 100 Continue interim response. The caller
// decides whether the request asked for one; see Control.
func WriteContinue(bw *bufio.Writer) error {
	_, err := fmt.Fprint(bw, "HTTP/1.1 100 Continue\r\n\r\n")
	return err
}
