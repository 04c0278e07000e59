// Package httpx is a small HTTP/1.1 server whose focus is correct,
// strict handling of request message bodies: framing selection from the
// request headers, incremental chunked decoding with trailer support,
// lazy 100 Continue, and exact cursor discipline over the connection's
// input buffer so pipelined requests survive slow or failing handlers.
//
// Highlights
//   - Framing: Content-Length, Transfer-Encoding: chunked, and
//     identity-until-close (upgrade) request bodies behind one reader
//     contract; Transfer-Encoding wins over Content-Length.
//   - Strictness: malformed chunk framing, truncated bodies and
//     unparsable Content-Length reject the request and close the
//     connection; CRLF line endings are required.
//   - Flow control: body bytes stay in the connection buffer until the
//     handler consumes them; a slow handler throttles the socket.
//   - 100 Continue: produced at most once, only when a read of the
//     body actually has to wait for the client.
//   - Observability: plug-in Logger and Meter interfaces.
//
// Quick start:
//
//	s := &httpx.Server{Addr: ":8080"}
//	s.Handler = httpx.HandlerFunc(func(w httpx.ResponseWriter, r *httpx.Request) {
//	    n, _ := io.Copy(io.Discard, r.Body)
//	    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
//	    w.WriteHeader(200)
//	    fmt.Fprintf(w, "read %d bytes\n", n)
//	})
//	if err := s.ListenAndServe(); err != nil { log.Fatal(err) }
package httpx
