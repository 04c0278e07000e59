// Command bodyecho runs an httpx server that echoes every request body
// back to the client, whatever its framing. Useful for poking the body
// reader with curl:
//
//	curl -d 'hello' localhost:8080
//	curl -T - localhost:8080 < somefile        # chunked upload
//	curl -H 'Expect: 100-continue' -d @big localhost:8080
package main

import (
	"io"
	"log"
	"os"

	"dqx0.com/go/httpbody/httpx"
	"dqx0.com/go/httpbody/internal/obs"
)

func main() {
	addr := ":8080"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}
	s := &httpx.Server{
		Addr:   addr,
		Logger: obs.StdLogger{L: log.New(os.Stderr, "bodyecho ", log.LstdFlags), Min: obs.Info},
		Handler: httpx.HandlerFunc(func(w httpx.ResponseWriter, r *httpx.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.WriteHeader(200)
			if _, err := io.Copy(w, r.Body); err != nil {
				return
			}
			if f, ok := w.(httpx.Flusher); ok {
				_ = f.Flush()
			}
		}),
	}
	log.Printf("listening on %s", addr)
	log.Fatal(s.ListenAndServe())
}
