package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ca-srg/searchagent/internal/types"
)

// writeEventStream writes each event as one JSON line and flushes it. It
// drains until the producer closes the channel and returns the number of
// lines written.
func writeEventStream(w io.Writer, flusher http.Flusher, events <-chan types.Event) int {
	encoder := json.NewEncoder(w)
	sent := 0
	writable := true
	for event := range events {
		if !writable {
			continue
		}
		if err := encoder.Encode(event); err != nil {
			writable = false
			continue
		}
		flusher.Flush()
		sent++
	}
	return sent
}
