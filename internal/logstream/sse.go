package logstream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// WriteSSE streams a Stream's byte deltas to an HTTP response as
// Server-Sent Events, one "data:" field per delta holding the chunk
// JSON-encoded as a string (so embedded newlines survive the SSE framing).
func WriteSSE(w http.ResponseWriter, r *http.Request, s *Stream) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	deltas, doneCh, unsub := s.Subscribe()
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-deltas:
			if !ok {
				select {
				case <-doneCh:
					fmt.Fprint(w, "event: done\ndata: {}\n\n")
					flusher.Flush()
				default:
				}
				return
			}
			encoded, err := json.Marshal(string(chunk))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", encoded)
			flusher.Flush()
		}
	}
}
