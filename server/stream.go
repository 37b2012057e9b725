package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hupe1980/agentd/core"
)

// eventWriter delivers run events over an HTTP response.
type eventWriter interface {
	Write(ev core.Event) error
}

// sseWriter sends Server-Sent Events to an http.ResponseWriter.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter creates a new SSE writer. Returns nil if the ResponseWriter
// doesn't support http.Flusher.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}
}

// Write sends ev as an unnamed SSE event with JSON data.
func (s *sseWriter) Write(ev core.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal SSE data: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}

	s.flusher.Flush()

	return nil
}

// ndjsonWriter sends one JSON record per line.
type ndjsonWriter struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	flusher http.Flusher
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &ndjsonWriter{w: w, enc: json.NewEncoder(w), flusher: flusher}
}

// Write encodes ev followed by a newline.
func (n *ndjsonWriter) Write(ev core.Event) error {
	if err := n.enc.Encode(ev); err != nil {
		return err
	}

	n.flusher.Flush()

	return nil
}

// newEventWriter picks SSE when the client asks for text/event-stream and
// NDJSON otherwise. It returns nil when streaming is unsupported.
func newEventWriter(w http.ResponseWriter, r *http.Request) eventWriter {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		if sw := newSSEWriter(w); sw != nil {
			return sw
		}
		return nil
	}

	if nw := newNDJSONWriter(w); nw != nil {
		return nw
	}

	return nil
}
