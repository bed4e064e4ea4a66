package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"

	"deal-lab/domain/event"
)

// streamSink buffers events destined for one SSE connection. Consume
// never blocks the router workers: a full buffer drops the event and
// the client re-fetches state on its next reconnect.
type streamSink struct {
	events chan event.DomainEvent
}

func newStreamSink(buffer int) *streamSink {
	return &streamSink{events: make(chan event.DomainEvent, buffer)}
}

func (s *streamSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	default:
		return fmt.Errorf("stream buffer full, dropping %T", e)
	}
}

// streamEvents is the live connection surface. The token travels in a
// query parameter because EventSource cannot set headers.
func (h *Handlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sink := newStreamSink(64)
	userID, err := h.presence.Authenticate(token, sink)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	defer h.presence.Disconnect(userID, sink)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.log.Info("Stream opened", "userID", userID)
	defer h.log.Info("Stream closed", "userID", userID)

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-sink.events:
			payload, err := json.Marshal(e)
			if err != nil {
				h.log.Error("Failed to marshal event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName(e), payload)
			flusher.Flush()
		}
	}
}

func eventName(e event.DomainEvent) string {
	t := reflect.TypeOf(e)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
