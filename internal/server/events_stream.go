package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/events"
)

// EventsStreamHandler serves GET /api/events/stream: a Server-Sent
// Events feed of every progress, pipeline_summary, and error event
// published on the bus during run_pipeline (§4.8, §6).
type EventsStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler builds an EventsStreamHandler over bus.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{bus: bus, log: log.With().Str("component", "events_stream").Logger()}
}

func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	frames := make(chan events.Event, 32)
	handler := func(e events.Event) {
		select {
		case frames <- e:
		default:
			h.log.Warn().Str("event_type", string(e.Type)).Msg("events_stream: dropped event, subscriber too slow")
		}
	}
	h.bus.Subscribe(events.EventProgress, handler)
	h.bus.Subscribe(events.EventPipelineSummary, handler)
	h.bus.Subscribe(events.EventError, handler)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-frames:
			frame, err := events.FormatSSE(e)
			if err != nil {
				h.log.Error().Err(err).Msg("events_stream: failed to format event")
				continue
			}
			if _, err := w.Write([]byte(frame)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
