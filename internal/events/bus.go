// Package events provides the progress event bus the Pipeline
// Orchestrator (C8) uses to publish structured progress and the
// terminal health-report summary, plus SSE formatting for the HTTP
// host's progress stream (§4.8, §6).
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType distinguishes a per-phase progress tick from the terminal
// summary (§4.8).
type EventType string

const (
	EventProgress        EventType = "progress"
	EventPipelineSummary EventType = "pipeline_summary"
	// EventError is emitted once, undebounced, by the run_pipeline
	// command handler when Orchestrator.Run returns an error instead of
	// completing with a health report (§6).
	EventError EventType = "error"
)

// Phase is one of the Orchestrator's four sequential stages (§4.8).
type Phase string

const (
	PhaseLoading       Phase = "loading"
	PhaseDecomposition Phase = "decomposition"
	PhaseEnrichment    Phase = "enrichment"
	PhaseAggregation   Phase = "aggregation"
)

// Event is the wire shape pushed to subscribers and, formatted as SSE,
// to the HTTP host's progress stream.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Phase     Phase       `json:"phase,omitempty"`
	Progress  int         `json:"progress,omitempty"`
	Message   string      `json:"message,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Handler receives published events. Handlers run asynchronously and
// must not block the emitting phase.
type Handler func(Event)

// Bus provides pub/sub event fan-out, mirroring the teacher's
// subscribe-then-fire-and-forget shape.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	log         zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Handler),
		log:         log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Emit publishes an event to every subscriber of its type.
func (b *Bus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := b.subscribers[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		go h(e)
	}

	b.log.Debug().Str("event_type", string(e.Type)).Str("phase", string(e.Phase)).
		Int("subscribers", len(handlers)).Msg("event emitted")
}

// EmitError publishes the terminal error event (§6), bypassing the
// progress debounce entirely since a fatal failure must always reach
// subscribers.
func (b *Bus) EmitError(message string) {
	b.Emit(Event{Type: EventError, Message: message})
}
