package events

import (
	"sync"
	"time"
)

// defaultDebounceInterval matches §4.8's "no more than one event per
// 100 ms on the same phase".
const defaultDebounceInterval = 100 * time.Millisecond

// ProgressEmitter rate-limits progress events per phase while always
// letting a phase transition or the terminal 100% event through
// (§4.8). now is overridable for deterministic tests.
type ProgressEmitter struct {
	bus      *Bus
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastPhase Phase
	lastEmit  map[Phase]time.Time
}

// NewProgressEmitter wraps bus with the §4.8 debounce policy. interval
// <= 0 uses the spec default of 100ms.
func NewProgressEmitter(bus *Bus, interval time.Duration) *ProgressEmitter {
	if interval <= 0 {
		interval = defaultDebounceInterval
	}
	return &ProgressEmitter{bus: bus, interval: interval, now: time.Now, lastEmit: make(map[Phase]time.Time)}
}

// EmitProgress publishes a progress tick unless it is rate-limited.
// Transitions to a new phase and progress==100 (a phase's terminal
// tick) always pass through, undebounced.
func (p *ProgressEmitter) EmitProgress(phase Phase, progress int, message string) {
	now := p.now()

	p.mu.Lock()
	transition := phase != p.lastPhase
	terminal := progress >= 100
	last, seen := p.lastEmit[phase]
	shouldEmit := transition || terminal || !seen || now.Sub(last) >= p.interval
	if shouldEmit {
		p.lastEmit[phase] = now
		p.lastPhase = phase
	}
	p.mu.Unlock()

	if !shouldEmit {
		return
	}
	p.bus.Emit(Event{Type: EventProgress, Timestamp: now.UTC(), Phase: phase, Progress: progress, Message: message})
}

// EmitSummary publishes the terminal pipeline_summary event, which is
// never debounced — it carries the full health report (§4.8).
func (p *ProgressEmitter) EmitSummary(report interface{}) {
	p.bus.Emit(Event{Type: EventPipelineSummary, Timestamp: p.now().UTC(), Progress: 100, Payload: report})
}
