package events

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBusSubscribeAndEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	var received []Event
	var wg sync.WaitGroup
	wg.Add(1)

	bus.Subscribe(EventProgress, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		wg.Done()
	})

	bus.Emit(Event{Type: EventProgress, Phase: PhaseLoading, Progress: 10, Message: "starting"})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	require.Equal(t, PhaseLoading, received[0].Phase)
	require.Equal(t, 10, received[0].Progress)
}

func TestProgressEmitterDebouncesWithinSamePhase(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var mu sync.Mutex
	var count int
	bus.Subscribe(EventProgress, func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	emitter := NewProgressEmitter(bus, 100*time.Millisecond)
	clock := time.Now()
	emitter.now = func() time.Time { return clock }

	emitter.EmitProgress(PhaseDecomposition, 10, "first")
	emitter.EmitProgress(PhaseDecomposition, 20, "debounced")
	emitter.EmitProgress(PhaseDecomposition, 30, "still debounced")

	time.Sleep(10 * time.Millisecond) // let the async handlers run
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count, "only the first tick in the window should publish")
}

func TestProgressEmitterAlwaysPassesPhaseTransitionsAndTerminal(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var mu sync.Mutex
	var phases []Phase
	bus.Subscribe(EventProgress, func(e Event) {
		mu.Lock()
		phases = append(phases, e.Phase)
		mu.Unlock()
	})

	emitter := NewProgressEmitter(bus, time.Hour) // huge window: only transitions/terminal should get through
	clock := time.Now()
	emitter.now = func() time.Time { return clock }

	emitter.EmitProgress(PhaseLoading, 50, "loading")
	emitter.EmitProgress(PhaseLoading, 100, "loading done") // terminal tick for this phase
	emitter.EmitProgress(PhaseDecomposition, 0, "decomposing")
	emitter.EmitProgress(PhaseDecomposition, 50, "still decomposing") // debounced

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Phase{PhaseLoading, PhaseLoading, PhaseDecomposition}, phases)
}

func TestProgressEmitterSummaryAlwaysEmits(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	var mu sync.Mutex
	var got Event
	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(EventPipelineSummary, func(e Event) {
		mu.Lock()
		got = e
		mu.Unlock()
		wg.Done()
	})

	emitter := NewProgressEmitter(bus, 0)
	emitter.EmitSummary(map[string]int{"holdings": 42})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, EventPipelineSummary, got.Type)
	require.Equal(t, 100, got.Progress)
}

func TestFormatSSEProducesDataFrame(t *testing.T) {
	frame, err := FormatSSE(Event{Type: EventProgress, Phase: PhaseAggregation, Progress: 75, Message: "aggregating"})

	require.NoError(t, err)
	require.True(t, strings.HasPrefix(frame, "event: progress\n"))
	require.True(t, strings.HasSuffix(frame, "\n\n"))
	require.Contains(t, frame, `"progress":75`)
}
