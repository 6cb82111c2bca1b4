package eval

import (
	"sync"

	"github.com/roach88/tally/internal/value"
)

// Event describes one completed stage. Events arrive in completion order:
// nested stages report before the stage that contains them.
type Event struct {
	RunID  string
	Step   int // 1-based position in the run's step sequence
	Depth  int // nested let applications active when the stage ran
	Expr   string
	Output value.Value
}

// Tracer receives stage events. Implementations must be safe for
// concurrent use when the Evaluator is shared across goroutines.
type Tracer interface {
	Trace(Event)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(Event)

// Trace implements Tracer.
func (f TracerFunc) Trace(ev Event) { f(ev) }

// Recorder is a Tracer that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Trace implements Tracer.
func (r *Recorder) Trace(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
