package testutil

import (
	"fmt"
	"sync"
)

// FixedRunIDs returns the same run ID every time.
//
// The same scenario with the same FixedRunIDs produces byte-identical traces.
//
// Thread-safety: FixedRunIDs is stateless and safe for concurrent use.
type FixedRunIDs struct {
	id string
}

// NewFixedRunIDs creates a fixed run ID generator.
//
// If id is empty, Generate() returns "test-run-default".
func NewFixedRunIDs(id string) *FixedRunIDs {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDs{id: id}
}

// Generate returns the fixed run ID.
//
// Implements eval.RunIDGenerator interface.
func (g *FixedRunIDs) Generate() string {
	return g.id
}

// SequentialRunIDs returns "<prefix>-1", "<prefix>-2", ... in call order.
//
// Unlike FixedRunIDs it lets a test tell runs apart, and it can be reset
// so the same test can run twice with identical IDs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialRunIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequentialRunIDs creates a generator whose first ID is "<prefix>-1".
func NewSequentialRunIDs(prefix string) *SequentialRunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialRunIDs{prefix: prefix}
}

// Generate returns the next ID in sequence.
func (g *SequentialRunIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Issued returns how many IDs have been generated.
func (g *SequentialRunIDs) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence at 1.
func (g *SequentialRunIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
