package prompt

import (
	"sync"

	"github.com/longregen/promptc/shared/id"
)

// TraceEntry records one module execution: the module, the inputs it saw,
// and the outputs it produced.
type TraceEntry struct {
	ModuleName string `json:"module_name"`
	Inputs     Values `json:"inputs"`
	Outputs    Values `json:"outputs"`
}

// Trace is the ordered execution history of one program run. A trace is
// owned by the evaluation that produced it; once sealed it is read-only.
type Trace struct {
	id string

	mu      sync.Mutex
	entries []TraceEntry
	sealed  bool
}

// ID returns the trace identifier.
func (t *Trace) ID() string {
	return t.id
}

// Entries returns a copy of the recorded entries.
func (t *Trace) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded entries.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sealed reports whether the trace has been stopped.
func (t *Trace) Sealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed
}

// add appends an entry. Appends to a sealed trace are dropped.
func (t *Trace) add(e TraceEntry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return false
	}
	t.entries = append(t.entries, e)
	return true
}

func (t *Trace) seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Recorder hands out trace handles. Handles from the same recorder are
// independent: concurrent evaluations each start their own trace, so records
// from parallel candidates never cross-contaminate.
type Recorder struct{}

// NewRecorder creates a recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Start returns a fresh trace scoped to one program execution.
func (r *Recorder) Start() *Trace {
	return &Trace{id: id.NewTrace()}
}

// Stop seals the trace; further executions no longer append to it.
func (r *Recorder) Stop(t *Trace) {
	if t != nil {
		t.seal()
	}
}
