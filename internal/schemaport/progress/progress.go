package progress

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrCancelled is the terminal outcome of an operation stopped by a
// cooperative cancellation request. It is always user-initiated and distinct
// from failure.
var ErrCancelled = errors.New("operation cancelled")

// Phase identifies which stage of a long-running operation an event belongs to.
type Phase string

const (
	PhaseScan  Phase = "scan"
	PhaseBuild Phase = "build"
)

// Event is one progress update pushed to a presentation layer. Done is
// monotonically increasing within one operation so a caller can animate a
// progress bar without it going backwards.
type Event struct {
	Done  int    `json:"done"`
	Total int    `json:"total"`
	Label string `json:"label"`
	Phase Phase  `json:"phase,omitempty"`
}

// Func receives progress events. A nil Func is always safe to call through
// Counter and Emit.
type Func func(Event)

// Emit calls fn if it is non-nil.
func (fn Func) Emit(ev Event) {
	if fn != nil {
		fn(ev)
	}
}

// Counter tracks a single running done count over a fixed total, safe for
// concurrent workers. Each completed unit of work advances the count by one and
// pushes an event carrying a human-readable label.
type Counter struct {
	total int
	done  atomic.Int64
	fn    Func
	phase Phase
}

// NewCounter creates a counter over a fixed total, reporting to fn.
func NewCounter(total int, phase Phase, fn Func) *Counter {
	return &Counter{total: total, phase: phase, fn: fn}
}

// Total returns the planned number of units.
func (c *Counter) Total() int {
	return c.total
}

// Done returns the number of completed units so far.
func (c *Counter) Done() int {
	return int(c.done.Load())
}

// Advance records one completed unit of work and emits an event for it.
func (c *Counter) Advance(label string) {
	done := c.done.Add(1)
	c.fn.Emit(Event{Done: int(done), Total: c.total, Label: label, Phase: c.phase})
}

// Canceller carries a cooperative cancellation request between the task running
// an operation and whoever wants to stop it. Requests are idempotent and may be
// issued from any goroutine; the operation polls at unit-of-work granularity and
// never interrupts an in-flight remote call.
type Canceller struct {
	mu        sync.Mutex
	requested bool
}

// NewCanceller returns a canceller with no pending request.
func NewCanceller() *Canceller {
	return &Canceller{}
}

// RequestCancel asks the operation to stop after its current unit of work.
func (c *Canceller) RequestCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = true
}

// IsCancelRequested reports whether a cancellation has been requested. A nil
// canceller never cancels.
func (c *Canceller) IsCancelRequested() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}
