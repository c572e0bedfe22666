// Package sim provides a single-threaded cooperative discrete-event loop.
//
// Tasks are explicit state machines: each call to Step performs one atomic
// slice of work and returns a Directive telling the clock how to resume the
// task (after a timeout, once a signal fires, or never). Everything a task
// does between two directives is instantaneous in simulated time.
package sim

import "container/heap"

// Time is simulated time in abstract units. There is no wall clock.
type Time = float64

// Task is a resumable unit of work driven by a Clock.
type Task interface {
	// Step advances the task to its next suspension point and reports how
	// the clock should resume it.
	Step(c *Clock) Directive
}

type directiveKind int

const (
	kindTimeout directiveKind = iota
	kindAwait
	kindDone
)

// Directive is the next-event descriptor returned by Task.Step.
type Directive struct {
	kind  directiveKind
	delay Time
	sig   *Signal
}

// Timeout resumes the task after d simulated units.
func Timeout(d Time) Directive { return Directive{kind: kindTimeout, delay: d} }

// Await resumes the task once s fires. If s already fired, the task resumes
// in the current instant.
func Await(s *Signal) Directive { return Directive{kind: kindAwait, sig: s} }

// Done retires the task.
func Done() Directive { return Directive{kind: kindDone} }

// Signal is a one-shot waitable. It is created unfulfilled, fires exactly
// once, and releases every task awaiting it in arrival order.
type Signal struct {
	c       *Clock
	fired   bool
	waiters []*proc
}

// Fired reports whether the signal has already fired.
func (s *Signal) Fired() bool { return s.fired }

// Fire fulfils the signal and readies its waiters. Firing twice panics.
func (s *Signal) Fire() {
	if s.fired {
		panic("sim: signal fired twice")
	}
	s.fired = true
	for _, p := range s.waiters {
		s.c.ready = append(s.c.ready, p)
	}
	s.waiters = nil
}

type proc struct {
	task Task
}

type timer struct {
	at  Time
	seq uint64
	p   *proc
}

type timerHeap []timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(timer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// Clock owns the event queue and the monotonic simulated time.
type Clock struct {
	now    Time
	timers timerHeap
	ready  []*proc
	seq    uint64
}

// NewClock returns a clock at time zero with an empty event set.
func NewClock() *Clock { return &Clock{} }

// Now returns the current simulated time.
func (c *Clock) Now() Time { return c.now }

// NewSignal returns a fresh unfulfilled one-shot signal bound to this clock.
func (c *Clock) NewSignal() *Signal { return &Signal{c: c} }

// Spawn registers a task; its first Step runs in the current instant the
// next time the clock advances.
func (c *Clock) Spawn(t Task) {
	c.ready = append(c.ready, &proc{task: t})
}

// dispatch runs one step of p and requeues it per its directive.
func (c *Clock) dispatch(p *proc) {
	d := p.task.Step(c)
	switch d.kind {
	case kindTimeout:
		c.seq++
		heap.Push(&c.timers, timer{at: c.now + d.delay, seq: c.seq, p: p})
	case kindAwait:
		if d.sig.fired {
			c.ready = append(c.ready, p)
		} else {
			d.sig.waiters = append(d.sig.waiters, p)
		}
	case kindDone:
		// task retired
	}
}

// RunUntil advances simulated time until limit is reached or the event set
// drains. Tasks still suspended when the limit hits are abandoned in place;
// the clock lands on limit if undispatched timers remain beyond it.
func (c *Clock) RunUntil(limit Time) {
	for {
		for len(c.ready) > 0 {
			p := c.ready[0]
			c.ready = c.ready[1:]
			c.dispatch(p)
		}
		if len(c.timers) == 0 {
			return
		}
		if c.timers[0].at > limit {
			c.now = limit
			return
		}
		t := heap.Pop(&c.timers).(timer)
		c.now = t.at
		c.dispatch(t.p)
	}
}
