// Package reactor implements the single-threaded event loop that owns all
// socket and timer callbacks (§4.1 of the specification). The loop thread
// is the only place that may touch shared state outside of the explicit
// per-stage worker goroutines in internal/media; everything else crosses
// into the loop through Post.
package reactor

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is one scheduled callback, ordered by absolute deadline so the
// next-due entry is an O(1) peek via the heap root.
type timerEntry struct {
	deadline time.Time
	period   time.Duration
	fn       func() bool
	index    int // heap bookkeeping
	canceled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Loop is the reactor. Create one with New, call Run from the goroutine
// that should become "the loop thread", and use Post/Schedule from any
// other goroutine to get work done on it.
type Loop struct {
	posted chan func()
	stop   chan struct{}
	timers timerHeap

	mu      sync.Mutex // guards timers; only the loop goroutine and Schedule/Cancel touch it
	nowFn   func() time.Time
	started bool
}

// New returns a Loop that has not started running yet.
func New() *Loop {
	return &Loop{
		posted: make(chan func(), 256),
		stop:   make(chan struct{}),
		nowFn:  time.Now,
	}
}

// Cancel is returned by Schedule; calling it prevents the timer's next
// firing. It is safe to call from any goroutine, including from inside the
// timer's own callback (re-entrant unregistration).
type Cancel func()

// Schedule registers a periodic callback invoked from the loop goroutine
// every period. If fn returns false, the timer is not re-armed. The
// returned Cancel stops future firings; it is idempotent.
func (l *Loop) Schedule(period time.Duration, fn func() bool) Cancel {
	e := &timerEntry{
		deadline: l.nowFn().Add(period),
		period:   period,
		fn:       fn,
	}
	l.mu.Lock()
	heap.Push(&l.timers, e)
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		e.canceled = true
		l.mu.Unlock()
	}
}

// Post queues fn to run on the loop goroutine and wakes the loop if it is
// blocked waiting for the next timer deadline. This is the only
// thread-safe way for other goroutines (worker stages, the outbound
// notification drain) to touch loop-owned state.
func (l *Loop) Post(fn func()) {
	select {
	case l.posted <- fn:
	case <-l.stop:
	}
}

// Now returns the loop's notion of current time, consistent with the
// deadlines timers were scheduled against.
func (l *Loop) Now() time.Time {
	return l.nowFn()
}

// Run drives the loop until Stop is called. It must be invoked from exactly
// one goroutine, which becomes "the loop thread" for the lifetime of this
// call.
func (l *Loop) Run() {
	for {
		wait := l.nextWait()
		timer := time.NewTimer(wait)
		select {
		case <-l.stop:
			timer.Stop()
			return
		case fn := <-l.posted:
			timer.Stop()
			fn()
		case <-timer.C:
		}
		l.fireDue()
	}
}

// Stop terminates Run. It is safe to call once from any goroutine.
func (l *Loop) Stop() {
	close(l.stop)
}

func (l *Loop) nextWait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.timers.Len() > 0 && l.timers[0].canceled {
		heap.Pop(&l.timers)
	}
	if l.timers.Len() == 0 {
		return time.Hour
	}
	d := l.timers[0].deadline.Sub(l.nowFn())
	if d < 0 {
		return 0
	}
	return d
}

// fireDue pops and invokes every timer whose deadline has elapsed,
// re-arming those that return true. Pop-then-invoke (rather than holding
// the lock across the callback) is what makes re-entrant cancellation from
// inside a callback safe: the callback never sees itself in the heap.
func (l *Loop) fireDue() {
	now := l.nowFn()
	for {
		l.mu.Lock()
		if l.timers.Len() == 0 || l.timers[0].deadline.After(now) {
			l.mu.Unlock()
			return
		}
		e := heap.Pop(&l.timers).(*timerEntry)
		canceled := e.canceled
		l.mu.Unlock()

		if canceled {
			continue
		}
		if e.fn() {
			l.mu.Lock()
			if !e.canceled {
				e.deadline = now.Add(e.period)
				heap.Push(&l.timers, e)
			}
			l.mu.Unlock()
		}
	}
}
