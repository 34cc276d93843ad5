package media

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/runner365/voiceagent/internal/observability"
)

// defaultStageDepth is the recommended per-stage queue cap from §5: roughly
// 1 second of 20ms audio frames.
const defaultStageDepth = 50

// Stage is the uniform worker contract shared by the decoder, filter, and
// encoder primitives (§4.6): a bounded FIFO, a worker goroutine started
// lazily on first input, and shutdown that drops whatever is still queued
// rather than draining it. The mutex+condvar pairing in the component this
// is descended from is re-expressed here as a mutex-guarded slice plus a
// buffered wake channel, per the task-and-channel redesign guidance — no
// shared boolean flag is polled; the worker blocks until woken or stopped.
type Stage[T any] struct {
	depth   int
	log     zerolog.Logger
	name    string
	metrics *observability.Metrics

	mu      sync.Mutex
	items   []T
	closed  bool
	started bool
	dropped bool

	wake chan struct{}
	done chan struct{}

	process func(T)
}

// NewStage returns a Stage with the given queue depth (defaultStageDepth if
// depth <= 0) that invokes process for each popped item on the worker
// goroutine. metrics is optional; when non-nil, every push/drop/process is
// recorded under this stage's name.
func NewStage[T any](name string, depth int, log zerolog.Logger, metrics *observability.Metrics, process func(T)) *Stage[T] {
	if depth <= 0 {
		depth = defaultStageDepth
	}
	return &Stage[T]{
		depth:   depth,
		log:     log,
		name:    name,
		metrics: metrics,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		process: process,
	}
}

// Push enqueues item, starting the worker on first call. If the queue is
// already at depth, the oldest item is dropped and a warning logged once
// per burst.
func (s *Stage[T]) Push(item T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.items) >= s.depth {
		s.items = s.items[1:]
		if s.metrics != nil {
			s.metrics.QueueDroppedTotal.WithLabelValues(s.name).Inc()
		}
		if !s.dropped {
			s.dropped = true
			s.log.Warn().Str("stage", s.name).Msg("queue overflow, dropping oldest")
		}
	} else {
		s.dropped = false
	}
	s.items = append(s.items, item)
	if s.metrics != nil {
		s.metrics.PipelinePacketsTotal.WithLabelValues(s.name, "in").Inc()
	}
	if !s.started {
		s.started = true
		go s.run()
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stage[T]) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		if len(s.items) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			<-s.wake
			continue
		}
		item := s.items[0]
		s.items = s.items[1:]
		closedNow := s.closed
		s.mu.Unlock()

		if closedNow {
			return
		}
		s.process(item)
		if s.metrics != nil {
			s.metrics.PipelinePacketsTotal.WithLabelValues(s.name, "out").Inc()
		}
	}
}

// Close signals shutdown: the worker will stop without draining whatever
// is still queued (matching §4.6's "no work is lost except buffered input
// at shutdown"). It blocks until the worker goroutine has exited, unless
// no input was ever pushed, in which case there is no worker to join.
func (s *Stage[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	if started {
		<-s.done
	}
}
