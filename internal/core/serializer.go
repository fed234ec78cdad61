package core

// The serializer enforces the per-font ordering guarantee: at most one
// mutating cycle runs at a time and submissions execute in strict FIFO
// order. One worker goroutine consumes the queue; each task runs to a
// terminal state before the next starts, so the cycle lock can never be
// abandoned mid-flight.

import "sync"

type taskKind int

const (
	taskLoad taskKind = iota
	taskFollowUp
	taskPrepare
)

type task struct {
	id   string
	kind taskKind
	// chars holds the caller's requested characters for taskLoad.
	chars []rune
	// codes holds the pre-diffed, already-obfuscated remainder chunk for
	// taskFollowUp.
	codes []rune
	done  chan taskResult
}

type taskResult struct {
	res LoadResult
	err error
}

func (t *task) complete(res LoadResult, err error) {
	if t.done == nil {
		return
	}
	// done is buffered; completion never blocks the worker even when the
	// submitter already walked away.
	t.done <- taskResult{res: res, err: err}
}

type serializer struct {
	mu     sync.Mutex
	queue  []*task
	wake   chan struct{}
	closed bool
}

func newSerializer() *serializer {
	return &serializer{wake: make(chan struct{}, 1)}
}

// enqueue appends t to the FIFO chain. It fails only when the serializer is
// already closed, which callers surface as a lock-acquisition failure.
func (s *serializer) enqueue(t *task) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue = append(s.queue, t)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// next blocks until a task is available or the serializer closes. The second
// return is false once closed and fully drained.
func (s *serializer) next() (*task, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			t := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return t, true
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, false
		}
		<-s.wake
	}
}

// close rejects new submissions and fails every queued task.
func (s *serializer) close() []*task {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	abandoned := s.queue
	s.queue = nil
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return abandoned
}
