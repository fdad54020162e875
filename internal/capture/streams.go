package capture

import (
	"context"
	"sync"
)

// Event tags a payload with the browser's request id.
type Event struct {
	RequestID string
	Payload   Payload
}

// Streams holds one buffered channel per event family. Producers call Send
// from browser callbacks; a single Consume task applies them to the
// correlator.
type Streams struct {
	requests  chan Event
	responses chan Event
	finished  chan Event
	bodies    chan Event
	failures  chan Event

	mu     sync.RWMutex
	closed bool
}

func NewStreams(buffer int) *Streams {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Streams{
		requests:  make(chan Event, buffer),
		responses: make(chan Event, buffer),
		finished:  make(chan Event, buffer),
		bodies:    make(chan Event, buffer),
		failures:  make(chan Event, buffer),
	}
}

func (s *Streams) route(k EventKind) chan Event {
	switch k {
	case KindRequest, KindRedirect:
		return s.requests
	case KindResponse:
		return s.responses
	case KindLoadingFinished:
		return s.finished
	case KindBody:
		return s.bodies
	default:
		return s.failures
	}
}

// Send queues ev on the channel for its kind. It blocks while that channel
// is full and returns ErrDrained once the streams are closed.
func (s *Streams) Send(ctx context.Context, ev Event) error {
	if ev.Payload == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrDrained
	}
	select {
	case s.route(ev.Payload.Kind()) <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake. Buffered events remain readable by Consume.
func (s *Streams) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.requests)
	close(s.responses)
	close(s.finished)
	close(s.bodies)
	close(s.failures)
}

// Consume applies events from every stream until all are closed or ctx is
// done. Records are finalized as soon as Observe reports them ready. When
// ctx ends early, events already buffered are still applied.
func (c *Correlator) Consume(ctx context.Context, s *Streams) error {
	requests, responses, finished, bodies, failures := s.requests, s.responses, s.finished, s.bodies, s.failures
	open := 5

	for open > 0 {
		select {
		case <-ctx.Done():
			c.flush(s)
			return ctx.Err()
		case ev, ok := <-requests:
			if !ok {
				requests = nil
				open--
				continue
			}
			c.apply(ev)
		case ev, ok := <-responses:
			if !ok {
				responses = nil
				open--
				continue
			}
			c.apply(ev)
		case ev, ok := <-finished:
			if !ok {
				finished = nil
				open--
				continue
			}
			c.apply(ev)
		case ev, ok := <-bodies:
			if !ok {
				bodies = nil
				open--
				continue
			}
			c.apply(ev)
		case ev, ok := <-failures:
			if !ok {
				failures = nil
				open--
				continue
			}
			c.apply(ev)
		}
	}
	return nil
}

func (c *Correlator) apply(ev Event) {
	if c.Observe(ev.RequestID, ev.Payload) {
		c.Finalize(ev.RequestID)
	}
}

func (c *Correlator) flush(s *Streams) {
	for _, ch := range []chan Event{s.requests, s.responses, s.finished, s.bodies, s.failures} {
		c.flushOne(ch)
	}
}

func (c *Correlator) flushOne(ch chan Event) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.apply(ev)
		default:
			return
		}
	}
}
