package logging

import (
	"log/slog"
	"sync"
)

const (
	// DefaultEventBuffer is the size of the sink's delivery channel.
	DefaultEventBuffer = 256

	// RecentEventCount is how many events the ring retains for the TUI
	// and the exit summary.
	RecentEventCount = 64
)

// Event is one named engine event with structured attributes, e.g.
// "resilience.stall-detected" or "seek.commit".
type Event struct {
	Name  string
	Attrs []any
}

// Sink delivers engine events to the logger without ever blocking the
// caller. Delivery runs on a single goroutine; when the buffer is full the
// event is counted as dropped and discarded. A small ring of recent events is
// kept for display.
type Sink struct {
	logger *slog.Logger

	ch   chan Event
	quit chan struct{}
	done chan struct{}

	mu      sync.Mutex
	ring    []Event
	ringIdx int
	dropped int64
	closed  bool
}

// NewSink creates a Sink delivering to logger and starts its delivery loop.
func NewSink(logger *slog.Logger) *Sink {
	s := &Sink{
		logger: logger,
		ch:     make(chan Event, DefaultEventBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		ring:   make([]Event, RecentEventCount),
	}
	go s.run()
	return s
}

// Emit queues an event for delivery. Never blocks; drops when full or closed.
// Safe on a nil sink so components can treat the sink as optional.
func (s *Sink) Emit(name string, attrs ...any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.dropped++
		s.mu.Unlock()
		return
	}
	s.ring[s.ringIdx] = Event{Name: name, Attrs: attrs}
	s.ringIdx = (s.ringIdx + 1) % len(s.ring)
	s.mu.Unlock()

	select {
	case s.ch <- Event{Name: name, Attrs: attrs}:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped returns the number of events discarded so far.
func (s *Sink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Recent returns up to n of the most recent events, oldest first.
func (s *Sink) Recent(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.ring) {
		n = len(s.ring)
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.ringIdx - n + i + len(s.ring)) % len(s.ring)
		if s.ring[idx].Name != "" {
			out = append(out, s.ring[idx])
		}
	}
	return out
}

// Close stops the delivery loop after draining buffered events. The
// delivery channel is never closed: a timer callback still mid-Emit at
// teardown must not be able to send on a closed channel.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.ch:
			s.logger.Info(ev.Name, ev.Attrs...)
		case <-s.quit:
			for {
				select {
				case ev := <-s.ch:
					s.logger.Info(ev.Name, ev.Attrs...)
				default:
					return
				}
			}
		}
	}
}
