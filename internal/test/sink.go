package test

import (
	"sync"

	"github.com/cloakwork/conclave/pkg/event"
)

// RecordSink keeps every emitted event for assertions.
type RecordSink struct {
	mu     sync.Mutex
	events []event.Event
}

var _ event.Sink = (*RecordSink)(nil)

func (s *RecordSink) Emit(ev event.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// Events returns a copy of everything emitted so far.
func (s *RecordSink) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

// Has reports whether an event of kind k was emitted.
func (s *RecordSink) Has(k event.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Kind == k {
			return true
		}
	}
	return false
}

// Count returns how many events of kind k were emitted.
func (s *RecordSink) Count(k event.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}
