package agent

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/supportd/internal/collections"
)

// Event is one pipeline stream element: a stage transition, an answer delta,
// or both. Passages are set on events from StageGenerate onward.
type Event struct {
	Stage    Stage
	Delta    string
	Passages []collections.Passage
}

// Stream delivers pipeline events lazily: the producing run blocks until the
// consumer pulls the next event, so an abandoned stream stops doing work as
// soon as it is closed.
type Stream struct {
	events chan Event
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		events: make(chan Event),
		cancel: cancel,
	}
}

// send delivers an event to the consumer, blocking until it is pulled or the
// run context ends.
func (s *Stream) send(ctx context.Context, ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish records the terminal error and closes the event channel.
// A canceled-consumer error after Close is not surfaced.
func (s *Stream) finish(err error) {
	s.mu.Lock()
	if err != nil && !s.closed {
		s.err = err
	}
	s.mu.Unlock()
	close(s.events)
}

// Next returns the next event. ok is false once the stream is exhausted;
// check Err afterwards to distinguish completion from failure. A failed run
// voids any partial answer already pulled.
func (s *Stream) Next() (Event, bool) {
	ev, ok := <-s.events
	return ev, ok
}

// Err returns the terminal error of the run, nil on clean completion.
// Only valid after Next has returned ok == false.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the stream and cancels the underlying run. Safe to call
// multiple times and concurrently with Next.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}
