package reasoning

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/showdown/go/internal/holdem"
)

// StreamState of a reasoning stream
type StreamState int

const (
	Active StreamState = iota
	Frozen
)

func (s StreamState) String() string {
	if s == Frozen {
		return "frozen"
	}
	return "active"
}

var ErrStreamFrozen = errors.New("reasoning stream is frozen")

// Stream accumulates one actor's reasoning for one turn. The full text grows
// with every fragment; the visible prefix grows with every flushed batch and is
// what the client has been sent.
type Stream struct {
	mu        sync.Mutex
	actor     int
	name      string
	startedAt time.Time
	state     StreamState
	text      strings.Builder
	visible   int
	move      *holdem.Move
	publish   func(batch string)
}

// NewStream starts an active stream. publish is called with every flushed
// batch while the stream lock is held.
func NewStream(actor int, name string, startedAt time.Time, publish func(batch string)) *Stream {
	return &Stream{
		actor:     actor,
		name:      name,
		startedAt: startedAt,
		publish:   publish,
	}
}

func (s *Stream) Actor() int           { return s.actor }
func (s *Stream) Name() string         { return s.name }
func (s *Stream) StartedAt() time.Time { return s.startedAt }

// Append adds a fragment to the full text. Fragments after Freeze are ignored.
func (s *Stream) Append(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Frozen {
		return
	}
	s.text.WriteString(fragment)
}

// Flush marks batch as sent and publishes it
func (s *Stream) Flush(batch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Frozen {
		return
	}
	s.visible += len(batch)
	if s.visible > s.text.Len() {
		s.visible = s.text.Len()
	}
	if s.publish != nil {
		s.publish(batch)
	}
}

// Freeze ends the stream with the move that was applied
func (s *Stream) Freeze(move holdem.Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Frozen {
		return fmt.Errorf("%w: actor %d", ErrStreamFrozen, s.actor)
	}
	s.state = Frozen
	s.move = &move
	s.visible = s.text.Len()
	return nil
}

// State returns active or frozen
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Move is the applied move of a frozen stream, nil while active
func (s *Stream) Move() *holdem.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.move == nil {
		return nil
	}
	m := *s.move
	return &m
}

// Text returns the full accumulated text
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// WithVisible calls fn with the text the client has seen so far, the state and
// the applied move. No batch is published while fn runs, so a snapshot built
// inside fn and the batches published after it never overlap or leave a gap.
// fn must not call back into the stream.
func (s *Stream) WithVisible(fn func(visible string, state StreamState, move *holdem.Move)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var move *holdem.Move
	if s.move != nil {
		m := *s.move
		move = &m
	}
	fn(s.text.String()[:s.visible], s.state, move)
}
