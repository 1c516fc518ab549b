package session

import (
	"errors"
	"fmt"
)

// Lifecycle is the coarse state of a session
type Lifecycle string

const (
	Created       Lifecycle = "created"
	AwaitingStart Lifecycle = "awaiting_start"
	InHand        Lifecycle = "in_hand"
	BetweenHands  Lifecycle = "between_hands"
	Ended         Lifecycle = "ended"
)

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

var lifecycleTransitions = map[Lifecycle][]Lifecycle{
	Created:       {AwaitingStart, Ended},
	AwaitingStart: {InHand, Ended},
	InHand:        {BetweenHands, Ended},
	BetweenHands:  {InHand, Ended},
}

// CanTransition reports whether a session may move from one lifecycle state to another
func CanTransition(from, to Lifecycle) bool {
	for _, l := range lifecycleTransitions[from] {
		if l == to {
			return true
		}
	}
	return false
}

func (s *Session) transition(to Lifecycle) error {
	if !CanTransition(s.lifecycle, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.lifecycle, to)
	}
	s.lifecycle = to
	return nil
}
