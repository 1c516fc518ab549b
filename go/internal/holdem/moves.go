package holdem

import (
	"fmt"
)

// MoveType identifies a betting action
type MoveType string

const (
	Fold  MoveType = "fold"
	Check MoveType = "check"
	Call  MoveType = "call"
	Raise MoveType = "raise"
	AllIn MoveType = "all_in"
)

// Move is an action taken by a seat. Amount is only used by Raise and is the
// total bet the seat raises to on the current street.
type Move struct {
	Type   MoveType `json:"move_type"`
	Amount int      `json:"amount,omitempty"`
}

func (m Move) String() string {
	if m.Type == Raise {
		return fmt.Sprintf("raise %d", m.Amount)
	}
	return string(m.Type)
}

// MoveSet lists what the current actor may do
type MoveSet struct {
	Actor      int  `json:"actor"`
	CanFold    bool `json:"can_fold"`
	CanCheck   bool `json:"can_check"`
	CanCall    bool `json:"can_call"`
	CallAmount int  `json:"call_amount"`
	CanRaise   bool `json:"can_raise"`
	MinRaise   int  `json:"min_raise"`
	MaxRaise   int  `json:"max_raise"`
}

// Allows reports whether m is legal in the move set
func (ms MoveSet) Allows(m Move) bool {
	switch m.Type {
	case Fold:
		return ms.CanFold
	case Check:
		return ms.CanCheck
	case Call:
		return ms.CanCall
	case Raise:
		return ms.CanRaise && m.Amount >= ms.MinRaise && m.Amount <= ms.MaxRaise
	case AllIn:
		return ms.CanRaise
	default:
		return false
	}
}

// LegalMoves computes the move set for the seat due to act. A completed hand
// yields an empty set with Actor == NoActor.
func LegalMoves(s State) MoveSet {
	if s.Complete || s.Actor == NoActor {
		return MoveSet{Actor: NoActor}
	}
	seat := s.Seats[s.Actor]
	ms := MoveSet{Actor: s.Actor}

	toCall := s.CurrentBet - seat.Bet
	if toCall <= 0 {
		ms.CanCheck = true
	} else {
		ms.CanFold = true
		ms.CanCall = true
		ms.CallAmount = min(toCall, seat.Stack)
	}

	// raising needs chips beyond the call and somebody left to respond
	maxTo := seat.Bet + seat.Stack
	opponents := 0
	for i, other := range s.Seats {
		if i != s.Actor && other.canAct() {
			opponents++
		}
	}
	// a short all-in does not reopen betting for a seat that already acted
	reopened := !seat.Acted || toCall >= s.MinRaise
	if maxTo > s.CurrentBet && opponents > 0 && reopened {
		ms.CanRaise = true
		ms.MinRaise = min(s.CurrentBet+s.MinRaise, maxTo)
		ms.MaxRaise = maxTo
	}
	return ms
}

// Apply validates m for seat and returns the resulting state. The input state
// is never modified; on error the returned state is the zero value.
func Apply(s State, seat int, m Move) (State, error) {
	if s.Complete {
		return State{}, ErrHandComplete
	}
	if seat != s.Actor {
		return State{}, fmt.Errorf("%w: seat %d, actor %d", ErrNotYourTurn, seat, s.Actor)
	}
	ms := LegalMoves(s)
	if m.Type == AllIn && !ms.CanRaise {
		// all-in without a raise available is a call for whatever is left
		if ms.CanCheck {
			m = Move{Type: Check}
		} else {
			m = Move{Type: Call}
		}
	}
	if !ms.Allows(m) {
		return State{}, fmt.Errorf("%w: %s for seat %d", ErrIllegalMove, m, seat)
	}

	next := s.clone()
	p := &next.Seats[seat]
	switch m.Type {
	case Fold:
		p.Folded = true
		p.LastAction = "fold"
	case Check:
		p.LastAction = "check"
	case Call:
		next.commit(seat, ms.CallAmount)
		p.LastAction = fmt.Sprintf("call %d", ms.CallAmount)
	case Raise, AllIn:
		to := m.Amount
		if m.Type == AllIn {
			to = ms.MaxRaise
		}
		next.raiseTo(seat, to)
		if p.AllIn {
			p.LastAction = fmt.Sprintf("all-in %d", to)
		} else {
			p.LastAction = fmt.Sprintf("raise %d", to)
		}
	}
	p.Acted = true

	next.advance()
	return next, nil
}

// raiseTo lifts seat's street bet to total and reopens the action when it is a
// full raise. A short all-in raise does not reopen for seats that already acted.
func (s *State) raiseTo(seat, total int) {
	p := &s.Seats[seat]
	s.commit(seat, total-p.Bet)

	increment := total - s.CurrentBet
	if increment <= 0 {
		return
	}
	s.CurrentBet = total
	if increment < s.MinRaise {
		return
	}
	s.MinRaise = increment
	for i := range s.Seats {
		if i != seat {
			s.Seats[i].Acted = false
		}
	}
}
