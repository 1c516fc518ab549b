package game

import (
	"errors"
	"fmt"

	"github.com/mcdev12/showdown/go/internal/holdem"
)

var (
	ErrNoHandInProgress = errors.New("no hand in progress")
	ErrHandInProgress   = errors.New("hand already in progress")
	// ErrNoSafeMove means neither check nor fold is legal for the actor. The
	// rules never produce that state so seeing it is an invariant violation.
	ErrNoSafeMove = errors.New("no safe default move available")
)

// RejectedMove is returned by Apply when a move is not legal. The authority
// state is unchanged when it is returned.
type RejectedMove struct {
	Actor int
	Move  holdem.Move
	Err   error
}

func (r *RejectedMove) Error() string {
	return fmt.Sprintf("move %s rejected for slot %d: %v", r.Move, r.Actor, r.Err)
}

func (r *RejectedMove) Unwrap() error { return r.Err }
