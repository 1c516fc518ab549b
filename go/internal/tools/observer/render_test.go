package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/showdown/go/internal/clientsync"
	"github.com/mcdev12/showdown/go/internal/game"
	"github.com/mcdev12/showdown/go/internal/holdem"
	"github.com/mcdev12/showdown/go/internal/protocol"
)

var renderAt = time.Date(2026, 5, 2, 21, 0, 0, 0, time.UTC)

// step reduces ev and returns what the observer prints for it
func step(t *testing.T, st clientsync.State, typ protocol.EventType, payload any) (clientsync.State, string) {
	t.Helper()
	ev, err := protocol.New(typ, "s1", renderAt, payload)
	require.NoError(t, err)
	next, err := clientsync.Reduce(st, ev)
	require.NoError(t, err)
	return next, describe(ev, st, next)
}

func twoSeats() game.Snapshot {
	return game.Snapshot{
		HandNumber:   1,
		Street:       "preflop",
		Pot:          150,
		Button:       1,
		CurrentActor: 1,
		Slots: []game.SlotView{
			{Index: 0, Name: "You", Kind: game.Human, Stack: 9900, Bet: 100, Active: true, Hole: []string{"As", "Kd"}},
			{Index: 1, Name: "Doyle", Kind: game.Automated, Stack: 9950, Bet: 50, Active: true},
		},
	}
}

func TestDescribe_TableAndReasoning(t *testing.T) {
	st, out := step(t, clientsync.State{}, protocol.EventFullState, protocol.FullStatePayload{
		Lifecycle: "in_hand",
		State:     twoSeats(),
		HandLimit: 3,
	})
	assert.Contains(t, out, "hand 1/3, preflop, pot 150")
	assert.Contains(t, out, "[As Kd]")
	assert.Contains(t, out, "D Doyle")

	st, out = step(t, st, protocol.EventReasoningStart, protocol.ReasoningStartPayload{Actor: 1, Name: "Doyle", Model: "llama3:8b"})
	assert.Contains(t, out, "Doyle is thinking (llama3:8b)")

	st, out = step(t, st, protocol.EventReasoningToken, protocol.ReasoningTokenPayload{Actor: 1, Text: "Pot odds "})
	assert.Equal(t, "Pot odds ", out)
	st, out = step(t, st, protocol.EventReasoningToken, protocol.ReasoningTokenPayload{Actor: 1, Text: "are fine."})
	assert.Equal(t, "are fine.", out)

	_, out = step(t, st, protocol.EventReasoningComplete, protocol.ReasoningCompletePayload{
		Actor:      1,
		Move:       holdem.Move{Type: holdem.Call},
		FullText:   "Pot odds are fine.",
		DurationMS: 1500,
		Fallback:   true,
	})
	assert.Contains(t, out, "=> Doyle:")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "[default move]")
}

func TestDescribe_YourTurnAndTimer(t *testing.T) {
	st, _ := step(t, clientsync.State{}, protocol.EventFullState, protocol.FullStatePayload{Lifecycle: "in_hand", State: twoSeats()})

	legal := &holdem.MoveSet{Actor: 0, CanFold: true, CanCall: true, CallAmount: 50, CanRaise: true, MinRaise: 200, MaxRaise: 9900}
	actor := 0
	st, out := step(t, st, protocol.EventStateDelta, game.Delta{
		CurrentActor: &actor,
		Legal:        legal,
		Slots:        []game.SlotView{{Index: 1, Name: "Doyle", Kind: game.Automated, Stack: 9900, Bet: 100, Active: true, LastAction: "call"}},
	})
	assert.Contains(t, out, "Doyle: call (stack 9900)")

	st, out = step(t, st, protocol.EventYourTurn, protocol.YourTurnPayload{Legal: *legal})
	assert.Contains(t, out, "cards As Kd")
	assert.Contains(t, out, "[c]all 50")
	assert.Contains(t, out, "[r]aise 200-9900")
	assert.NotContains(t, out, "check")

	st, out = step(t, st, protocol.EventTimerStart, protocol.TimerStartPayload{Actor: 0, Duration: 30})
	assert.Equal(t, "you have 30s\n", out)

	st, out = step(t, st, protocol.EventTimerTick, protocol.TimerTickPayload{Actor: 0, Remaining: 29})
	assert.Empty(t, out)
	st, out = step(t, st, protocol.EventTimerTick, protocol.TimerTickPayload{Actor: 0, Remaining: 10})
	assert.Equal(t, "10s left\n", out)

	_, out = step(t, st, protocol.EventTimerExpired, protocol.TimerExpiredPayload{Actor: 0, Move: holdem.Move{Type: holdem.Fold}})
	assert.Contains(t, out, "time is up")
}

func TestDescribe_HandAndSessionComplete(t *testing.T) {
	st, _ := step(t, clientsync.State{}, protocol.EventFullState, protocol.FullStatePayload{Lifecycle: "in_hand", State: twoSeats(), HandLimit: 2})

	st, out := step(t, st, protocol.EventHandComplete, protocol.HandCompletePayload{
		HandNumber: 1,
		Pot:        200,
		Board:      []string{"2c", "7d", "9h", "Js", "Qc"},
		Winners:    []int{1},
		Amounts:    []int{200},
		Showdown:   true,
		Hands:      map[int]string{1: "pair of queens"},
		Stacks:     []int{9900, 10100},
	})
	assert.Contains(t, out, "hand 1 over, pot 200, board 2c 7d 9h Js Qc")
	assert.Contains(t, out, "Doyle wins 200 with pair of queens")
	assert.Contains(t, out, "stacks: You 9900, Doyle 10100")
	assert.Contains(t, out, "type n for the next hand")

	st, out = step(t, st, protocol.EventSessionComplete, protocol.SessionCompletePayload{FinalStacks: []int{9900, 10100}, HandsPlayed: 1, Reason: "ended_by_client"})
	assert.Contains(t, out, "session over after 1 hands (ended_by_client)")
	assert.Contains(t, out, "final stacks: You 9900, Doyle 10100")

	_, out = step(t, st, protocol.EventError, protocol.ErrorPayload{Code: protocol.CodeSessionEnded, Message: "session has ended"})
	assert.Equal(t, "! session_ended: session has ended\n", out)
}
