package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/showdown/go/internal/clientsync"
	"github.com/mcdev12/showdown/go/internal/game"
	"github.com/mcdev12/showdown/go/internal/holdem"
	"github.com/mcdev12/showdown/go/internal/protocol"
)

func humanToAct() clientsync.State {
	return clientsync.State{Table: game.Snapshot{
		CurrentActor: game.HumanSlot,
		Legal:        &holdem.MoveSet{Actor: game.HumanSlot, CanFold: true, CanCall: true, CallAmount: 50, CanRaise: true, MinRaise: 200, MaxRaise: 9900},
	}}
}

func TestParseCommand_Moves(t *testing.T) {
	st := humanToAct()
	cases := map[string]holdem.MoveType{
		"f":      holdem.Fold,
		"FOLD":   holdem.Fold,
		"x":      holdem.Check,
		"c":      holdem.Call,
		"a":      holdem.AllIn,
		"all-in": holdem.AllIn,
	}
	for line, want := range cases {
		msg, err := parseCommand(line, st)
		require.NoError(t, err, line)
		assert.Equal(t, protocol.MessageSubmitMove, msg.Type, line)
		assert.Equal(t, want, msg.MoveType, line)
		assert.Nil(t, msg.Amount, line)
	}

	msg, err := parseCommand("  r 400 ", st)
	require.NoError(t, err)
	assert.Equal(t, holdem.Raise, msg.MoveType)
	require.NotNil(t, msg.Amount)
	assert.Equal(t, 400, *msg.Amount)
}

func TestParseCommand_RefusesMovesOutOfTurn(t *testing.T) {
	st := clientsync.State{Table: game.Snapshot{CurrentActor: 1}}
	_, err := parseCommand("call", st)
	assert.ErrorIs(t, err, errNotYourTurn)

	// session control works any time
	msg, err := parseCommand("n", st)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageRequestNextHand, msg.Type)

	msg, err = parseCommand("quit", st)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageEndSession, msg.Type)
}

func TestParseCommand_Errors(t *testing.T) {
	st := humanToAct()

	_, err := parseCommand("", st)
	assert.ErrorIs(t, err, errHelp)
	_, err = parseCommand("help", st)
	assert.ErrorIs(t, err, errHelp)

	for _, line := range []string{"r", "raise lots", "r -5", "dance"} {
		_, err := parseCommand(line, st)
		assert.Error(t, err, line)
		assert.NotErrorIs(t, err, errHelp, line)
	}
}

func TestParseOpponent(t *testing.T) {
	name, model, temp, err := parseOpponent("Doyle=llama3:8b@0.7")
	require.NoError(t, err)
	assert.Equal(t, "Doyle", name)
	assert.Equal(t, "llama3:8b", model)
	assert.InDelta(t, 0.7, temp, 1e-9)

	name, model, temp, err = parseOpponent("Phil")
	require.NoError(t, err)
	assert.Equal(t, "Phil", name)
	assert.Empty(t, model)
	assert.Zero(t, temp)

	_, _, _, err = parseOpponent("=qwen3")
	assert.Error(t, err)
	_, _, _, err = parseOpponent("Phil=qwen3@hot")
	assert.Error(t, err)
}

func TestPlayOptionsRequest(t *testing.T) {
	opts := &playOptions{opponents: []string{"Doyle=llama3:8b", "Phil"}, hands: 3}
	req, err := opts.request()
	require.NoError(t, err)
	assert.Nil(t, req.TurnTimeoutSeconds)
	require.NotNil(t, req.NumHands)
	assert.Equal(t, 3, *req.NumHands)
	assert.Nil(t, req.StartingStack, "unset flags use the server defaults")
	assert.Nil(t, req.SmallBlind)
	assert.Nil(t, req.BigBlind)
	require.Len(t, req.Opponents, 2)
	assert.Equal(t, "llama3:8b", req.Opponents[0].Model)

	opts.turnTimeout = 15
	opts.stack, opts.smallBlind, opts.bigBlind = 5000, 25, 50
	req, err = opts.request()
	require.NoError(t, err)
	require.NotNil(t, req.TurnTimeoutSeconds)
	assert.Equal(t, 15, *req.TurnTimeoutSeconds)
	require.NotNil(t, req.StartingStack)
	assert.Equal(t, 5000, *req.StartingStack)
	assert.Equal(t, 25, *req.SmallBlind)
	assert.Equal(t, 50, *req.BigBlind)
}
