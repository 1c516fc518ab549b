package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/showdown/go/internal/clientsync"
	"github.com/mcdev12/showdown/go/internal/holdem"
	"github.com/mcdev12/showdown/go/internal/protocol"
)

var (
	errNotYourTurn = errors.New("it is not your turn")
	errHelp        = errors.New("help requested")
)

const helpText = `commands:
  f, fold          x, check        c, call
  r N, raise N     a, all-in       (raise N means raise to a total of N)
  n, next          deal the next hand
  q, quit          end the session
`

// parseCommand turns one line of input into a client message. Moves are
// refused locally while the move controls are disabled.
func parseCommand(line string, st clientsync.State) (protocol.ClientMessage, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return protocol.ClientMessage{}, errHelp
	}

	move := func(typ holdem.MoveType, amount *int) (protocol.ClientMessage, error) {
		if !st.MovesEnabled() {
			return protocol.ClientMessage{}, errNotYourTurn
		}
		return protocol.ClientMessage{Type: protocol.MessageSubmitMove, MoveType: typ, Amount: amount}, nil
	}

	switch fields[0] {
	case "f", "fold":
		return move(holdem.Fold, nil)
	case "x", "k", "check":
		return move(holdem.Check, nil)
	case "c", "call":
		return move(holdem.Call, nil)
	case "a", "allin", "all-in", "all_in", "shove":
		return move(holdem.AllIn, nil)
	case "r", "raise", "b", "bet":
		if len(fields) < 2 {
			return protocol.ClientMessage{}, fmt.Errorf("%s needs an amount", fields[0])
		}
		amount, err := strconv.Atoi(fields[1])
		if err != nil || amount <= 0 {
			return protocol.ClientMessage{}, fmt.Errorf("invalid amount %q", fields[1])
		}
		return move(holdem.Raise, &amount)
	case "n", "next", "deal":
		return protocol.ClientMessage{Type: protocol.MessageRequestNextHand}, nil
	case "q", "quit", "exit":
		return protocol.ClientMessage{Type: protocol.MessageEndSession}, nil
	case "?", "h", "help":
		return protocol.ClientMessage{}, errHelp
	}
	return protocol.ClientMessage{}, fmt.Errorf("unknown command %q (type help)", fields[0])
}

// parseOpponent reads NAME[=MODEL[@TEMPERATURE]]
func parseOpponent(arg string) (name, model string, temperature float64, err error) {
	name, rest, hasModel := strings.Cut(arg, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", 0, fmt.Errorf("opponent %q has no name", arg)
	}
	if !hasModel {
		return name, "", 0, nil
	}
	model, temp, hasTemp := strings.Cut(rest, "@")
	if hasTemp {
		temperature, err = strconv.ParseFloat(temp, 64)
		if err != nil {
			return "", "", 0, fmt.Errorf("opponent %q: invalid temperature: %w", arg, err)
		}
	}
	return name, strings.TrimSpace(model), temperature, nil
}
