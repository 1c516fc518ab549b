package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/showdown/go/internal/holdem"
)

var ErrInvalidMessage = errors.New("invalid client message")

// MessageType names a client to server message
type MessageType string

const (
	MessageSubmitMove      MessageType = "submit_move"
	MessageRequestNextHand MessageType = "request_next_hand"
	MessageEndSession      MessageType = "end_session"
	MessageKeepalive       MessageType = "keepalive"
)

// ClientMessage is any message the browser sends
type ClientMessage struct {
	Type     MessageType     `json:"type"`
	MoveType holdem.MoveType `json:"move_type,omitempty"`
	Amount   *int            `json:"amount,omitempty"`
}

// Move converts a submit_move message to a rules engine move
func (m ClientMessage) Move() holdem.Move {
	move := holdem.Move{Type: m.MoveType}
	if m.Amount != nil {
		move.Amount = *m.Amount
	}
	return move
}

// ParseClientMessage decodes and validates a raw client frame
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	switch m.Type {
	case MessageRequestNextHand, MessageEndSession, MessageKeepalive:
		return m, nil
	case MessageSubmitMove:
	default:
		return ClientMessage{}, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}

	switch m.MoveType {
	case holdem.Fold, holdem.Check, holdem.Call, holdem.AllIn:
	case holdem.Raise:
		if m.Amount == nil || *m.Amount <= 0 {
			return ClientMessage{}, fmt.Errorf("%w: raise needs a positive amount", ErrInvalidMessage)
		}
	default:
		return ClientMessage{}, fmt.Errorf("%w: unknown move type %q", ErrInvalidMessage, m.MoveType)
	}
	return m, nil
}
