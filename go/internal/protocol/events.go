package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/showdown/go/internal/game"
	"github.com/mcdev12/showdown/go/internal/holdem"
)

// Event is the envelope of every server to client message
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType names a server to client message
type EventType string

const (
	EventConnectionAck     EventType = "connection_ack"
	EventFullState         EventType = "full_state"
	EventStateDelta        EventType = "state_delta"
	EventYourTurn          EventType = "your_turn"
	EventReasoningStart    EventType = "reasoning_start"
	EventReasoningToken    EventType = "reasoning_token"
	EventReasoningComplete EventType = "reasoning_complete"
	EventTimerStart        EventType = "timer_start"
	EventTimerTick         EventType = "timer_tick"
	EventTimerExpired      EventType = "timer_expired"
	EventHandComplete      EventType = "hand_complete"
	EventSessionComplete   EventType = "session_complete"
	EventPong              EventType = "pong"
	EventError             EventType = "error"
)

// Error codes carried by EventError
const (
	CodeInvalidMove      = "invalid_move"
	CodeGenerationFailed = "generation_failed"
	CodeSessionNotFound  = "session_not_found"
	CodeInvalidMessage   = "invalid_message"
	CodeSessionEnded     = "session_ended"
	CodeInternal         = "internal_error"
)

// ConnectionAckPayload is sent first on every new connection
type ConnectionAckPayload struct {
	SessionID string `json:"session_id"`
	PlayerID  int    `json:"player_id"`
}

// ReasoningSnapshot is the reasoning stream part of a full state
type ReasoningSnapshot struct {
	Actor     int          `json:"actor"`
	Name      string       `json:"name"`
	Text      string       `json:"text"`
	State     string       `json:"state"`
	Move      *holdem.Move `json:"move,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// TimerSnapshot is the countdown part of a full state
type TimerSnapshot struct {
	Actor     int `json:"actor"`
	Duration  int `json:"duration"`
	Remaining int `json:"remaining"`
}

// FullStatePayload replaces everything the client holds
type FullStatePayload struct {
	Lifecycle   string               `json:"lifecycle"`
	State       game.Snapshot        `json:"state"`
	Reasoning   []ReasoningSnapshot  `json:"reasoning,omitempty"`
	Timer       *TimerSnapshot       `json:"timer,omitempty"`
	HandsPlayed int                  `json:"hands_played"`
	HandLimit   int                  `json:"hand_limit"`
	LastHand    *HandCompletePayload `json:"last_hand,omitempty"`
}

// YourTurnPayload announces the human's legal moves
type YourTurnPayload struct {
	Legal holdem.MoveSet `json:"legal_moves"`
}

type ReasoningStartPayload struct {
	Actor int    `json:"actor"`
	Name  string `json:"name"`
	Model string `json:"model,omitempty"`
}

type ReasoningTokenPayload struct {
	Actor int    `json:"actor"`
	Text  string `json:"text"`
}

type ReasoningCompletePayload struct {
	Actor      int         `json:"actor"`
	Move       holdem.Move `json:"move"`
	FullText   string      `json:"full_text"`
	DurationMS int64       `json:"duration_ms"`
	Fallback   bool        `json:"fallback,omitempty"`
}

type TimerStartPayload struct {
	Actor    int       `json:"actor"`
	Duration int       `json:"duration"`
	Deadline time.Time `json:"deadline"`
}

type TimerTickPayload struct {
	Actor     int `json:"actor"`
	Remaining int `json:"remaining"`
}

type TimerExpiredPayload struct {
	Actor int         `json:"actor"`
	Move  holdem.Move `json:"move"`
}

// HandCompletePayload reports the payout of a finished hand
type HandCompletePayload struct {
	HandNumber int              `json:"hand_number"`
	Pot        int              `json:"pot"`
	Board      []string         `json:"board"`
	Winners    []int            `json:"winners"`
	Amounts    []int            `json:"amounts"`
	Showdown   bool             `json:"showdown"`
	Revealed   map[int][]string `json:"revealed,omitempty"`
	Hands      map[int]string   `json:"hands,omitempty"`
	Stacks     []int            `json:"stacks"`
}

// NewHandComplete converts a game result to its wire form
func NewHandComplete(r *game.HandResult) HandCompletePayload {
	return HandCompletePayload{
		HandNumber: r.HandNumber,
		Pot:        r.Pot,
		Board:      r.Board,
		Winners:    r.Winners,
		Amounts:    r.Amounts,
		Showdown:   r.Showdown,
		Revealed:   r.Revealed,
		Hands:      r.Hands,
		Stacks:     r.Stacks,
	}
}

type SessionCompletePayload struct {
	FinalStacks []int  `json:"final_stacks"`
	HandsPlayed int    `json:"hands_played"`
	Reason      string `json:"reason"`
}

type PongPayload struct{}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds an event with the payload marshalled into Data
func New(typ EventType, sessionID string, at time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return &Event{
		Type:      typ,
		SessionID: sessionID,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// ParsePayload decodes Data into the payload type of the event
func ParsePayload(ev *Event) (any, error) {
	var target any
	switch ev.Type {
	case EventConnectionAck:
		target = &ConnectionAckPayload{}
	case EventFullState:
		target = &FullStatePayload{}
	case EventStateDelta:
		target = &game.Delta{}
	case EventYourTurn:
		target = &YourTurnPayload{}
	case EventReasoningStart:
		target = &ReasoningStartPayload{}
	case EventReasoningToken:
		target = &ReasoningTokenPayload{}
	case EventReasoningComplete:
		target = &ReasoningCompletePayload{}
	case EventTimerStart:
		target = &TimerStartPayload{}
	case EventTimerTick:
		target = &TimerTickPayload{}
	case EventTimerExpired:
		target = &TimerExpiredPayload{}
	case EventHandComplete:
		target = &HandCompletePayload{}
	case EventSessionComplete:
		target = &SessionCompletePayload{}
	case EventPong:
		target = &PongPayload{}
	case EventError:
		target = &ErrorPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if err := json.Unmarshal(ev.Data, target); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	return target, nil
}
