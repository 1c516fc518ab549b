package archive

import (
	"context"
	"fmt"
	"time"
)

// ReasoningRecord is the history entry of one finished reasoning stream
type ReasoningRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	HandNumber int       `json:"hand_number"`
	Street     string    `json:"street"`
	Actor      int       `json:"actor"`
	Name       string    `json:"name"`
	Model      string    `json:"model"`
	Text       string    `json:"text"`
	Move       string    `json:"move"`
	Fallback   bool      `json:"fallback"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// HandRecord is the history entry of one finished hand
type HandRecord struct {
	ID         string           `json:"id"`
	SessionID  string           `json:"session_id"`
	HandNumber int              `json:"hand_number"`
	Pot        int              `json:"pot"`
	Board      []string         `json:"board"`
	Winners    []int            `json:"winners"`
	Amounts    []int            `json:"amounts"`
	Showdown   bool             `json:"showdown"`
	Revealed   map[int][]string `json:"revealed,omitempty"`
	Hands      map[int]string   `json:"hands,omitempty"`
	Stacks     []int            `json:"stacks"`
	At         time.Time        `json:"at"`
}

// Archiver stores reasoning and hand history
type Archiver interface {
	ArchiveReasoning(ctx context.Context, rec ReasoningRecord) error
	ArchiveHand(ctx context.Context, rec HandRecord) error
	Close() error
}

// Subject layout on the event bus
const SubjectPrefix = "poker.sessions"

func ReasoningSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.reasoning", SubjectPrefix, sessionID)
}

func HandSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.hand", SubjectPrefix, sessionID)
}
