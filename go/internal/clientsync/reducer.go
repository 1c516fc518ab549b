package clientsync

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mcdev12/showdown/go/internal/game"
	"github.com/mcdev12/showdown/go/internal/holdem"
	"github.com/mcdev12/showdown/go/internal/protocol"
)

var ErrForeignEvent = errors.New("event belongs to another session")

// Reasoning states as shown to the client
const (
	StreamActive = "active"
	StreamFrozen = "frozen"
)

// Lifecycle values the client derives between full states
const (
	lifecycleBetweenHands = "between_hands"
	lifecycleEnded        = "ended"
)

// Reasoning is the client's copy of one actor's reasoning for the current turn
type Reasoning struct {
	Actor      int
	Name       string
	Model      string
	Text       string
	State      string
	Move       *holdem.Move
	Fallback   bool
	DurationMS int64
	StartedAt  time.Time
}

// Countdown is the displayed turn timer. Remaining was true at At.
type Countdown struct {
	Actor     int
	Duration  int
	Remaining int
	At        time.Time
}

// RemainingAt interpolates the countdown to now
func (c Countdown) RemainingAt(now time.Time) int {
	elapsed := int(now.Sub(c.At) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	return max(c.Remaining-elapsed, 0)
}

// State is everything a client renders. Reduce never mutates its input.
type State struct {
	SessionID   string
	PlayerID    int
	Connected   bool
	Lifecycle   string
	Table       game.Snapshot
	Reasoning   map[int]Reasoning
	Timer       *Countdown
	HandsPlayed int
	HandLimit   int
	LastHand    *protocol.HandCompletePayload
	Final       *protocol.SessionCompletePayload
	LastError   *protocol.ErrorPayload
	LastEventAt time.Time
}

// MovesEnabled reports whether the human's move controls should be live
func (s State) MovesEnabled() bool {
	return s.Table.CurrentActor == game.HumanSlot && s.Table.Legal != nil && s.Table.Legal.Actor == game.HumanSlot
}

// Streams returns the reasoning streams ordered by actor
func (s State) Streams() []Reasoning {
	out := make([]Reasoning, 0, len(s.Reasoning))
	for _, r := range s.Reasoning {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Actor < out[j].Actor })
	return out
}

func (s State) clone() State {
	out := s
	out.Table = s.Table.Clone()
	out.Reasoning = make(map[int]Reasoning, len(s.Reasoning))
	for actor, r := range s.Reasoning {
		if r.Move != nil {
			m := *r.Move
			r.Move = &m
		}
		out.Reasoning[actor] = r
	}
	if s.Timer != nil {
		t := *s.Timer
		out.Timer = &t
	}
	return out
}

// Reduce applies one server event to s and returns the new state
func Reduce(s State, ev *protocol.Event) (State, error) {
	if s.SessionID != "" && ev.SessionID != "" && ev.SessionID != s.SessionID {
		return s, fmt.Errorf("%w: %s", ErrForeignEvent, ev.SessionID)
	}
	payload, err := protocol.ParsePayload(ev)
	if err != nil {
		return s, err
	}

	out := s.clone()
	out.LastEventAt = ev.Timestamp
	if out.SessionID == "" {
		out.SessionID = ev.SessionID
	}

	switch p := payload.(type) {
	case *protocol.ConnectionAckPayload:
		out.SessionID = p.SessionID
		out.PlayerID = p.PlayerID
		out.Connected = true

	case *protocol.FullStatePayload:
		replaceAll(&out, p, ev.Timestamp)

	case *game.Delta:
		out.Table = out.Table.Merge(*p)
		if out.Timer != nil && out.Table.CurrentActor != out.Timer.Actor {
			// the timed actor moved; there is no cancel event
			out.Timer = nil
		}

	case *protocol.YourTurnPayload:
		if out.Table.CurrentActor == p.Legal.Actor {
			legal := p.Legal
			out.Table.Legal = &legal
		}

	case *protocol.ReasoningStartPayload:
		if r, ok := out.Reasoning[p.Actor]; ok && r.State == StreamActive {
			break
		}
		out.Reasoning[p.Actor] = Reasoning{
			Actor:     p.Actor,
			Name:      p.Name,
			Model:     p.Model,
			State:     StreamActive,
			StartedAt: ev.Timestamp,
		}

	case *protocol.ReasoningTokenPayload:
		r, ok := out.Reasoning[p.Actor]
		if !ok {
			r = Reasoning{Actor: p.Actor, State: StreamActive, StartedAt: ev.Timestamp}
		}
		if r.State == StreamFrozen {
			break
		}
		r.Text += p.Text
		out.Reasoning[p.Actor] = r

	case *protocol.ReasoningCompletePayload:
		r := out.Reasoning[p.Actor]
		r.Actor = p.Actor
		r.State = StreamFrozen
		r.Text = p.FullText
		move := p.Move
		r.Move = &move
		r.Fallback = p.Fallback
		r.DurationMS = p.DurationMS
		out.Reasoning[p.Actor] = r

	case *protocol.TimerStartPayload:
		out.Timer = &Countdown{Actor: p.Actor, Duration: p.Duration, Remaining: p.Duration, At: ev.Timestamp}

	case *protocol.TimerTickPayload:
		if out.Timer == nil || out.Timer.Actor != p.Actor {
			out.Timer = &Countdown{Actor: p.Actor, Duration: p.Remaining}
		}
		out.Timer.Remaining = p.Remaining
		out.Timer.At = ev.Timestamp

	case *protocol.TimerExpiredPayload:
		out.Timer = nil

	case *protocol.HandCompletePayload:
		out.LastHand = p
		out.HandsPlayed = max(out.HandsPlayed, p.HandNumber)
		out.Lifecycle = lifecycleBetweenHands
		out.Timer = nil
		out.Table.Legal = nil
		out.Table.CurrentActor = holdem.NoActor

	case *protocol.SessionCompletePayload:
		out.Final = p
		out.HandsPlayed = p.HandsPlayed
		out.Lifecycle = lifecycleEnded
		out.Timer = nil
		out.Table.Legal = nil
		out.Table.CurrentActor = holdem.NoActor

	case *protocol.ErrorPayload:
		out.LastError = p

	case *protocol.PongPayload:
	}
	return out, nil
}

// replaceAll swaps in a full state, re-seeding reasoning and the countdown
func replaceAll(out *State, p *protocol.FullStatePayload, at time.Time) {
	out.Lifecycle = p.Lifecycle
	out.Table = p.State.Clone()
	out.HandsPlayed = p.HandsPlayed
	out.HandLimit = p.HandLimit
	out.LastHand = p.LastHand
	out.Reasoning = make(map[int]Reasoning, len(p.Reasoning))
	for _, snap := range p.Reasoning {
		r := Reasoning{
			Actor:     snap.Actor,
			Name:      snap.Name,
			Text:      snap.Text,
			State:     snap.State,
			StartedAt: snap.StartedAt,
		}
		if snap.Move != nil {
			m := *snap.Move
			r.Move = &m
		}
		out.Reasoning[snap.Actor] = r
	}
	out.Timer = nil
	if p.Timer != nil {
		out.Timer = &Countdown{
			Actor:     p.Timer.Actor,
			Duration:  p.Timer.Duration,
			Remaining: p.Timer.Remaining,
			At:        at,
		}
	}
	if p.Lifecycle != lifecycleEnded {
		out.Final = nil
	}
}
