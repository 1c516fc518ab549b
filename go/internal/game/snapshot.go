package game

import (
	"slices"

	"github.com/mcdev12/showdown/go/internal/holdem"
)

// Kind tells whether a slot is played by the human observer or a model
type Kind string

const (
	Human     Kind = "human"
	Automated Kind = "automated"
)

// HumanSlot is the slot index reserved for the human observer
const HumanSlot = 0

// SlotView is the public view of one player slot
type SlotView struct {
	Index      int      `json:"index"`
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Stack      int      `json:"stack"`
	Bet        int      `json:"bet"`
	Active     bool     `json:"active"`
	AllIn      bool     `json:"all_in"`
	Busted     bool     `json:"busted"`
	LastAction string   `json:"last_action,omitempty"`
	Hole       []string `json:"hole_cards,omitempty"`
}

func (v SlotView) equal(o SlotView) bool {
	return v.Index == o.Index && v.Name == o.Name && v.Kind == o.Kind &&
		v.Stack == o.Stack && v.Bet == o.Bet && v.Active == o.Active &&
		v.AllIn == o.AllIn && v.Busted == o.Busted && v.LastAction == o.LastAction &&
		slices.Equal(v.Hole, o.Hole)
}

// Snapshot is the full game state as broadcast to the client. Values are
// never modified after they are built.
type Snapshot struct {
	HandNumber   int             `json:"hand_number"`
	Street       string          `json:"street"`
	Pot          int             `json:"pot"`
	Board        []string        `json:"board"`
	Button       int             `json:"button"`
	CurrentActor int             `json:"current_actor"`
	Legal        *holdem.MoveSet `json:"legal_moves,omitempty"`
	Slots        []SlotView      `json:"slots"`
}

// Delta carries the fields of a Snapshot that changed. Changed slots are sent
// whole. CurrentActor and Legal are always set together, a nil Legal next to a
// present CurrentActor means no moves for the client.
type Delta struct {
	HandNumber   *int            `json:"hand_number,omitempty"`
	Street       *string         `json:"street,omitempty"`
	Pot          *int            `json:"pot,omitempty"`
	Board        []string        `json:"board,omitempty"`
	Button       *int            `json:"button,omitempty"`
	CurrentActor *int            `json:"current_actor,omitempty"`
	Legal        *holdem.MoveSet `json:"legal_moves,omitempty"`
	Slots        []SlotView      `json:"slots,omitempty"`
	HandComplete bool            `json:"hand_complete,omitempty"`
}

// Empty reports whether the delta changes nothing
func (d Delta) Empty() bool {
	return d.HandNumber == nil && d.Street == nil && d.Pot == nil && d.Board == nil &&
		d.Button == nil && d.CurrentActor == nil && len(d.Slots) == 0 && !d.HandComplete
}

// Diff computes the delta that takes prev to next
func Diff(prev, next Snapshot) Delta {
	var d Delta
	if prev.HandNumber != next.HandNumber {
		d.HandNumber = ptr(next.HandNumber)
	}
	if prev.Street != next.Street {
		d.Street = ptr(next.Street)
	}
	if prev.Pot != next.Pot {
		d.Pot = ptr(next.Pot)
	}
	if !slices.Equal(prev.Board, next.Board) {
		d.Board = append([]string{}, next.Board...)
	}
	if prev.Button != next.Button {
		d.Button = ptr(next.Button)
	}
	if prev.CurrentActor != next.CurrentActor || !legalEqual(prev.Legal, next.Legal) {
		d.CurrentActor = ptr(next.CurrentActor)
		d.Legal = copyLegal(next.Legal)
	}
	for i, slot := range next.Slots {
		if i >= len(prev.Slots) || !prev.Slots[i].equal(slot) {
			d.Slots = append(d.Slots, slot.clone())
		}
	}
	return d
}

// Merge applies d on top of s and returns the result. Merging the same delta
// twice gives the same snapshot as merging it once.
func (s Snapshot) Merge(d Delta) Snapshot {
	out := s.Clone()
	if d.HandNumber != nil {
		out.HandNumber = *d.HandNumber
	}
	if d.Street != nil {
		out.Street = *d.Street
	}
	if d.Pot != nil {
		out.Pot = *d.Pot
	}
	if d.Board != nil {
		out.Board = append([]string{}, d.Board...)
	}
	if d.Button != nil {
		out.Button = *d.Button
	}
	if d.CurrentActor != nil {
		out.CurrentActor = *d.CurrentActor
		out.Legal = copyLegal(d.Legal)
	}
	for _, slot := range d.Slots {
		switch {
		case slot.Index < len(out.Slots):
			out.Slots[slot.Index] = slot.clone()
		case slot.Index == len(out.Slots):
			out.Slots = append(out.Slots, slot.clone())
		}
	}
	return out
}

// Clone returns a deep copy
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Board = append([]string{}, s.Board...)
	out.Legal = copyLegal(s.Legal)
	out.Slots = make([]SlotView, len(s.Slots))
	for i, slot := range s.Slots {
		out.Slots[i] = slot.clone()
	}
	return out
}

func (v SlotView) clone() SlotView {
	if v.Hole != nil {
		v.Hole = append([]string{}, v.Hole...)
	}
	return v
}

func legalEqual(a, b *holdem.MoveSet) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyLegal(ms *holdem.MoveSet) *holdem.MoveSet {
	if ms == nil {
		return nil
	}
	c := *ms
	return &c
}

func ptr[T any](v T) *T { return &v }
