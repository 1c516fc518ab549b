package game

import (
	"fmt"

	"github.com/mcdev12/showdown/go/internal/holdem"
)

// SeatConfig describes a slot when the authority is created
type SeatConfig struct {
	Name  string
	Kind  Kind
	Stack int
}

// HandResult is the payout summary of a finished hand
type HandResult struct {
	HandNumber int
	Pot        int
	Board      []string
	Winners    []int
	Amounts    []int
	Showdown   bool
	Revealed   map[int][]string
	Hands      map[int]string
	Stacks     []int
}

// Outcome is what a successful Apply produces. Result is set only when the
// move finished the hand, in which case Delta.HandComplete is true.
type Outcome struct {
	Delta  Delta
	Result *HandResult
}

// ActorView is everything an automated actor may see when deciding a move
type ActorView struct {
	Slot       int
	Name       string
	Position   string
	Players    int
	HandNumber int
	Street     string
	Hole       []string
	Board      []string
	Pot        int
	Stack      int
	BigBlind   int
	Legal      holdem.MoveSet
	Opponents  []SlotView
}

// Authority owns the game state of one session. It is not safe for concurrent
// use; the session worker is its only caller.
type Authority struct {
	engine *holdem.Engine
	seats  []SeatConfig
	stacks []int
	button int

	handNumber int
	hand       *holdem.State
	inHand     bool
	last       Snapshot
}

// NewAuthority builds an authority over the given seats. Slot 0 must be the
// human observer.
func NewAuthority(seats []SeatConfig, cfg holdem.Config) (*Authority, error) {
	if len(seats) < 2 {
		return nil, holdem.ErrNotEnoughSeats
	}
	if seats[HumanSlot].Kind != Human {
		return nil, fmt.Errorf("%w: slot %d must be human", holdem.ErrInvalidSeat, HumanSlot)
	}
	engine, err := holdem.NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	a := &Authority{
		engine: engine,
		seats:  append([]SeatConfig(nil), seats...),
		stacks: make([]int, len(seats)),
		button: HumanSlot,
	}
	for i, seat := range seats {
		a.stacks[i] = seat.Stack
	}
	a.last = a.render()
	return a, nil
}

// InHand reports whether a hand is being played
func (a *Authority) InHand() bool { return a.inHand }

// HandNumber is the number of the current or last played hand
func (a *Authority) HandNumber() int { return a.handNumber }

// Stacks returns a copy of the slot stacks. During a hand chips in the pot are
// not included.
func (a *Authority) Stacks() []int {
	if a.hand != nil && a.inHand {
		out := make([]int, len(a.hand.Seats))
		for i, seat := range a.hand.Seats {
			out[i] = seat.Stack
		}
		return out
	}
	return append([]int(nil), a.stacks...)
}

// SettledStacks returns the stacks as of the last finished hand
func (a *Authority) SettledStacks() []int {
	return append([]int(nil), a.stacks...)
}

// Funded is the number of slots that still have chips
func (a *Authority) Funded() int {
	n := 0
	for _, st := range a.stacks {
		if st > 0 {
			n++
		}
	}
	return n
}

// CurrentActor is the slot due to act, or holdem.NoActor
func (a *Authority) CurrentActor() int {
	if !a.inHand {
		return holdem.NoActor
	}
	return a.hand.Actor
}

// StartHand moves the button and deals the next hand
func (a *Authority) StartHand() (Snapshot, error) {
	if a.inHand {
		return Snapshot{}, ErrHandInProgress
	}
	button := holdem.NextButton(a.stacks, a.button)
	if button == holdem.NoActor {
		return Snapshot{}, holdem.ErrNotEnoughSeats
	}
	state, err := a.engine.StartHand(a.stacks, button, a.handNumber+1)
	if err != nil {
		return Snapshot{}, err
	}

	a.button = button
	a.handNumber++
	a.hand = &state
	a.inHand = true
	// a hand can end during the deal when the blinds put everybody all-in
	if state.Complete {
		a.settle()
	}
	a.last = a.render()
	return a.last.Clone(), nil
}

// LegalMoves returns the move set of actor. It is empty (Actor ==
// holdem.NoActor) when it is not actor's turn.
func (a *Authority) LegalMoves(actor int) holdem.MoveSet {
	if !a.inHand || a.hand.Actor != actor {
		return holdem.MoveSet{Actor: holdem.NoActor}
	}
	return holdem.LegalMoves(*a.hand)
}

// Apply validates and applies a move. Illegal moves return *RejectedMove and
// leave the state untouched.
func (a *Authority) Apply(actor int, m holdem.Move) (Outcome, error) {
	if !a.inHand {
		return Outcome{}, &RejectedMove{Actor: actor, Move: m, Err: ErrNoHandInProgress}
	}
	next, err := holdem.Apply(*a.hand, actor, m)
	if err != nil {
		return Outcome{}, &RejectedMove{Actor: actor, Move: m, Err: err}
	}
	a.hand = &next

	var out Outcome
	if next.Complete {
		out.Result = a.settle()
	}
	snap := a.render()
	out.Delta = Diff(a.last, snap)
	out.Delta.HandComplete = next.Complete
	a.last = snap
	return out, nil
}

// SafeDefault is the fallback move for actor: check when nothing is owed,
// otherwise fold.
func (a *Authority) SafeDefault(actor int) (holdem.Move, error) {
	ms := a.LegalMoves(actor)
	switch {
	case ms.CanCheck:
		return holdem.Move{Type: holdem.Check}, nil
	case ms.CanFold:
		return holdem.Move{Type: holdem.Fold}, nil
	default:
		return holdem.Move{}, fmt.Errorf("%w: slot %d", ErrNoSafeMove, actor)
	}
}

// Snapshot returns the last rendered state
func (a *Authority) Snapshot() Snapshot {
	return a.last.Clone()
}

// View renders what actor knows at its turn
func (a *Authority) View(actor int) (ActorView, error) {
	if !a.inHand {
		return ActorView{}, ErrNoHandInProgress
	}
	if actor < 0 || actor >= len(a.seats) {
		return ActorView{}, fmt.Errorf("%w: %d", holdem.ErrInvalidSeat, actor)
	}
	s := a.hand
	view := ActorView{
		Slot:       actor,
		Name:       a.seats[actor].Name,
		Position:   a.position(actor),
		HandNumber: s.HandNumber,
		Street:     s.Street.String(),
		Hole:       holdem.CardStrings(s.Seats[actor].Hole),
		Board:      holdem.CardStrings(s.Board),
		Pot:        s.Pot(),
		Stack:      s.Seats[actor].Stack,
		BigBlind:   s.BigBlind,
		Legal:      a.LegalMoves(actor),
	}
	for _, slot := range a.last.Slots {
		if slot.Index != actor {
			slot.Hole = nil
			view.Opponents = append(view.Opponents, slot)
		}
		if slot.Active || slot.AllIn {
			view.Players++
		}
	}
	return view, nil
}

func (a *Authority) position(slot int) string {
	s := a.hand
	switch slot {
	case s.Button:
		return "BTN"
	case s.SmallBlindSeat:
		return "SB"
	case s.BigBlindSeat:
		return "BB"
	}
	// count seats in the hand between the big blind and slot
	n, dist := len(s.Seats), 0
	for i := 1; i < n; i++ {
		seat := (s.BigBlindSeat + i) % n
		if !s.Seats[seat].InHand {
			continue
		}
		dist++
		if seat == slot {
			break
		}
	}
	if dist == 1 {
		return "UTG"
	}
	if (slot+1)%n == s.Button {
		return "CO"
	}
	return "MP"
}

// settle copies the stacks of a finished hand back into the session totals
func (a *Authority) settle() *HandResult {
	a.inHand = false
	for i, seat := range a.hand.Seats {
		a.stacks[i] = seat.Stack
	}
	return a.LastResult()
}

// LastResult describes the most recently finished hand, nil before the first
// one completes
func (a *Authority) LastResult() *HandResult {
	if a.hand == nil || !a.hand.Complete || a.hand.Result == nil {
		return nil
	}
	s, r := a.hand, a.hand.Result
	res := &HandResult{
		HandNumber: s.HandNumber,
		Pot:        r.Pot,
		Board:      holdem.CardStrings(s.Board),
		Winners:    append([]int(nil), r.Winners...),
		Amounts:    append([]int(nil), r.Amounts...),
		Showdown:   r.Showdown,
		Revealed:   make(map[int][]string, len(r.Revealed)),
		Hands:      make(map[int]string, len(r.Hands)),
		Stacks:     append([]int(nil), a.stacks...),
	}
	for seat, cards := range r.Revealed {
		res.Revealed[seat] = holdem.CardStrings(cards)
	}
	for seat, desc := range r.Hands {
		res.Hands[seat] = desc
	}
	return res
}

func (a *Authority) render() Snapshot {
	snap := Snapshot{
		HandNumber:   a.handNumber,
		Board:        []string{},
		Button:       a.button,
		CurrentActor: holdem.NoActor,
		Slots:        make([]SlotView, len(a.seats)),
	}
	if a.hand == nil {
		snap.Street = "waiting"
		for i, seat := range a.seats {
			snap.Slots[i] = SlotView{
				Index:  i,
				Name:   seat.Name,
				Kind:   seat.Kind,
				Stack:  a.stacks[i],
				Busted: a.stacks[i] == 0,
			}
		}
		return snap
	}

	s := a.hand
	snap.Street = s.Street.String()
	snap.Pot = s.Pot()
	if s.Complete && s.Result != nil {
		snap.Pot = s.Result.Pot
	}
	snap.Board = holdem.CardStrings(s.Board)
	if a.inHand {
		snap.CurrentActor = s.Actor
		// legal moves are only published for the human
		if s.Actor == HumanSlot {
			ms := holdem.LegalMoves(*s)
			snap.Legal = &ms
		}
	}
	for i, seat := range s.Seats {
		view := SlotView{
			Index:      i,
			Name:       a.seats[i].Name,
			Kind:       a.seats[i].Kind,
			Stack:      seat.Stack,
			Bet:        seat.Bet,
			Active:     seat.InHand && !seat.Folded,
			AllIn:      seat.AllIn,
			Busted:     !seat.InHand || (s.Complete && seat.Stack == 0),
			LastAction: seat.LastAction,
		}
		if i == HumanSlot && len(seat.Hole) > 0 {
			view.Hole = holdem.CardStrings(seat.Hole)
		}
		snap.Slots[i] = view
	}
	return snap
}
