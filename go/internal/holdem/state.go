package holdem

import (
	"fmt"
	"math/rand"
	"time"
)

// Street is the betting round of a hand
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	Showdown
)

func (s Street) String() string {
	switch s {
	case Preflop:
		return "preflop"
	case Flop:
		return "flop"
	case Turn:
		return "turn"
	case River:
		return "river"
	case Showdown:
		return "showdown"
	default:
		return fmt.Sprintf("street(%d)", int(s))
	}
}

// NoActor marks a state in which nobody is due to act
const NoActor = -1

// Config holds the table parameters of the engine
type Config struct {
	SmallBlind int
	BigBlind   int
	// Seed for the deck shuffle; zero picks a time based seed
	Seed int64
	// Deck cards placed on top of every shuffled deck, in dealing order
	Deck []Card
}

func (c Config) validate() error {
	if c.SmallBlind <= 0 || c.BigBlind <= 0 || c.SmallBlind > c.BigBlind {
		return fmt.Errorf("%w: small=%d big=%d", ErrInvalidBlinds, c.SmallBlind, c.BigBlind)
	}
	return nil
}

// Seat is one player's position within a hand
type Seat struct {
	Stack      int
	Bet        int // chips put in on the current street
	Committed  int // chips put in during the whole hand
	Hole       []Card
	InHand     bool
	Folded     bool
	AllIn      bool
	Acted      bool
	LastAction string
}

func (s Seat) live() bool   { return s.InHand && !s.Folded }
func (s Seat) canAct() bool { return s.InHand && !s.Folded && !s.AllIn }
func (s Seat) settled(bet int) bool {
	return s.Acted && s.Bet == bet
}

// Result describes how a finished hand paid out
type Result struct {
	Pot      int
	Winners  []int
	Amounts  []int
	Showdown bool
	Revealed map[int][]Card
	Hands    map[int]string
}

// State is the full state of one hand. It is treated as a value: Apply never
// mutates its input and returns a new State instead.
type State struct {
	HandNumber     int
	Button         int
	SmallBlindSeat int
	BigBlindSeat   int
	BigBlind       int
	Street         Street
	Board          []Card
	CurrentBet     int
	MinRaise       int
	Actor          int
	Seats          []Seat
	Complete       bool
	Result         *Result

	deck []Card
}

// Pot is the number of chips committed to the middle in the current hand
func (s State) Pot() int {
	total := 0
	for _, seat := range s.Seats {
		total += seat.Committed
	}
	return total
}

// TotalChips is the sum of all stacks plus the pot
func (s State) TotalChips() int {
	total := s.Pot()
	for _, seat := range s.Seats {
		total += seat.Stack
	}
	return total
}

func (s State) clone() State {
	next := s
	next.Seats = make([]Seat, len(s.Seats))
	copy(next.Seats, s.Seats)
	next.Board = append([]Card(nil), s.Board...)
	return next
}

// Engine deals hands. Everything after the deal is a pure function of State.
type Engine struct {
	cfg Config
	rng *rand.Rand
}

// NewEngine validates the config and seeds the deck shuffler
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{cfg: cfg, rng: rand.New(rand.NewSource(seed))}, nil
}

// NextButton returns the first seat after prev that has chips
func NextButton(stacks []int, prev int) int {
	n := len(stacks)
	for i := 1; i <= n; i++ {
		seat := ((prev+i)%n + n) % n
		if stacks[seat] > 0 {
			return seat
		}
	}
	return NoActor
}

// StartHand deals a new hand over the given stacks with the given button seat
func (e *Engine) StartHand(stacks []int, button, handNumber int) (State, error) {
	if button < 0 || button >= len(stacks) || stacks[button] <= 0 {
		return State{}, fmt.Errorf("%w: button %d", ErrInvalidSeat, button)
	}

	s := State{
		HandNumber: handNumber,
		Button:     button,
		BigBlind:   e.cfg.BigBlind,
		Street:     Preflop,
		MinRaise:   e.cfg.BigBlind,
		Actor:      NoActor,
		Seats:      make([]Seat, len(stacks)),
		deck:       buildDeck(e.rng, e.cfg.Deck),
	}

	inHand := 0
	for i, stack := range stacks {
		s.Seats[i] = Seat{Stack: stack, InHand: stack > 0}
		if stack > 0 {
			inHand++
		}
	}
	if inHand < 2 {
		return State{}, ErrNotEnoughSeats
	}

	// heads-up the button posts the small blind
	if inHand == 2 {
		s.SmallBlindSeat = button
	} else {
		s.SmallBlindSeat = s.nextSeat(button, Seat.live)
	}
	s.BigBlindSeat = s.nextSeat(s.SmallBlindSeat, Seat.live)

	for i := range s.Seats {
		if !s.Seats[i].InHand {
			continue
		}
		s.Seats[i].Hole = []Card{s.deck[0], s.deck[1]}
		s.deck = s.deck[2:]
	}

	s.post(s.SmallBlindSeat, e.cfg.SmallBlind, "SB")
	s.post(s.BigBlindSeat, e.cfg.BigBlind, "BB")
	s.CurrentBet = max(s.Seats[s.SmallBlindSeat].Bet, s.Seats[s.BigBlindSeat].Bet)

	s.Actor = s.nextSeat(s.BigBlindSeat, Seat.canAct)
	if s.Actor == NoActor || s.roundComplete() {
		// blinds put everyone all-in
		s.advance()
	}
	return s, nil
}

func (s *State) post(seat, blind int, label string) {
	amount := blind
	if amount > s.Seats[seat].Stack {
		amount = s.Seats[seat].Stack
	}
	s.commit(seat, amount)
	s.Seats[seat].LastAction = fmt.Sprintf("%s %d", label, amount)
}

func (s *State) commit(seat, amount int) {
	p := &s.Seats[seat]
	p.Stack -= amount
	p.Bet += amount
	p.Committed += amount
	if p.Stack == 0 {
		p.AllIn = true
	}
}

// nextSeat walks clockwise from the seat after from and returns the first match
func (s State) nextSeat(from int, match func(Seat) bool) int {
	n := len(s.Seats)
	for i := 1; i <= n; i++ {
		seat := (from + i) % n
		if match(s.Seats[seat]) {
			return seat
		}
	}
	return NoActor
}

func (s State) count(match func(Seat) bool) int {
	c := 0
	for _, seat := range s.Seats {
		if match(seat) {
			c++
		}
	}
	return c
}

func (s State) roundComplete() bool {
	for _, seat := range s.Seats {
		if seat.canAct() && !seat.settled(s.CurrentBet) {
			return false
		}
	}
	return true
}

// advance moves the hand forward after a move (or the blinds) has been applied
func (s *State) advance() {
	if s.count(Seat.live) == 1 {
		s.settleUncontested()
		return
	}

	if !s.roundComplete() {
		s.Actor = s.nextSeat(s.Actor, func(seat Seat) bool {
			return seat.canAct() && !seat.settled(s.CurrentBet)
		})
		return
	}

	if s.count(Seat.canAct) <= 1 {
		// nobody left to bet against: run the board out
		for len(s.Board) < 5 {
			s.dealBoard(1)
		}
		s.showdown()
		return
	}

	if s.Street == River {
		s.showdown()
		return
	}
	s.nextStreet()
}

func (s *State) nextStreet() {
	for i := range s.Seats {
		s.Seats[i].Bet = 0
		s.Seats[i].Acted = false
	}
	s.CurrentBet = 0
	s.MinRaise = s.BigBlind

	switch s.Street {
	case Preflop:
		s.dealBoard(3)
		s.Street = Flop
	case Flop:
		s.dealBoard(1)
		s.Street = Turn
	case Turn:
		s.dealBoard(1)
		s.Street = River
	}

	s.Actor = s.nextSeat(s.Button, Seat.canAct)
}

func (s *State) dealBoard(n int) {
	s.Board = append(s.Board, s.deck[:n]...)
	s.deck = s.deck[n:]
}

func (s *State) settleUncontested() {
	winner := s.nextSeat(NoActor, Seat.live)
	pot := s.Pot()
	s.Seats[winner].Stack += pot
	s.finish(&Result{
		Pot:     pot,
		Winners: []int{winner},
		Amounts: []int{pot},
	})
}

func (s *State) finish(r *Result) {
	for i := range s.Seats {
		s.Seats[i].Bet = 0
		s.Seats[i].Committed = 0
	}
	s.CurrentBet = 0
	s.Actor = NoActor
	s.Complete = true
	s.Result = r
}
