package holdem

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, deck string) *Engine {
	t.Helper()
	cfg := Config{SmallBlind: 50, BigBlind: 100, Seed: 7}
	if deck != "" {
		cfg.Deck = MustParseCards(deck)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func mustApply(t *testing.T, s State, seat int, m Move) State {
	t.Helper()
	next, err := Apply(s, seat, m)
	require.NoError(t, err, "seat %d move %s", seat, m)
	return next
}

func TestCardRoundTrip(t *testing.T) {
	for _, c := range NewDeck() {
		parsed, err := ParseCard(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCard("1x")
	assert.Error(t, err)
	assert.Len(t, NewDeck(), 52)
}

func TestBuildDeckKeepsStackedPrefix(t *testing.T) {
	stacked := MustParseCards("As Ah 7c 2d")
	deck := buildDeck(rand.New(rand.NewSource(1)), stacked)
	require.Len(t, deck, 52)
	assert.Equal(t, stacked, deck[:4])

	seen := make(map[Card]bool)
	for _, c := range deck {
		assert.False(t, seen[c], "duplicate %s", c)
		seen[c] = true
	}
}

func TestStartHand_HeadsUpButtonPostsSmallBlind(t *testing.T) {
	e := newTestEngine(t, "")
	s, err := e.StartHand([]int{10000, 10000}, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, s.SmallBlindSeat)
	assert.Equal(t, 0, s.BigBlindSeat)
	assert.Equal(t, 1, s.Actor, "small blind acts first heads-up")
	assert.Equal(t, 150, s.Pot())
	assert.Equal(t, 20000, s.TotalChips())

	ms := LegalMoves(s)
	assert.True(t, ms.CanFold)
	assert.True(t, ms.CanCall)
	assert.False(t, ms.CanCheck)
	assert.Equal(t, 50, ms.CallAmount)
	assert.Equal(t, 200, ms.MinRaise)
	assert.Equal(t, 10000, ms.MaxRaise)
}

func TestStartHand_NotEnoughSeats(t *testing.T) {
	e := newTestEngine(t, "")
	_, err := e.StartHand([]int{10000, 0}, 0, 1)
	assert.ErrorIs(t, err, ErrNotEnoughSeats)

	_, err = e.StartHand([]int{10000, 0}, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidSeat)
}

func TestNewEngine_RejectsBadBlinds(t *testing.T) {
	_, err := NewEngine(Config{SmallBlind: 100, BigBlind: 50})
	assert.ErrorIs(t, err, ErrInvalidBlinds)
}

func TestNextButton_SkipsBustedSeats(t *testing.T) {
	assert.Equal(t, 1, NextButton([]int{100, 100, 100}, 0))
	assert.Equal(t, 2, NextButton([]int{100, 0, 100}, 0))
	assert.Equal(t, 0, NextButton([]int{100, 0, 0}, 0))
	assert.Equal(t, 0, NextButton([]int{100, 100}, NoActor))
}

func TestHeadsUpCheckDown(t *testing.T) {
	e := newTestEngine(t, "As Ah 7c 2d Kd 9s 4h 3c Jh")
	s, err := e.StartHand([]int{10000, 10000}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, MustParseCards("As Ah"), s.Seats[0].Hole)

	s = mustApply(t, s, 1, Move{Type: Call})
	assert.Equal(t, Preflop, s.Street, "big blind keeps the option")
	assert.Equal(t, 0, s.Actor)
	assert.True(t, LegalMoves(s).CanCheck)

	s = mustApply(t, s, 0, Move{Type: Check})
	for _, street := range []Street{Flop, Turn, River} {
		require.Equal(t, street, s.Street)
		require.Equal(t, 0, s.Actor, "non-button acts first after the flop")
		assert.Equal(t, 20000, s.TotalChips())
		s = mustApply(t, s, 0, Move{Type: Check})
		s = mustApply(t, s, 1, Move{Type: Check})
	}

	require.True(t, s.Complete)
	require.NotNil(t, s.Result)
	assert.Equal(t, Showdown, s.Street)
	assert.Equal(t, 200, s.Result.Pot)
	assert.Equal(t, []int{0}, s.Result.Winners)
	assert.Equal(t, []int{200}, s.Result.Amounts)
	assert.True(t, s.Result.Showdown)
	assert.Contains(t, s.Result.Hands, 0)
	assert.Equal(t, MustParseCards("7c 2d"), s.Result.Revealed[1])
	assert.Equal(t, 10100, s.Seats[0].Stack)
	assert.Equal(t, 9900, s.Seats[1].Stack)
	assert.Equal(t, 20000, s.TotalChips())
	assert.Equal(t, NoActor, s.Actor)
}

func TestApply_RejectionLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(t, "")
	s, err := e.StartHand([]int{10000, 10000}, 1, 1)
	require.NoError(t, err)
	before := s.clone()

	_, err = Apply(s, 1, Move{Type: Check})
	assert.ErrorIs(t, err, ErrIllegalMove)

	_, err = Apply(s, 0, Move{Type: Call})
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = Apply(s, 1, Move{Type: Raise, Amount: 150})
	assert.ErrorIs(t, err, ErrIllegalMove, "below the minimum raise")

	_, err = Apply(s, 1, Move{Type: Raise, Amount: 20000})
	assert.ErrorIs(t, err, ErrIllegalMove, "more than the stack")

	assert.Equal(t, before, s)

	next := mustApply(t, s, 1, Move{Type: Call})
	assert.Equal(t, before, s, "successful apply does not mutate its input")
	assert.NotEqual(t, s.Seats[1].Stack, next.Seats[1].Stack)
}

func TestApply_FoldAwardsUncontestedPot(t *testing.T) {
	e := newTestEngine(t, "")
	s, err := e.StartHand([]int{10000, 10000}, 1, 1)
	require.NoError(t, err)

	s = mustApply(t, s, 1, Move{Type: Fold})
	require.True(t, s.Complete)
	assert.False(t, s.Result.Showdown)
	assert.Equal(t, []int{0}, s.Result.Winners)
	assert.Equal(t, []int{150}, s.Result.Amounts)
	assert.Equal(t, 10050, s.Seats[0].Stack)
	assert.Equal(t, 9950, s.Seats[1].Stack)

	_, err = Apply(s, 0, Move{Type: Check})
	assert.ErrorIs(t, err, ErrHandComplete)
	assert.Equal(t, NoActor, LegalMoves(s).Actor)
}

func TestApply_RaiseReopensAction(t *testing.T) {
	e := newTestEngine(t, "")
	s, err := e.StartHand([]int{10000, 10000}, 1, 1)
	require.NoError(t, err)

	s = mustApply(t, s, 1, Move{Type: Raise, Amount: 300})
	assert.Equal(t, 0, s.Actor)
	ms := LegalMoves(s)
	assert.Equal(t, 200, ms.CallAmount)
	assert.Equal(t, 500, ms.MinRaise)

	s = mustApply(t, s, 0, Move{Type: Raise, Amount: 800})
	assert.Equal(t, 1, s.Actor)
	assert.Equal(t, 1300, LegalMoves(s).MinRaise)

	s = mustApply(t, s, 1, Move{Type: Call})
	assert.Equal(t, Flop, s.Street)
	assert.Len(t, s.Board, 3)
	assert.Equal(t, 1600, s.Pot())
}

func TestApply_AllInRunoutWithSidePot(t *testing.T) {
	// seat 0 KK, seat 1 AA (short), seat 2 QQ
	e := newTestEngine(t, "Ks Kh As Ah Qs Qh 2c 7d 9c 3d 8s")
	s, err := e.StartHand([]int{1000, 300, 1000}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.SmallBlindSeat)
	assert.Equal(t, 2, s.BigBlindSeat)
	assert.Equal(t, 0, s.Actor)

	s = mustApply(t, s, 0, Move{Type: AllIn})
	assert.True(t, s.Seats[0].AllIn)

	ms := LegalMoves(s)
	assert.False(t, ms.CanRaise, "short stack can only call")
	assert.Equal(t, 250, ms.CallAmount)
	s = mustApply(t, s, 1, Move{Type: AllIn})
	assert.True(t, s.Seats[1].AllIn)

	s = mustApply(t, s, 2, Move{Type: Call})
	require.True(t, s.Complete)
	assert.Len(t, s.Board, 5)

	assert.Equal(t, 2300, s.Result.Pot)
	assert.Equal(t, []int{0, 1}, s.Result.Winners)
	assert.Equal(t, []int{1400, 900}, s.Result.Amounts)
	assert.Equal(t, []int{1400, 900, 0}, []int{s.Seats[0].Stack, s.Seats[1].Stack, s.Seats[2].Stack})
	assert.Len(t, s.Result.Revealed, 3)
}

func TestShowdown_SplitPotOnBoard(t *testing.T) {
	e := newTestEngine(t, "2c 3d 4c 5d As Ks Qs Js Ts")
	s, err := e.StartHand([]int{10000, 10000}, 1, 1)
	require.NoError(t, err)

	s = mustApply(t, s, 1, Move{Type: Call})
	s = mustApply(t, s, 0, Move{Type: Check})
	for !s.Complete {
		s = mustApply(t, s, s.Actor, Move{Type: Check})
	}
	assert.Equal(t, []int{0, 1}, s.Result.Winners)
	assert.Equal(t, []int{100, 100}, s.Result.Amounts)
}

func TestChipConservation_RandomPlay(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for hand := 0; hand < 200; hand++ {
		e, err := NewEngine(Config{SmallBlind: 5, BigBlind: 10, Seed: int64(hand + 1)})
		require.NoError(t, err)

		stacks := []int{rng.Intn(500) + 1, rng.Intn(500) + 1, rng.Intn(500) + 1, rng.Intn(500) + 1}
		total := 0
		for _, st := range stacks {
			total += st
		}
		s, err := e.StartHand(stacks, rng.Intn(len(stacks)), hand+1)
		require.NoError(t, err)

		for steps := 0; !s.Complete; steps++ {
			require.Less(t, steps, 1000, "hand did not terminate")
			require.Equal(t, total, s.TotalChips())

			ms := LegalMoves(s)
			var options []Move
			if ms.CanFold {
				options = append(options, Move{Type: Fold})
			}
			if ms.CanCheck {
				options = append(options, Move{Type: Check})
			}
			if ms.CanCall {
				options = append(options, Move{Type: Call})
			}
			if ms.CanRaise {
				options = append(options,
					Move{Type: Raise, Amount: ms.MinRaise},
					Move{Type: AllIn})
			}
			require.NotEmpty(t, options)
			s = mustApply(t, s, s.Actor, options[rng.Intn(len(options))])
		}

		assert.Equal(t, total, s.TotalChips())
		sum := 0
		for _, a := range s.Result.Amounts {
			sum += a
		}
		assert.Equal(t, s.Result.Pot, sum)
	}
}
