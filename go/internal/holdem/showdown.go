package holdem

import (
	"fmt"
	"slices"

	"github.com/paulhankin/poker"
)

type pot struct {
	amount   int
	eligible []int
}

// pots splits the committed chips into a main pot and side pots. Each level is
// a distinct commitment of a seat still in the hand.
func (s State) pots() []pot {
	var levels []int
	for _, seat := range s.Seats {
		if seat.live() && seat.Committed > 0 && !slices.Contains(levels, seat.Committed) {
			levels = append(levels, seat.Committed)
		}
	}
	slices.Sort(levels)

	var out []pot
	prev, collected := 0, 0
	for _, level := range levels {
		p := pot{}
		for i, seat := range s.Seats {
			p.amount += min(seat.Committed, level) - min(seat.Committed, prev)
			if seat.live() && seat.Committed >= level {
				p.eligible = append(p.eligible, i)
			}
		}
		collected += p.amount
		prev = level
		out = append(out, p)
	}
	if rest := s.Pot() - collected; rest > 0 && len(out) > 0 {
		out[len(out)-1].amount += rest
	}
	return out
}

func hand7(hole, board []Card) ([7]poker.Card, error) {
	var cards [7]poker.Card
	if len(hole) != 2 || len(board) != 5 {
		return cards, fmt.Errorf("need 2 hole and 5 board cards, have %d and %d", len(hole), len(board))
	}
	for i, c := range append(append([]Card(nil), board...), hole...) {
		pc, err := evalCard(c)
		if err != nil {
			return cards, err
		}
		cards[i] = pc
	}
	return cards, nil
}

// showdown evaluates every live seat and pays each pot to its best hands.
// Odd chips go to the winners closest to the left of the button.
func (s *State) showdown() {
	s.Street = Showdown
	result := &Result{
		Pot:      s.Pot(),
		Showdown: true,
		Revealed: make(map[int][]Card),
		Hands:    make(map[int]string),
	}

	scores := make(map[int]int16)
	for i, seat := range s.Seats {
		if !seat.live() {
			continue
		}
		cards, err := hand7(seat.Hole, s.Board)
		if err != nil {
			scores[i] = -1
			continue
		}
		scores[i] = poker.Eval7(&cards)
		result.Revealed[i] = append([]Card(nil), seat.Hole...)
		if desc, err := poker.Describe(cards[:]); err == nil {
			result.Hands[i] = desc
		}
	}

	won := make([]int, len(s.Seats))
	for _, p := range s.pots() {
		var winners []int
		best := int16(-1)
		for _, i := range p.eligible {
			switch {
			case scores[i] > best:
				best = scores[i]
				winners = []int{i}
			case scores[i] == best:
				winners = append(winners, i)
			}
		}
		if len(winners) == 0 {
			continue
		}
		slices.SortFunc(winners, func(a, b int) int {
			return s.distanceFromButton(a) - s.distanceFromButton(b)
		})
		share, odd := p.amount/len(winners), p.amount%len(winners)
		for k, w := range winners {
			won[w] += share
			if k < odd {
				won[w]++
			}
		}
	}

	for i, amount := range won {
		if amount == 0 {
			continue
		}
		s.Seats[i].Stack += amount
		result.Winners = append(result.Winners, i)
		result.Amounts = append(result.Amounts, amount)
	}
	s.finish(result)
}

// distanceFromButton is 1 for the seat left of the button and n for the button
func (s State) distanceFromButton(seat int) int {
	n := len(s.Seats)
	d := (seat - s.Button + n) % n
	if d == 0 {
		return n
	}
	return d
}
