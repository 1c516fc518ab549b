package holdem

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/paulhankin/poker"
)

// Suit of a playing card
type Suit uint8

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

// Rank of a playing card, 2 through 14 (ace high)
type Rank uint8

const (
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

const (
	rankChars = "23456789TJQKA"
	suitChars = "cdhs"
)

// Card is a single playing card
type Card struct {
	Rank Rank
	Suit Suit
}

// String renders the card in short form, e.g. "As" or "Td"
func (c Card) String() string {
	if c.Rank < 2 || c.Rank > Ace || c.Suit > Spades {
		return "??"
	}
	return string(rankChars[c.Rank-2]) + string(suitChars[c.Suit])
}

// ParseCard parses the short form produced by String
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	r := strings.IndexByte(rankChars, strings.ToUpper(s[:1])[0])
	su := strings.IndexByte(suitChars, strings.ToLower(s[1:])[0])
	if r < 0 || su < 0 {
		return Card{}, fmt.Errorf("invalid card %q", s)
	}
	return Card{Rank: Rank(r + 2), Suit: Suit(su)}, nil
}

// MustParseCards parses a space separated card list and panics on error.
// Used for stacked decks in tests and fixtures.
func MustParseCards(s string) []Card {
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			panic(err)
		}
		cards = append(cards, c)
	}
	return cards
}

// CardStrings renders a card list in short form
func CardStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}

// NewDeck returns the 52 cards in a fixed order
func NewDeck() []Card {
	deck := make([]Card, 0, 52)
	for s := Clubs; s <= Spades; s++ {
		for r := Rank(2); r <= Ace; r++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}

// buildDeck puts the stacked cards on top and the remaining cards shuffled below them
func buildDeck(rng *rand.Rand, stacked []Card) []Card {
	used := make(map[Card]bool, len(stacked))
	deck := make([]Card, 0, 52)
	for _, c := range stacked {
		if used[c] {
			continue
		}
		used[c] = true
		deck = append(deck, c)
	}

	rest := make([]Card, 0, 52-len(deck))
	for _, c := range NewDeck() {
		if !used[c] {
			rest = append(rest, c)
		}
	}
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	return append(deck, rest...)
}

// evalCard converts to the evaluator's representation (ace is rank 1 there)
func evalCard(c Card) (poker.Card, error) {
	var suit poker.Suit
	switch c.Suit {
	case Clubs:
		suit = poker.Club
	case Diamonds:
		suit = poker.Diamond
	case Hearts:
		suit = poker.Heart
	case Spades:
		suit = poker.Spade
	default:
		var zero poker.Card
		return zero, fmt.Errorf("invalid suit %d", c.Suit)
	}
	rank := poker.Rank(c.Rank)
	if c.Rank == Ace {
		rank = 1
	}
	return poker.MakeCard(suit, rank)
}
