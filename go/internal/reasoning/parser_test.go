package reasoning

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/showdown/go/internal/game"
	"github.com/mcdev12/showdown/go/internal/holdem"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		canCheck bool
		want     holdem.Move
		method   string
	}{
		{"fold tag", "weak hand <action>f</action>", false, holdem.Move{Type: holdem.Fold}, MethodTag},
		{"cc tag facing bet", "<action>cc</action>", false, holdem.Move{Type: holdem.Call}, MethodTag},
		{"cc tag no bet", "<action> CC </action>", true, holdem.Move{Type: holdem.Check}, MethodTag},
		{"raise tag", "<action>cbr 350</action>", false, holdem.Move{Type: holdem.Raise, Amount: 350}, MethodTag},
		{"raise to", "<ACTION>raise to 600</ACTION>", false, holdem.Move{Type: holdem.Raise, Amount: 600}, MethodTag},
		{"all-in tag", "<action>all-in</action>", false, holdem.Move{Type: holdem.AllIn}, MethodTag},
		{"shove word", "I will shove here.", false, holdem.Move{Type: holdem.AllIn}, MethodWord},
		{"bare call", "I think I should call.", false, holdem.Move{Type: holdem.Call}, MethodWord},
		{"bare fold", "Time to fold.", false, holdem.Move{Type: holdem.Fold}, MethodWord},
		{"bare bet", "bet 200", true, holdem.Move{Type: holdem.Raise, Amount: 200}, MethodWord},
		{
			"last tag wins",
			"The format is <action>f</action> for fold. Strong hand.\n<action>cbr 400</action>",
			false,
			holdem.Move{Type: holdem.Raise, Amount: 400},
			MethodTag,
		},
		{"multiline tag", "<action>\n  cc\n</action>", true, holdem.Move{Type: holdem.Check}, MethodTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.text, tt.canCheck)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Move)
			assert.Equal(t, tt.method, got.Method)
		})
	}
}

func TestParseAction_NothingRecognized(t *testing.T) {
	for _, text := range []string{"", "hmm, difficult spot", "<action>dance</action>", "raise"} {
		_, err := ParseAction(text, true)
		assert.ErrorIs(t, err, ErrNoAction, text)
	}
}

func TestLegalize(t *testing.T) {
	facing := holdem.MoveSet{CanFold: true, CanCall: true, CallAmount: 100, CanRaise: true, MinRaise: 300, MaxRaise: 5000}
	open := holdem.MoveSet{CanCheck: true, CanRaise: true, MinRaise: 100, MaxRaise: 5000}
	short := holdem.MoveSet{CanFold: true, CanCall: true, CallAmount: 400}

	assert.Equal(t, holdem.Move{Type: holdem.Raise, Amount: 300}, Legalize(holdem.Move{Type: holdem.Raise, Amount: 150}, facing))
	assert.Equal(t, holdem.Move{Type: holdem.AllIn}, Legalize(holdem.Move{Type: holdem.Raise, Amount: 9000}, facing))
	assert.Equal(t, holdem.Move{Type: holdem.Call}, Legalize(holdem.Move{Type: holdem.Raise, Amount: 900}, short))
	assert.Equal(t, holdem.Move{Type: holdem.Check}, Legalize(holdem.Move{Type: holdem.Fold}, open))
	assert.Equal(t, holdem.Move{Type: holdem.Check}, Legalize(holdem.Move{Type: holdem.Call}, open))
	assert.Equal(t, holdem.Move{Type: holdem.Call}, Legalize(holdem.Move{Type: holdem.Check}, facing))
	assert.Equal(t, holdem.Move{Type: holdem.Fold}, Legalize(holdem.Move{Type: holdem.Fold}, facing))
}

func TestBuildPrompt(t *testing.T) {
	view := game.ActorView{
		Slot:       1,
		Name:       "Bot",
		Position:   "BTN",
		Players:    2,
		HandNumber: 3,
		Street:     "flop",
		Hole:       []string{"As", "Kd"},
		Board:      []string{"2c", "7h", "Js"},
		Pot:        400,
		Stack:      9800,
		BigBlind:   100,
		Legal:      holdem.MoveSet{Actor: 1, CanFold: true, CanCall: true, CallAmount: 200, CanRaise: true, MinRaise: 400, MaxRaise: 9800},
		Opponents:  []game.SlotView{{Index: 0, Name: "You", Stack: 9600, Bet: 200, Active: true, LastAction: "raise 200"}},
	}
	prompt := BuildPrompt(view)
	for _, want := range []string{
		"2-handed",
		"Position: BTN",
		"Hole cards: As Kd",
		"Board (flop): 2c 7h Js",
		"Pot: 400",
		"To call: 200",
		"Raise (to between 400 and 9800)",
		"You: 9600 chips, bet 200, in hand, last action raise 200",
	} {
		assert.True(t, strings.Contains(prompt, want), "prompt missing %q:\n%s", want, prompt)
	}
}
