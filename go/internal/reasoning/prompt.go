package reasoning

import (
	"fmt"
	"strings"

	"github.com/mcdev12/showdown/go/internal/game"
)

// SystemPrompt tells the model the output grammar ParseAction understands
const SystemPrompt = `You are an expert poker player. Analyze and decide the optimal action.

Output format: <action>ACTION</action>
- <action>f</action> = fold
- <action>cc</action> = call/check
- <action>cbr AMOUNT</action> = bet/raise to AMOUNT
- <action>all-in</action> = move all your chips in

Think step by step about your decision, then output ONE action tag at the end.`

// BuildPrompt renders the table from the actor's point of view
func BuildPrompt(v game.ActorView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Playing %d-handed No-Limit Hold'em, hand #%d.\n", v.Players, v.HandNumber)
	fmt.Fprintf(&b, "Position: %s\n", v.Position)
	fmt.Fprintf(&b, "Stack: %d chips (big blind %d)\n\n", v.Stack, v.BigBlind)
	fmt.Fprintf(&b, "Hole cards: %s\n", strings.Join(v.Hole, " "))
	if len(v.Board) > 0 {
		fmt.Fprintf(&b, "Board (%s): %s\n", v.Street, strings.Join(v.Board, " "))
	} else {
		b.WriteString("Preflop\n")
	}
	fmt.Fprintf(&b, "\nPot: %d chips\n", v.Pot)

	if len(v.Opponents) > 0 {
		b.WriteString("Opponents:\n")
		for _, o := range v.Opponents {
			status := "in hand"
			switch {
			case o.Busted:
				status = "busted"
			case !o.Active:
				status = "folded"
			case o.AllIn:
				status = "all-in"
			}
			fmt.Fprintf(&b, "- %s: %d chips, bet %d, %s", o.Name, o.Stack, o.Bet, status)
			if o.LastAction != "" {
				fmt.Fprintf(&b, ", last action %s", o.LastAction)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	ms := v.Legal
	if ms.CanCall {
		fmt.Fprintf(&b, "To call: %d chips\n", ms.CallAmount)
		b.WriteString("Actions: Fold, Call")
	} else {
		b.WriteString("Actions: Check")
	}
	if ms.CanRaise {
		verb := "Raise"
		if ms.CanCheck {
			verb = "Bet"
		}
		fmt.Fprintf(&b, ", %s (to between %d and %d)", verb, ms.MinRaise, ms.MaxRaise)
	}
	b.WriteString("\n")
	return b.String()
}
