package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/showdown/go/internal/clientsync"
	"github.com/mcdev12/showdown/go/internal/game"
	"github.com/mcdev12/showdown/go/internal/holdem"
	"github.com/mcdev12/showdown/go/internal/protocol"
)

// describe renders what ev changed between prev and next
func describe(ev *protocol.Event, prev, next clientsync.State) string {
	var b strings.Builder

	switch ev.Type {
	case protocol.EventConnectionAck:
		fmt.Fprintf(&b, "connected to session %s\n", next.SessionID)

	case protocol.EventFullState:
		writeTable(&b, next)
		if next.Lifecycle == "awaiting_start" || next.Lifecycle == "between_hands" {
			b.WriteString("type n to deal\n")
		}

	case protocol.EventStateDelta:
		if next.Table.Street != prev.Table.Street && len(next.Table.Board) > 0 {
			fmt.Fprintf(&b, "--- %s: %s (pot %d)\n", next.Table.Street, strings.Join(next.Table.Board, " "), next.Table.Pot)
		}
		for _, slot := range next.Table.Slots {
			if slot.Index == game.HumanSlot || slot.LastAction == "" {
				continue
			}
			if slot.Index < len(prev.Table.Slots) && prev.Table.Slots[slot.Index].LastAction == slot.LastAction &&
				prev.Table.Slots[slot.Index].Stack == slot.Stack {
				continue
			}
			fmt.Fprintf(&b, "%s: %s (stack %d)\n", slot.Name, slot.LastAction, slot.Stack)
		}

	case protocol.EventYourTurn:
		if next.Table.Legal != nil {
			fmt.Fprintf(&b, "your move, pot %d, cards %s: %s\n",
				next.Table.Pot, strings.Join(humanHole(next), " "), describeLegal(*next.Table.Legal))
		}

	case protocol.EventReasoningStart:
		if r, ok := next.Reasoning[actorOf(next, prev)]; ok {
			fmt.Fprintf(&b, "\n%s is thinking", r.Name)
			if r.Model != "" {
				fmt.Fprintf(&b, " (%s)", r.Model)
			}
			b.WriteString("...\n")
		}

	case protocol.EventReasoningToken:
		actor := actorOf(next, prev)
		b.WriteString(strings.TrimPrefix(next.Reasoning[actor].Text, prev.Reasoning[actor].Text))

	case protocol.EventReasoningComplete:
		for _, r := range next.Streams() {
			if r.State != clientsync.StreamFrozen || prev.Reasoning[r.Actor].State == clientsync.StreamFrozen {
				continue
			}
			fmt.Fprintf(&b, "\n=> %s: %s (%s)", r.Name, r.Move, time.Duration(r.DurationMS)*time.Millisecond)
			if r.Fallback {
				b.WriteString(" [default move]")
			}
			b.WriteString("\n")
		}

	case protocol.EventTimerStart:
		if next.Timer != nil {
			fmt.Fprintf(&b, "you have %ds\n", next.Timer.Duration)
		}

	case protocol.EventTimerTick:
		if t := next.Timer; t != nil && t.Remaining <= 10 && t.Remaining%5 == 0 {
			fmt.Fprintf(&b, "%ds left\n", t.Remaining)
		}

	case protocol.EventTimerExpired:
		if p, err := protocol.ParsePayload(ev); err == nil {
			if exp, ok := p.(*protocol.TimerExpiredPayload); ok {
				fmt.Fprintf(&b, "time is up, played %s for you\n", exp.Move)
			}
		}

	case protocol.EventHandComplete:
		h := next.LastHand
		fmt.Fprintf(&b, "hand %d over, pot %d", h.HandNumber, h.Pot)
		if len(h.Board) > 0 {
			fmt.Fprintf(&b, ", board %s", strings.Join(h.Board, " "))
		}
		b.WriteString("\n")
		for i, w := range h.Winners {
			fmt.Fprintf(&b, "  %s wins %d", slotName(next, w), h.Amounts[i])
			if desc, ok := h.Hands[w]; ok {
				fmt.Fprintf(&b, " with %s", desc)
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "stacks: %s\n", formatStacks(next, h.Stacks))
		if next.HandsPlayed < next.HandLimit {
			b.WriteString("type n for the next hand\n")
		}

	case protocol.EventSessionComplete:
		fmt.Fprintf(&b, "session over after %d hands (%s)\nfinal stacks: %s\n",
			next.Final.HandsPlayed, next.Final.Reason, formatStacks(next, next.Final.FinalStacks))

	case protocol.EventError:
		fmt.Fprintf(&b, "! %s: %s\n", next.LastError.Code, next.LastError.Message)
	}
	return b.String()
}

func writeTable(b *strings.Builder, st clientsync.State) {
	t := st.Table
	fmt.Fprintf(b, "hand %d/%d, %s, pot %d", t.HandNumber, st.HandLimit, t.Street, t.Pot)
	if len(t.Board) > 0 {
		fmt.Fprintf(b, ", board %s", strings.Join(t.Board, " "))
	}
	b.WriteString("\n")
	for _, slot := range t.Slots {
		marker := " "
		if slot.Index == t.Button {
			marker = "D"
		}
		fmt.Fprintf(b, " %s %-12s %7d", marker, slot.Name, slot.Stack)
		if slot.Bet > 0 {
			fmt.Fprintf(b, "  bet %d", slot.Bet)
		}
		if len(slot.Hole) > 0 {
			fmt.Fprintf(b, "  [%s]", strings.Join(slot.Hole, " "))
		}
		if slot.Busted {
			b.WriteString("  busted")
		}
		b.WriteString("\n")
	}
	for _, r := range st.Streams() {
		if r.State == clientsync.StreamActive {
			fmt.Fprintf(b, "%s is thinking...\n%s", r.Name, r.Text)
		}
	}
}

func describeLegal(ms holdem.MoveSet) string {
	var opts []string
	if ms.CanFold {
		opts = append(opts, "[f]old")
	}
	if ms.CanCheck {
		opts = append(opts, "[x] check")
	}
	if ms.CanCall {
		opts = append(opts, fmt.Sprintf("[c]all %d", ms.CallAmount))
	}
	if ms.CanRaise {
		opts = append(opts, fmt.Sprintf("[r]aise %d-%d", ms.MinRaise, ms.MaxRaise))
	}
	opts = append(opts, "[a]ll-in")
	return strings.Join(opts, "  ")
}

// actorOf finds the actor whose stream changed
func actorOf(next, prev clientsync.State) int {
	for actor, r := range next.Reasoning {
		p, ok := prev.Reasoning[actor]
		if !ok || p.Text != r.Text || p.State != r.State {
			return actor
		}
	}
	return -1
}

func humanHole(st clientsync.State) []string {
	if len(st.Table.Slots) == 0 {
		return nil
	}
	return st.Table.Slots[game.HumanSlot].Hole
}

func slotName(st clientsync.State, index int) string {
	if index >= 0 && index < len(st.Table.Slots) {
		return st.Table.Slots[index].Name
	}
	return fmt.Sprintf("seat %d", index)
}

func formatStacks(st clientsync.State, stacks []int) string {
	parts := make([]string, len(stacks))
	for i, s := range stacks {
		parts[i] = fmt.Sprintf("%s %d", slotName(st, i), s)
	}
	return strings.Join(parts, ", ")
}
