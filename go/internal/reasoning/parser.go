package reasoning

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/mcdev12/showdown/go/internal/holdem"
)

var ErrNoAction = errors.New("no action found in generation")

var (
	reActionTag = regexp.MustCompile(`(?is)<action>\s*(.+?)\s*</action>`)
	reAllIn     = regexp.MustCompile(`(?i)\b(?:all.?in|allin|shove)\b`)
	reCheckCall = regexp.MustCompile(`(?i)\b(cc|call|check)\b`)
	reFold      = regexp.MustCompile(`(?i)\b(f|fold)\b`)
	reBetRaise  = regexp.MustCompile(`(?i)\b(?:cbr|bet|raise)\s*(?:to\s+)?(\d+)`)
)

// Parse methods
const (
	MethodTag  = "tag"
	MethodWord = "word"
)

// Parsed is a move read from generated text
type Parsed struct {
	Move   holdem.Move
	Method string
	Match  string
}

// ParseAction reads the move from a generation. The last <action> tag wins;
// without a tag the whole text is searched for move words. Check and call are
// one token in the grammar so canCheck decides which one is meant.
func ParseAction(text string, canCheck bool) (Parsed, error) {
	body, method := text, MethodWord
	if tags := reActionTag.FindAllStringSubmatch(text, -1); len(tags) > 0 {
		body, method = tags[len(tags)-1][1], MethodTag
	}

	switch {
	case reAllIn.MatchString(body):
		return Parsed{Move: holdem.Move{Type: holdem.AllIn}, Method: method, Match: reAllIn.FindString(body)}, nil
	case reCheckCall.MatchString(body):
		m := holdem.Move{Type: holdem.Call}
		if canCheck {
			m.Type = holdem.Check
		}
		return Parsed{Move: m, Method: method, Match: reCheckCall.FindString(body)}, nil
	case reFold.MatchString(body):
		return Parsed{Move: holdem.Move{Type: holdem.Fold}, Method: method, Match: reFold.FindString(body)}, nil
	}
	if m := reBetRaise.FindStringSubmatch(body); m != nil {
		amount, err := strconv.Atoi(m[1])
		if err == nil && amount > 0 {
			return Parsed{Move: holdem.Move{Type: holdem.Raise, Amount: amount}, Method: method, Match: m[0]}, nil
		}
	}
	return Parsed{}, ErrNoAction
}

// Legalize bends a parsed move onto the legal move set: raise amounts are
// clamped to the allowed range, a raise that cannot be made becomes a call or
// check, and a fold with nothing to call becomes a check.
func Legalize(m holdem.Move, ms holdem.MoveSet) holdem.Move {
	passive := holdem.Move{Type: holdem.Call}
	if ms.CanCheck {
		passive = holdem.Move{Type: holdem.Check}
	}

	switch m.Type {
	case holdem.Raise:
		if !ms.CanRaise {
			return passive
		}
		m.Amount = max(m.Amount, ms.MinRaise)
		if m.Amount >= ms.MaxRaise {
			return holdem.Move{Type: holdem.AllIn}
		}
		return m
	case holdem.Call:
		if ms.CanCheck {
			return passive
		}
	case holdem.Check:
		if !ms.CanCheck && ms.CanCall {
			return passive
		}
	case holdem.Fold:
		if !ms.CanFold && ms.CanCheck {
			return passive
		}
	}
	return m
}
