package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/showdown/go/internal/archive"
	"github.com/mcdev12/showdown/go/internal/holdem"
	"github.com/mcdev12/showdown/go/internal/protocol"
	"github.com/mcdev12/showdown/go/internal/reasoning"
)

const (
	MinOpponents = 1
	MaxOpponents = 5
)

var ErrInvalidConfig = errors.New("invalid session config")

// Opponent is one automated player
type Opponent struct {
	Name        string  `json:"name" yaml:"name"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// Config describes the table of a new session
type Config struct {
	HumanName     string
	Opponents     []Opponent
	StartingStack int
	SmallBlind    int
	BigBlind      int
	HandLimit     int
	TurnTimeout   time.Duration
	// NextHandDelay starts the next hand automatically; zero waits for the client
	NextHandDelay time.Duration

	Seed int64
	Deck []holdem.Card
}

func (c Config) Validate() error {
	var problems []string
	if n := len(c.Opponents); n < MinOpponents || n > MaxOpponents {
		problems = append(problems, fmt.Sprintf("need %d to %d opponents, got %d", MinOpponents, MaxOpponents, n))
	}
	for i, o := range c.Opponents {
		if strings.TrimSpace(o.Name) == "" {
			problems = append(problems, fmt.Sprintf("opponent %d has no name", i+1))
		}
		if strings.TrimSpace(o.Model) == "" {
			problems = append(problems, fmt.Sprintf("opponent %d has no model", i+1))
		}
		if o.Temperature < 0 || o.Temperature > 2 {
			problems = append(problems, fmt.Sprintf("opponent %d temperature %.2f outside [0, 2]", i+1, o.Temperature))
		}
	}
	if c.StartingStack <= 0 {
		problems = append(problems, "starting stack must be positive")
	}
	if c.SmallBlind <= 0 || c.BigBlind < c.SmallBlind {
		problems = append(problems, fmt.Sprintf("blinds %d/%d are invalid", c.SmallBlind, c.BigBlind))
	}
	if c.BigBlind > c.StartingStack {
		problems = append(problems, "big blind exceeds the starting stack")
	}
	if c.HandLimit < 1 {
		problems = append(problems, "hand limit must be at least 1")
	}
	if c.TurnTimeout <= 0 {
		problems = append(problems, "turn timeout must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Broadcaster delivers events to the session's client connection
type Broadcaster interface {
	Broadcast(sessionID string, ev *protocol.Event)
	// Resync sends events ahead of anything queued later and clears a pending
	// resync on the connection
	Resync(sessionID string, evs ...*protocol.Event) error
}

// Deps are shared by every session of a registry
type Deps struct {
	Clock       clockwork.Clock
	Pipeline    *reasoning.Pipeline
	Broadcaster Broadcaster
	// Archiver may be nil
	Archiver archive.Archiver
}
