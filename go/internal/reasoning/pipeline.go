package reasoning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/showdown/go/internal/game"
	"github.com/mcdev12/showdown/go/internal/holdem"
)

var (
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrGenerationFailed  = errors.New("generation failed")
)

// Request is one generation call to the inference service
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
}

// Generator streams a completion. Fragments are sent on out in order; the
// caller owns out and closes it after Generate returns. The returned string is
// the full completion.
type Generator interface {
	Generate(ctx context.Context, req Request, out chan<- string) (string, error)
}

// Config tunes the pipeline
type Config struct {
	BatchSize int
	MaxDelay  time.Duration
	Timeout   time.Duration
	// Buffer is the capacity of the fragment channel
	Buffer int
}

// DefaultConfig matches the server defaults
func DefaultConfig() Config {
	return Config{
		BatchSize: 12,
		MaxDelay:  80 * time.Millisecond,
		Timeout:   90 * time.Second,
		Buffer:    256,
	}
}

// Turn is one automated actor's decision
type Turn struct {
	SessionID   string
	Model       string
	Temperature float64
	View        game.ActorView
	Stream      *Stream
	// Fallback is applied when nothing usable comes back
	Fallback holdem.Move
}

// Completion is the result of a turn. Err is set whenever Move is the
// fallback; it never means the turn is left unfinished.
type Completion struct {
	Actor    int
	Move     holdem.Move
	Parsed   *Parsed
	FullText string
	Duration time.Duration
	Err      error
}

// Fallback reports whether the completion carries the fallback move
func (c Completion) Fallback() bool { return c.Err != nil }

// Pipeline runs generations through the batcher into a Stream
type Pipeline struct {
	gen   Generator
	clock clockwork.Clock
	cfg   Config
}

func NewPipeline(gen Generator, clock clockwork.Clock, cfg Config) *Pipeline {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	return &Pipeline{gen: gen, clock: clock, cfg: cfg}
}

// Run generates, streams and parses one turn. It always returns a usable move:
// generation errors, timeouts, cancellation and unparseable output all yield
// the turn's fallback.
func (p *Pipeline) Run(ctx context.Context, turn Turn) Completion {
	start := p.clock.Now()
	actor := turn.View.Slot

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if p.cfg.Timeout > 0 {
		t := p.clock.AfterFunc(p.cfg.Timeout, func() { cancel(ErrGenerationTimeout) })
		defer t.Stop()
	}

	req := Request{
		Model:       turn.Model,
		System:      SystemPrompt,
		Prompt:      BuildPrompt(turn.View),
		Temperature: turn.Temperature,
	}

	frags := make(chan string, p.cfg.Buffer)
	batched := make(chan struct{})
	go func() {
		defer close(batched)
		NewBatcher(p.clock, p.cfg.BatchSize, p.cfg.MaxDelay).Run(frags, turn.Stream)
	}()

	full, genErr := p.gen.Generate(ctx, req, frags)
	close(frags)
	<-batched

	c := Completion{
		Actor:    actor,
		Move:     turn.Fallback,
		FullText: turn.Stream.Text(),
		Duration: p.clock.Since(start),
	}
	if c.FullText == "" {
		c.FullText = full
	}

	logger := log.With().
		Str("session_id", turn.SessionID).
		Int("actor", actor).
		Str("model", turn.Model).
		Logger()

	switch {
	case genErr != nil:
		switch cause := context.Cause(ctx); {
		case errors.Is(cause, ErrGenerationTimeout):
			c.Err = fmt.Errorf("%w after %s", ErrGenerationTimeout, p.cfg.Timeout)
		case cause != nil:
			c.Err = cause
		default:
			c.Err = fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
		}
		logger.Warn().Err(c.Err).Str("fallback", c.Move.String()).Msg("generation did not complete, using fallback move")
	default:
		parsed, err := ParseAction(c.FullText, turn.View.Legal.CanCheck)
		if err != nil {
			c.Err = err
			logger.Warn().
				Err(err).
				Str("fallback", c.Move.String()).
				Str("tail", tail(c.FullText, 120)).
				Msg("could not parse move from generation, using fallback move")
			break
		}
		c.Parsed = &parsed
		c.Move = Legalize(parsed.Move, turn.View.Legal)
		logger.Info().
			Str("move", c.Move.String()).
			Str("method", parsed.Method).
			Dur("duration", c.Duration).
			Msg("generation parsed")
	}
	return c
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
