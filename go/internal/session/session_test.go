package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/showdown/go/internal/archive"
	"github.com/mcdev12/showdown/go/internal/holdem"
	"github.com/mcdev12/showdown/go/internal/protocol"
	"github.com/mcdev12/showdown/go/internal/reasoning"
	"github.com/mcdev12/showdown/go/internal/turntimer"
)

const waitFor = 2 * time.Second

// recorder is a Broadcaster that keeps every event in delivery order
type recorder struct {
	mu      sync.Mutex
	events  []*protocol.Event
	resyncs [][]*protocol.Event
}

func (r *recorder) Broadcast(_ string, ev *protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Resync(_ string, evs ...*protocol.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
	r.resyncs = append(r.resyncs, evs)
	return nil
}

func (r *recorder) all() []*protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*protocol.Event(nil), r.events...)
}

func (r *recorder) ofType(typ protocol.EventType) []*protocol.Event {
	var out []*protocol.Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// wait blocks until n events of typ arrived and returns the nth payload
func (r *recorder) wait(t *testing.T, typ protocol.EventType, n int) any {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.ofType(typ)) >= n
	}, waitFor, 5*time.Millisecond, "waiting for %d %s events", n, typ)
	payload, err := protocol.ParsePayload(r.ofType(typ)[n-1])
	require.NoError(t, err)
	return payload
}

type reply struct {
	fragments []string
	hold      chan struct{}
	after     []string
	err       error
}

// scriptedGenerator answers generations from a list of replies; the last reply
// repeats
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

func (g *scriptedGenerator) Generate(ctx context.Context, _ reasoning.Request, out chan<- string) (string, error) {
	g.mu.Lock()
	r := g.replies[min(g.calls, len(g.replies)-1)]
	g.calls++
	g.mu.Unlock()

	var full strings.Builder
	send := func(frags []string) error {
		for _, f := range frags {
			select {
			case out <- f:
				full.WriteString(f)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
	if err := send(r.fragments); err != nil {
		return full.String(), err
	}
	if r.hold != nil {
		select {
		case <-r.hold:
		case <-ctx.Done():
			return full.String(), ctx.Err()
		}
	}
	if err := send(r.after); err != nil {
		return full.String(), err
	}
	return full.String(), r.err
}

func says(text ...string) reply { return reply{fragments: text} }

type harness struct {
	reg   *Registry
	s     *Session
	rec   *recorder
	clock *clockwork.FakeClock
	arch  *archive.Memory
}

func newHarness(t *testing.T, gen reasoning.Generator, mutate func(*Config)) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	arch := archive.NewMemory(0)
	pipeline := reasoning.NewPipeline(gen, clock, reasoning.Config{BatchSize: 1, Buffer: 16})

	reg := NewRegistry(Deps{Clock: clock, Pipeline: pipeline, Broadcaster: rec, Archiver: arch})
	cfg := Config{
		Opponents:     []Opponent{{Name: "Bot", Model: "llama3", Temperature: 0.6}},
		StartingStack: 10000,
		SmallBlind:    50,
		BigBlind:      100,
		HandLimit:     1,
		TurnTimeout:   30 * time.Second,
		Deck:          holdem.MustParseCards("As Ah 7c 2d Kd 9s 4h 3c Jh"),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	id, err := reg.Create(cfg)
	require.NoError(t, err)
	s, err := reg.Get(id)
	require.NoError(t, err)
	t.Cleanup(reg.CloseAll)
	return &harness{reg: reg, s: s, rec: rec, clock: clock, arch: arch}
}

func (h *harness) submit(t *testing.T, m protocol.ClientMessage) {
	t.Helper()
	require.NoError(t, h.s.Submit(m))
}

func (h *harness) move(t *testing.T, typ holdem.MoveType) {
	t.Helper()
	h.submit(t, protocol.ClientMessage{Type: protocol.MessageSubmitMove, MoveType: typ})
}

// passive checks when possible and calls otherwise
func passive(legal holdem.MoveSet) holdem.MoveType {
	if legal.CanCheck {
		return holdem.Check
	}
	return holdem.Call
}

func (h *harness) inspect(t *testing.T) Inspection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	in, err := h.s.Inspect(ctx)
	require.NoError(t, err)
	return in
}

func TestLifecycleTransitions(t *testing.T) {
	assert.True(t, CanTransition(Created, AwaitingStart))
	assert.True(t, CanTransition(AwaitingStart, InHand))
	assert.True(t, CanTransition(InHand, BetweenHands))
	assert.True(t, CanTransition(BetweenHands, InHand))
	assert.True(t, CanTransition(InHand, Ended))
	assert.False(t, CanTransition(Created, InHand))
	assert.False(t, CanTransition(Ended, AwaitingStart))
	assert.False(t, CanTransition(BetweenHands, AwaitingStart))
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Opponents:     []Opponent{{Name: "A", Model: "m"}},
		StartingStack: 1000,
		SmallBlind:    5,
		BigBlind:      10,
		HandLimit:     3,
		TurnTimeout:   time.Second,
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*Config){
		"no opponents":   func(c *Config) { c.Opponents = nil },
		"six opponents":  func(c *Config) { c.Opponents = make([]Opponent, 6) },
		"no model":       func(c *Config) { c.Opponents = []Opponent{{Name: "A"}} },
		"hot":            func(c *Config) { c.Opponents[0].Temperature = 3 },
		"blinds":         func(c *Config) { c.BigBlind = 2 },
		"no hands":       func(c *Config) { c.HandLimit = 0 },
		"no timeout":     func(c *Config) { c.TurnTimeout = 0 },
		"blind > stack":  func(c *Config) { c.BigBlind = 5000 },
		"negative stack": func(c *Config) { c.StartingStack = -1 },
	} {
		cfg := valid
		cfg.Opponents = append([]Opponent(nil), valid.Opponents...)
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, name)
	}
}

func TestHeadsUpHandEndToEnd(t *testing.T) {
	h := newHarness(t, &scriptedGenerator{replies: []reply{says("Pot odds are fine. ", "<action>cc</action>")}}, nil)

	require.NoError(t, h.s.Attach())
	h.rec.wait(t, protocol.EventFullState, 1)
	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})

	// preflop after the small blind calls, then first to act on every street
	for i := 1; i <= 4; i++ {
		turn := h.rec.wait(t, protocol.EventYourTurn, i).(*protocol.YourTurnPayload)
		require.True(t, turn.Legal.CanCheck)
		h.move(t, holdem.Check)
	}

	hand := h.rec.wait(t, protocol.EventHandComplete, 1).(*protocol.HandCompletePayload)
	assert.Equal(t, 200, hand.Pot)
	assert.Equal(t, []int{0}, hand.Winners)
	assert.Equal(t, []int{hand.Pot}, hand.Amounts)
	assert.True(t, hand.Showdown)
	assert.Equal(t, []string{"7c", "2d"}, hand.Revealed[1])
	assert.Equal(t, 20000, hand.Stacks[0]+hand.Stacks[1])
	assert.Equal(t, []int{10100, 9900}, hand.Stacks)

	done := h.rec.wait(t, protocol.EventSessionComplete, 1).(*protocol.SessionCompletePayload)
	assert.Equal(t, []int{10100, 9900}, done.FinalStacks)
	assert.Equal(t, 1, done.HandsPlayed)
	assert.Equal(t, ReasonHandLimit, done.Reason)

	completes := h.rec.ofType(protocol.EventReasoningComplete)
	assert.Len(t, completes, 4)
	assert.Empty(t, h.rec.ofType(protocol.EventError))

	// every reasoning_complete is followed directly by the delta it caused
	events := h.rec.all()
	for i, ev := range events {
		if ev.Type == protocol.EventReasoningComplete {
			require.Less(t, i+1, len(events))
			assert.Equal(t, protocol.EventStateDelta, events[i+1].Type)
		}
	}

	assert.Len(t, h.arch.Hands(h.s.ID()), 1)
	assert.Len(t, h.arch.Reasoning(h.s.ID()), 4)
	assert.Equal(t, Ended, h.s.Status().Lifecycle)
}

func TestUnparseableGenerationPlaysOneDefault(t *testing.T) {
	h := newHarness(t, &scriptedGenerator{replies: []reply{says("I am ", "not sure.")}}, nil)
	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})

	hand := h.rec.wait(t, protocol.EventHandComplete, 1).(*protocol.HandCompletePayload)
	assert.Equal(t, []int{0}, hand.Winners, "the small blind folds to the big blind")
	assert.Equal(t, 150, hand.Pot)
	assert.False(t, hand.Showdown)

	completes := h.rec.ofType(protocol.EventReasoningComplete)
	require.Len(t, completes, 1)
	payload, err := protocol.ParsePayload(completes[0])
	require.NoError(t, err)
	rc := payload.(*protocol.ReasoningCompletePayload)
	assert.Equal(t, holdem.Move{Type: holdem.Fold}, rc.Move)
	assert.True(t, rc.Fallback)
	assert.Equal(t, "I am not sure.", rc.FullText)

	errs := h.rec.ofType(protocol.EventError)
	require.Len(t, errs, 1)
	ep, err := protocol.ParsePayload(errs[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeGenerationFailed, ep.(*protocol.ErrorPayload).Code)
	assert.Empty(t, h.rec.ofType(protocol.EventYourTurn))
}

func TestTimerAndStreamAreMutuallyExclusive(t *testing.T) {
	hold := make(chan struct{})
	h := newHarness(t, &scriptedGenerator{replies: []reply{{
		fragments: []string{"thinking"},
		hold:      hold,
		after:     []string{" <action>call</action>"},
	}}}, nil)
	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})

	h.rec.wait(t, protocol.EventReasoningToken, 1)
	in := h.inspect(t)
	assert.Equal(t, InHand, in.Status.Lifecycle)
	assert.True(t, in.Generating)
	assert.Equal(t, []int{1}, in.ActiveStreams)
	assert.Equal(t, turntimer.Idle, in.Timer)

	close(hold)
	h.rec.wait(t, protocol.EventYourTurn, 1)
	in = h.inspect(t)
	assert.False(t, in.Generating)
	assert.Empty(t, in.ActiveStreams)
	assert.Equal(t, turntimer.Running, in.Timer)
	assert.Equal(t, 0, in.Snapshot.CurrentActor)
	require.NotNil(t, in.Snapshot.Legal)

	h.submit(t, protocol.ClientMessage{Type: protocol.MessageEndSession})
	done := h.rec.wait(t, protocol.EventSessionComplete, 1).(*protocol.SessionCompletePayload)
	assert.Equal(t, ReasonEnded, done.Reason)
	assert.Equal(t, []int{10000, 10000}, done.FinalStacks, "chips of an unfinished hand go back")
	assert.Equal(t, turntimer.Idle, h.inspect(t).Timer)
}

func TestResyncMidStream(t *testing.T) {
	hold := make(chan struct{})
	h := newHarness(t, &scriptedGenerator{replies: []reply{{
		fragments: []string{"ab", "cd"},
		hold:      hold,
		after:     []string{"ef", " <action>cc</action>"},
	}}}, nil)
	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})
	h.rec.wait(t, protocol.EventReasoningToken, 2)

	require.NoError(t, h.s.Attach())
	require.Eventually(t, func() bool {
		h.rec.mu.Lock()
		defer h.rec.mu.Unlock()
		return len(h.rec.resyncs) == 1
	}, waitFor, 5*time.Millisecond)

	h.rec.mu.Lock()
	resync := h.rec.resyncs[0]
	h.rec.mu.Unlock()
	require.Len(t, resync, 2)
	assert.Equal(t, protocol.EventConnectionAck, resync[0].Type)
	require.Equal(t, protocol.EventFullState, resync[1].Type)

	payload, err := protocol.ParsePayload(resync[1])
	require.NoError(t, err)
	full := payload.(*protocol.FullStatePayload)
	require.Len(t, full.Reasoning, 1)
	assert.Equal(t, 1, full.Reasoning[0].Actor)
	assert.Equal(t, "abcd", full.Reasoning[0].Text)
	assert.Equal(t, "active", full.Reasoning[0].State)
	assert.Nil(t, full.Timer)
	assert.Equal(t, string(InHand), full.Lifecycle)

	// the worker is still serving after building the snapshot
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = h.s.Inspect(ctx)
	require.NoError(t, err)

	close(hold)
	rc := h.rec.wait(t, protocol.EventReasoningComplete, 1).(*protocol.ReasoningCompletePayload)

	// the state after the resync plus the tokens after it is the whole text
	text := full.Reasoning[0].Text
	seen := false
	for _, ev := range h.rec.all() {
		if ev == resync[1] {
			seen = true
			continue
		}
		if seen && ev.Type == protocol.EventReasoningToken {
			p, err := protocol.ParsePayload(ev)
			require.NoError(t, err)
			text += p.(*protocol.ReasoningTokenPayload).Text
		}
	}
	assert.Equal(t, rc.FullText, text)
	assert.Equal(t, "abcdef <action>cc</action>", text)
}

func TestTimerExpiryPlaysSafeDefault(t *testing.T) {
	h := newHarness(t, &scriptedGenerator{replies: []reply{says("<action>cc</action>")}}, nil)
	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})

	start := h.rec.wait(t, protocol.EventTimerStart, 1).(*protocol.TimerStartPayload)
	assert.Equal(t, 0, start.Actor)
	assert.Equal(t, 30, start.Duration)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 2))

	h.clock.Advance(29 * time.Second)
	h.rec.wait(t, protocol.EventTimerTick, 1)
	assert.Empty(t, h.rec.ofType(protocol.EventTimerExpired))

	h.clock.Advance(time.Second)
	expired := h.rec.wait(t, protocol.EventTimerExpired, 1).(*protocol.TimerExpiredPayload)
	assert.Equal(t, 0, expired.Actor)
	assert.Equal(t, holdem.Move{Type: holdem.Check}, expired.Move, "big blind checks when nothing is owed")

	require.Len(t, h.rec.ofType(protocol.EventTimerExpired), 1)
	// the flop starts with the human again
	h.rec.wait(t, protocol.EventYourTurn, 2)
}

func TestRejectedHumanMoveReprompts(t *testing.T) {
	h := newHarness(t, &scriptedGenerator{replies: []reply{says("<action>cc</action>")}}, nil)

	h.move(t, holdem.Check)
	ep := h.rec.wait(t, protocol.EventError, 1).(*protocol.ErrorPayload)
	assert.Equal(t, protocol.CodeInvalidMove, ep.Code, "no hand yet")

	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})
	h.rec.wait(t, protocol.EventYourTurn, 1)

	amount := 150
	h.submit(t, protocol.ClientMessage{Type: protocol.MessageSubmitMove, MoveType: holdem.Raise, Amount: &amount})
	ep = h.rec.wait(t, protocol.EventError, 2).(*protocol.ErrorPayload)
	assert.Equal(t, protocol.CodeInvalidMove, ep.Code)
	h.rec.wait(t, protocol.EventYourTurn, 2)

	in := h.inspect(t)
	assert.Equal(t, turntimer.Running, in.Timer)
	assert.Equal(t, 0, in.Snapshot.CurrentActor)

	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})
	ep = h.rec.wait(t, protocol.EventError, 3).(*protocol.ErrorPayload)
	assert.Equal(t, protocol.CodeInvalidMessage, ep.Code)

	h.submit(t, protocol.ClientMessage{Type: protocol.MessageKeepalive})
	h.rec.wait(t, protocol.EventPong, 1)
}

func TestHandLimitOverTwoHands(t *testing.T) {
	h := newHarness(t, &scriptedGenerator{replies: []reply{says("<action>cc</action>")}}, func(c *Config) {
		c.HandLimit = 2
	})
	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})

	for i := 1; i <= 8; i++ {
		if i == 5 {
			h.rec.wait(t, protocol.EventHandComplete, 1)
			assert.Equal(t, BetweenHands, h.inspect(t).Status.Lifecycle)
			h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})
		}
		turn := h.rec.wait(t, protocol.EventYourTurn, i).(*protocol.YourTurnPayload)
		h.move(t, passive(turn.Legal))
	}

	second := h.rec.wait(t, protocol.EventHandComplete, 2).(*protocol.HandCompletePayload)
	assert.Equal(t, 2, second.HandNumber)
	assert.Equal(t, []int{10200, 9800}, second.Stacks)

	done := h.rec.wait(t, protocol.EventSessionComplete, 1).(*protocol.SessionCompletePayload)
	assert.Equal(t, 2, done.HandsPlayed)
	assert.Equal(t, ReasonHandLimit, done.Reason)

	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})
	ep := h.rec.wait(t, protocol.EventError, 1).(*protocol.ErrorPayload)
	assert.Equal(t, protocol.CodeSessionEnded, ep.Code)
}

func TestAutoNextHand(t *testing.T) {
	h := newHarness(t, &scriptedGenerator{replies: []reply{says("no idea")}}, func(c *Config) {
		c.HandLimit = 2
		c.NextHandDelay = 5 * time.Second
	})
	h.submit(t, protocol.ClientMessage{Type: protocol.MessageRequestNextHand})
	h.rec.wait(t, protocol.EventHandComplete, 1)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(5 * time.Second)

	full := h.rec.wait(t, protocol.EventFullState, 2).(*protocol.FullStatePayload)
	assert.Equal(t, 2, full.State.HandNumber)
	// the button moved to the human, who posts the small blind and acts first
	turn := h.rec.wait(t, protocol.EventYourTurn, 1).(*protocol.YourTurnPayload)
	assert.True(t, turn.Legal.CanCall)
	assert.Equal(t, 50, turn.Legal.CallAmount)
}
