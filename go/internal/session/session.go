package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/showdown/go/internal/game"
	"github.com/mcdev12/showdown/go/internal/holdem"
	"github.com/mcdev12/showdown/go/internal/protocol"
	"github.com/mcdev12/showdown/go/internal/reasoning"
	"github.com/mcdev12/showdown/go/internal/turntimer"
)

var ErrSessionEnded = errors.New("session ended")

// End reasons carried by session_complete
const (
	ReasonHandLimit = "hand_limit"
	ReasonBusted    = "not_enough_players"
	ReasonEnded     = "ended_by_client"
	ReasonClosed    = "closed"
	ReasonError     = "error"
)

// PlayerSlot is one seat at the table
type PlayerSlot struct {
	Index       int       `json:"index"`
	Kind        game.Kind `json:"kind"`
	Name        string    `json:"name"`
	Model       string    `json:"model,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stack       int       `json:"stack"`
	Busted      bool      `json:"busted"`
}

// Status is the externally visible summary of a session
type Status struct {
	ID          string       `json:"session_id"`
	Lifecycle   Lifecycle    `json:"lifecycle"`
	HandNumber  int          `json:"hand_number"`
	HandsPlayed int          `json:"hands_played"`
	HandLimit   int          `json:"hand_limit"`
	Players     []PlayerSlot `json:"players"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Inspection is a consistent copy of the worker state
type Inspection struct {
	Status        Status
	Snapshot      game.Snapshot
	Timer         turntimer.State
	ActiveStreams []int
	Generating    bool
}

// messages handled by the worker
type msg interface{ isSessionMsg() }

type attach struct{}

func (attach) isSessionMsg() {}

type fromClient struct{ m protocol.ClientMessage }

func (fromClient) isSessionMsg() {}

type generationDone struct {
	seq uint64
	c   reasoning.Completion
}

func (generationDone) isSessionMsg() {}

type inspect struct{ reply chan Inspection }

func (inspect) isSessionMsg() {}

type generation struct {
	seq    uint64
	actor  int
	model  string
	stream *reasoning.Stream
	cancel context.CancelFunc
}

// Session is one table. All game state is owned by the worker goroutine;
// other goroutines talk to it through the inbox.
type Session struct {
	id        string
	cfg       Config
	deps      Deps
	createdAt time.Time
	logger    zerolog.Logger

	inbox  chan msg
	resync chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// worker state
	slots       []PlayerSlot
	authority   *game.Authority
	timer       *turntimer.Timer
	lifecycle   Lifecycle
	streams     map[int]*reasoning.Stream
	gen         *generation
	turnSeq     uint64
	handsPlayed int
	lastHand    *game.HandResult
	nextHand    clockwork.Timer

	statusMu sync.RWMutex
	status   Status
}

func newSession(id string, cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Pipeline == nil || deps.Broadcaster == nil {
		return nil, fmt.Errorf("%w: pipeline and broadcaster are required", ErrInvalidConfig)
	}

	human := cfg.HumanName
	if human == "" {
		human = "You"
	}
	seats := []game.SeatConfig{{Name: human, Kind: game.Human, Stack: cfg.StartingStack}}
	slots := []PlayerSlot{{Index: game.HumanSlot, Kind: game.Human, Name: human, Stack: cfg.StartingStack}}
	for i, o := range cfg.Opponents {
		seats = append(seats, game.SeatConfig{Name: o.Name, Kind: game.Automated, Stack: cfg.StartingStack})
		slots = append(slots, PlayerSlot{
			Index:       i + 1,
			Kind:        game.Automated,
			Name:        o.Name,
			Model:       o.Model,
			Temperature: o.Temperature,
			Stack:       cfg.StartingStack,
		})
	}

	authority, err := game.NewAuthority(seats, holdem.Config{
		SmallBlind: cfg.SmallBlind,
		BigBlind:   cfg.BigBlind,
		Seed:       cfg.Seed,
		Deck:       cfg.Deck,
	})
	if err != nil {
		return nil, fmt.Errorf("create game authority: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		cfg:       cfg,
		deps:      deps,
		createdAt: deps.Clock.Now(),
		logger:    log.With().Str("session_id", id).Logger(),
		inbox:     make(chan msg, 64),
		resync:    make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		slots:     slots,
		authority: authority,
		timer:     turntimer.New(deps.Clock, time.Second, game.HumanSlot),
		lifecycle: Created,
		streams:   make(map[int]*reasoning.Stream),
	}
	s.publishStatus()
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Done is closed when the worker has exited
func (s *Session) Done() <-chan struct{} { return s.done }

// Status returns the summary published after the last handled message
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st := s.status
	st.Players = append([]PlayerSlot(nil), s.status.Players...)
	return st
}

// Attach asks the worker to greet a freshly registered connection with a
// connection_ack and a full state
func (s *Session) Attach() error { return s.send(attach{}) }

// Submit hands a client message to the worker
func (s *Session) Submit(m protocol.ClientMessage) error { return s.send(fromClient{m: m}) }

// RequestResync asks for a full state on the live connection. It never blocks
// and repeated requests before the worker gets to them collapse into one.
func (s *Session) RequestResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// Inspect returns a consistent copy of the worker state
func (s *Session) Inspect(ctx context.Context) (Inspection, error) {
	reply := make(chan Inspection, 1)
	if err := s.send(inspect{reply: reply}); err != nil {
		return Inspection{}, err
	}
	select {
	case in := <-reply:
		return in, nil
	case <-ctx.Done():
		return Inspection{}, ctx.Err()
	case <-s.done:
		return Inspection{}, ErrSessionEnded
	}
}

// Close stops the worker and cancels any running generation
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) send(m msg) error {
	select {
	case <-s.done:
		return ErrSessionEnded
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrSessionEnded
	}
}

func (s *Session) start() {
	go s.run()
}

func (s *Session) run() {
	defer close(s.done)
	defer s.teardown()

	_ = s.transition(AwaitingStart)
	s.publishStatus()
	s.logger.Info().Int("players", len(s.slots)).Msg("session started")

	for {
		var nextHandC <-chan time.Time
		if s.nextHand != nil {
			nextHandC = s.nextHand.Chan()
		}

		select {
		case <-s.ctx.Done():
			s.end(ReasonClosed)
			return
		case m := <-s.inbox:
			s.handle(m)
		case <-s.resync:
			s.resyncClient()
		case sig := <-s.timer.C():
			s.handleTimer(sig)
		case <-nextHandC:
			s.nextHand = nil
			if s.lifecycle == BetweenHands {
				s.startHand()
			}
		}
		s.publishStatus()
	}
}

func (s *Session) teardown() {
	s.timer.Cancel()
	if s.gen != nil {
		s.gen.cancel()
		s.gen = nil
	}
	if s.nextHand != nil {
		s.nextHand.Stop()
		s.nextHand = nil
	}
	s.publishStatus()
	s.logger.Info().Int("hands_played", s.handsPlayed).Msg("session worker stopped")
}

func (s *Session) handle(m msg) {
	switch m := m.(type) {
	case attach:
		s.resyncClient(s.event(protocol.EventConnectionAck, protocol.ConnectionAckPayload{
			SessionID: s.id,
			PlayerID:  game.HumanSlot,
		}))
	case fromClient:
		s.handleClient(m.m)
	case generationDone:
		s.handleGeneration(m.seq, m.c)
	case inspect:
		m.reply <- s.inspection()
	}
}

func (s *Session) handleClient(m protocol.ClientMessage) {
	switch m.Type {
	case protocol.MessageKeepalive:
		s.broadcast(protocol.EventPong, protocol.PongPayload{})

	case protocol.MessageEndSession:
		s.end(ReasonEnded)

	case protocol.MessageRequestNextHand:
		switch s.lifecycle {
		case AwaitingStart, BetweenHands:
			s.startHand()
		case Ended:
			s.sendError(protocol.CodeSessionEnded, "session has ended")
		default:
			s.sendError(protocol.CodeInvalidMessage, "a hand is already in progress")
		}

	case protocol.MessageSubmitMove:
		s.handleHumanMove(m.Move())
	}
}

func (s *Session) handleHumanMove(move holdem.Move) {
	if s.lifecycle == Ended {
		s.sendError(protocol.CodeSessionEnded, "session has ended")
		return
	}
	if s.lifecycle != InHand || s.authority.CurrentActor() != game.HumanSlot {
		s.sendError(protocol.CodeInvalidMove, "it is not your turn")
		return
	}

	out, err := s.authority.Apply(game.HumanSlot, move)
	if err != nil {
		// the countdown keeps running, the client is asked again
		s.logger.Info().Err(err).Int("actor", game.HumanSlot).Msg("human move rejected")
		s.sendError(protocol.CodeInvalidMove, err.Error())
		s.broadcast(protocol.EventYourTurn, protocol.YourTurnPayload{Legal: s.authority.LegalMoves(game.HumanSlot)})
		return
	}
	s.timer.Cancel()
	s.commit(out)
}

func (s *Session) handleTimer(sig turntimer.Signal) {
	ev, ok := s.timer.Handle(sig)
	if !ok {
		return
	}
	switch ev.Kind {
	case turntimer.EventTick:
		s.broadcast(protocol.EventTimerTick, protocol.TimerTickPayload{
			Actor:     ev.Actor,
			Remaining: seconds(ev.Remaining),
		})
	case turntimer.EventExpired:
		move, err := s.authority.SafeDefault(ev.Actor)
		if err != nil {
			s.fail(err)
			return
		}
		s.logger.Info().Int("actor", ev.Actor).Str("move", move.String()).Msg("turn timer expired")
		s.broadcast(protocol.EventTimerExpired, protocol.TimerExpiredPayload{Actor: ev.Actor, Move: move})
		out, err := s.authority.Apply(ev.Actor, move)
		if err != nil {
			s.fail(fmt.Errorf("apply timeout move: %w", err))
			return
		}
		s.commit(out)
	}
}

func (s *Session) startHand() {
	if s.nextHand != nil {
		s.nextHand.Stop()
		s.nextHand = nil
	}

	if _, err := s.authority.StartHand(); err != nil {
		if errors.Is(err, holdem.ErrNotEnoughSeats) {
			s.end(ReasonBusted)
			return
		}
		s.fail(fmt.Errorf("start hand: %w", err))
		return
	}
	if err := s.transition(InHand); err != nil {
		s.fail(err)
		return
	}
	s.streams = make(map[int]*reasoning.Stream)
	s.syncSlots()
	s.logger.Info().Int("hand", s.authority.HandNumber()).Msg("hand started")

	// a new hand resets the board, so it is announced as a full state
	s.broadcast(protocol.EventFullState, s.fullState(nil))

	if !s.authority.InHand() {
		s.finishHand(s.authority.LastResult())
		return
	}
	s.beginTurn()
}

// beginTurn hands the action to the current actor
func (s *Session) beginTurn() {
	actor := s.authority.CurrentActor()
	if actor == holdem.NoActor {
		s.fail(fmt.Errorf("hand %d has no actor", s.authority.HandNumber()))
		return
	}

	if actor == game.HumanSlot {
		s.broadcast(protocol.EventYourTurn, protocol.YourTurnPayload{Legal: s.authority.LegalMoves(actor)})
		started, err := s.timer.Start(actor, s.cfg.TurnTimeout)
		if err != nil {
			s.fail(fmt.Errorf("start turn timer: %w", err))
			return
		}
		s.broadcast(protocol.EventTimerStart, protocol.TimerStartPayload{
			Actor:    started.Actor,
			Duration: seconds(started.Duration),
			Deadline: started.Deadline.UTC(),
		})
		return
	}
	s.startGeneration(actor)
}

func (s *Session) startGeneration(actor int) {
	view, err := s.authority.View(actor)
	if err != nil {
		s.fail(err)
		return
	}
	fallback, err := s.authority.SafeDefault(actor)
	if err != nil {
		s.fail(err)
		return
	}

	slot := s.slots[actor]
	stream := reasoning.NewStream(actor, slot.Name, s.deps.Clock.Now(), func(batch string) {
		s.broadcast(protocol.EventReasoningToken, protocol.ReasoningTokenPayload{Actor: actor, Text: batch})
	})
	s.streams[actor] = stream

	s.turnSeq++
	ctx, cancel := context.WithCancel(s.ctx)
	gen := &generation{seq: s.turnSeq, actor: actor, model: slot.Model, stream: stream, cancel: cancel}
	s.gen = gen

	s.broadcast(protocol.EventReasoningStart, protocol.ReasoningStartPayload{Actor: actor, Name: slot.Name, Model: slot.Model})

	turn := reasoning.Turn{
		SessionID:   s.id,
		Model:       slot.Model,
		Temperature: slot.Temperature,
		View:        view,
		Stream:      stream,
		Fallback:    fallback,
	}
	go func() {
		c := s.deps.Pipeline.Run(ctx, turn)
		_ = s.send(generationDone{seq: gen.seq, c: c})
	}()
}

func (s *Session) handleGeneration(seq uint64, c reasoning.Completion) {
	gen := s.gen
	if gen == nil || gen.seq != seq {
		return
	}
	s.gen = nil
	gen.cancel()

	logger := s.logger.With().Int("actor", gen.actor).Int("hand", s.authority.HandNumber()).Logger()
	if s.lifecycle != InHand || s.authority.CurrentActor() != gen.actor {
		logger.Error().Msg("generation finished out of turn")
		return
	}

	move := c.Move
	out, err := s.authority.Apply(gen.actor, move)
	rejected := err != nil
	if rejected {
		logger.Warn().Err(err).Msg("generated move rejected, using safe default")
		move, err = s.authority.SafeDefault(gen.actor)
		if err != nil {
			s.fail(err)
			return
		}
		if out, err = s.authority.Apply(gen.actor, move); err != nil {
			s.fail(fmt.Errorf("apply safe default: %w", err))
			return
		}
	}

	if err := gen.stream.Freeze(move); err != nil {
		logger.Error().Err(err).Msg("reasoning stream frozen twice")
	}
	s.broadcast(protocol.EventReasoningComplete, protocol.ReasoningCompletePayload{
		Actor:      gen.actor,
		Move:       move,
		FullText:   c.FullText,
		DurationMS: c.Duration.Milliseconds(),
		Fallback:   c.Fallback() || rejected,
	})

	switch {
	case rejected:
		s.sendError(protocol.CodeInvalidMove, fmt.Sprintf("%s chose an illegal move, playing %s", s.slots[gen.actor].Name, move))
	case c.Err != nil:
		s.sendError(protocol.CodeGenerationFailed, fmt.Sprintf("%s: %v, playing %s", s.slots[gen.actor].Name, c.Err, move))
	}
	s.archiveReasoning(gen, move, c, rejected)
	s.commit(out)
}

// commit publishes an applied move and moves the hand forward
func (s *Session) commit(out game.Outcome) {
	s.syncSlots()
	s.broadcast(protocol.EventStateDelta, out.Delta)
	if out.Result != nil {
		s.finishHand(out.Result)
		return
	}
	s.beginTurn()
}

func (s *Session) finishHand(res *game.HandResult) {
	if res == nil {
		s.fail(errors.New("finished hand has no result"))
		return
	}
	s.handsPlayed++
	s.lastHand = res
	s.syncSlots()

	s.logger.Info().
		Int("hand", res.HandNumber).
		Int("pot", res.Pot).
		Ints("winners", res.Winners).
		Bool("showdown", res.Showdown).
		Msg("hand complete")
	s.broadcast(protocol.EventHandComplete, protocol.NewHandComplete(res))
	s.archiveHand(res)

	switch {
	case s.handsPlayed >= s.cfg.HandLimit:
		s.end(ReasonHandLimit)
	case s.authority.Funded() < 2:
		s.end(ReasonBusted)
	default:
		_ = s.transition(BetweenHands)
		if s.cfg.NextHandDelay > 0 {
			s.nextHand = s.deps.Clock.NewTimer(s.cfg.NextHandDelay)
		}
	}
}

// end moves the session to ended and reports the final stacks. It is a no-op
// on an ended session.
func (s *Session) end(reason string) {
	if s.lifecycle == Ended {
		return
	}
	s.timer.Cancel()
	if gen := s.gen; gen != nil {
		s.gen = nil
		gen.cancel()
		// the stream is closed with the move the actor would have defaulted to
		if move, err := s.authority.SafeDefault(gen.actor); err == nil && gen.stream.Freeze(move) == nil {
			s.broadcast(protocol.EventReasoningComplete, protocol.ReasoningCompletePayload{
				Actor:    gen.actor,
				Move:     move,
				FullText: gen.stream.Text(),
				Fallback: true,
			})
		}
	}
	if s.nextHand != nil {
		s.nextHand.Stop()
		s.nextHand = nil
	}
	_ = s.transition(Ended)
	s.syncSlots()
	s.publishStatus()

	s.logger.Info().Str("reason", reason).Int("hands_played", s.handsPlayed).Msg("session complete")
	s.broadcast(protocol.EventSessionComplete, protocol.SessionCompletePayload{
		FinalStacks: s.authority.SettledStacks(),
		HandsPlayed: s.handsPlayed,
		Reason:      reason,
	})
}

// fail ends the session after a broken invariant
func (s *Session) fail(err error) {
	s.logger.Error().Err(err).Msg("session invariant violated")
	s.sendError(protocol.CodeInternal, err.Error())
	s.end(ReasonError)
}

// resyncClient sends a full state, preceded by extra, through the resync
// path. The active stream is held while the state is built and sent so no
// token batch can slip between the snapshot and the live stream.
func (s *Session) resyncClient(extra ...*protocol.Event) {
	var (
		snaps  []protocol.ReasoningSnapshot
		active *reasoning.Stream
	)
	actors := make([]int, 0, len(s.streams))
	for actor := range s.streams {
		actors = append(actors, actor)
	}
	sort.Ints(actors)
	for _, actor := range actors {
		st := s.streams[actor]
		if st.State() == reasoning.Active {
			active = st
			continue
		}
		snaps = append(snaps, streamSnapshot(st, st.Text(), reasoning.Frozen, st.Move()))
	}

	send := func(snaps []protocol.ReasoningSnapshot) {
		var evs []*protocol.Event
		for _, ev := range append(extra, s.event(protocol.EventFullState, s.fullState(snaps))) {
			if ev != nil {
				evs = append(evs, ev)
			}
		}
		if err := s.deps.Broadcaster.Resync(s.id, evs...); err != nil {
			s.logger.Warn().Err(err).Msg("resync not delivered")
		}
	}
	if active == nil {
		send(snaps)
		return
	}
	active.WithVisible(func(visible string, state reasoning.StreamState, move *holdem.Move) {
		send(append(snaps, streamSnapshot(active, visible, state, move)))
	})
}

// streamSnapshot only reads the immutable stream fields, so it is safe inside
// WithVisible
func streamSnapshot(st *reasoning.Stream, text string, state reasoning.StreamState, move *holdem.Move) protocol.ReasoningSnapshot {
	return protocol.ReasoningSnapshot{
		Actor:     st.Actor(),
		Name:      st.Name(),
		Text:      text,
		State:     state.String(),
		Move:      move,
		StartedAt: st.StartedAt().UTC(),
	}
}

func (s *Session) fullState(reasoningSnaps []protocol.ReasoningSnapshot) protocol.FullStatePayload {
	p := protocol.FullStatePayload{
		Lifecycle:   string(s.lifecycle),
		State:       s.authority.Snapshot(),
		Reasoning:   reasoningSnaps,
		HandsPlayed: s.handsPlayed,
		HandLimit:   s.cfg.HandLimit,
	}
	if actor, total, remaining, ok := s.timer.Snapshot(); ok {
		p.Timer = &protocol.TimerSnapshot{Actor: actor, Duration: seconds(total), Remaining: seconds(remaining)}
	}
	if s.lastHand != nil && s.lifecycle != InHand {
		last := protocol.NewHandComplete(s.lastHand)
		p.LastHand = &last
	}
	return p
}

func (s *Session) syncSlots() {
	for _, v := range s.authority.Snapshot().Slots {
		s.slots[v.Index].Stack = v.Stack
		s.slots[v.Index].Busted = v.Busted
	}
	if !s.authority.InHand() {
		for i, st := range s.authority.SettledStacks() {
			s.slots[i].Stack = st
			s.slots[i].Busted = st == 0
		}
	}
}

func (s *Session) publishStatus() {
	st := Status{
		ID:          s.id,
		Lifecycle:   s.lifecycle,
		HandNumber:  s.authority.HandNumber(),
		HandsPlayed: s.handsPlayed,
		HandLimit:   s.cfg.HandLimit,
		Players:     append([]PlayerSlot(nil), s.slots...),
		CreatedAt:   s.createdAt,
	}
	s.statusMu.Lock()
	s.status = st
	s.statusMu.Unlock()
}

func (s *Session) inspection() Inspection {
	in := Inspection{
		Snapshot:   s.authority.Snapshot(),
		Timer:      s.timer.State(),
		Generating: s.gen != nil,
	}
	s.publishStatus()
	in.Status = s.Status()
	for actor, st := range s.streams {
		if st.State() == reasoning.Active {
			in.ActiveStreams = append(in.ActiveStreams, actor)
		}
	}
	sort.Ints(in.ActiveStreams)
	return in
}

func (s *Session) event(typ protocol.EventType, payload any) *protocol.Event {
	ev, err := protocol.New(typ, s.id, s.deps.Clock.Now(), payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(typ)).Msg("failed to build event")
		return nil
	}
	return ev
}

// broadcast is safe to call from the pipeline goroutines; it only reads
// immutable session fields
func (s *Session) broadcast(typ protocol.EventType, payload any) {
	if ev := s.event(typ, payload); ev != nil {
		s.deps.Broadcaster.Broadcast(s.id, ev)
	}
}

func (s *Session) sendError(code, message string) {
	s.broadcast(protocol.EventError, protocol.ErrorPayload{Code: code, Message: message})
}

func seconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}
