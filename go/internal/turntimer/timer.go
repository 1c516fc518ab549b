package turntimer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State of a turn timer
type State int

const (
	Idle State = iota
	Running
	Expired
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Expired:
		return "expired"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrInvalidTransition = errors.New("invalid timer transition")
	ErrNotHumanActor     = errors.New("timer only runs for the human actor")
)

// transitions is the only place timer states change
var transitions = map[State][]State{
	Idle:      {Running},
	Running:   {Expired, Cancelled},
	Expired:   {Idle},
	Cancelled: {Idle},
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SignalKind distinguishes the raw signals the countdown goroutine emits
type SignalKind int

const (
	SignalTick SignalKind = iota
	SignalDeadline
)

// Signal is emitted on C and must be passed back to Handle by the owner
type Signal struct {
	Kind SignalKind
	Gen  uint64
}

// EventKind is what a handled signal means to the session
type EventKind int

const (
	EventTick EventKind = iota
	EventExpired
)

// Event is a validated timer notification
type Event struct {
	Kind      EventKind
	Actor     int
	Remaining time.Duration
}

// Started describes a freshly started countdown
type Started struct {
	Actor    int
	Duration time.Duration
	Deadline time.Time
}

// Timer counts down the human actor's turn. Start, Cancel and Handle must be
// called from one goroutine; the countdown goroutine only writes to C.
type Timer struct {
	clock     clockwork.Clock
	interval  time.Duration
	humanSlot int

	c chan Signal

	mu       sync.Mutex
	state    State
	actor    int
	total    time.Duration
	deadline time.Time
	gen      uint64
	stop     chan struct{}
}

// New creates an idle timer that ticks every interval
func New(clock clockwork.Clock, interval time.Duration, humanSlot int) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	return &Timer{
		clock:     clock,
		interval:  interval,
		humanSlot: humanSlot,
		c:         make(chan Signal, 4),
		state:     Idle,
		actor:     -1,
	}
}

// C delivers raw tick and deadline signals
func (t *Timer) C() <-chan Signal { return t.c }

// State returns the current state
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the time left on a running countdown, zero otherwise
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return 0
	}
	return t.remainingLocked()
}

// Snapshot returns actor, total and remaining of a running countdown
func (t *Timer) Snapshot() (actor int, total, remaining time.Duration, running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return -1, 0, 0, false
	}
	return t.actor, t.total, t.remainingLocked(), true
}

func (t *Timer) transition(to State) error {
	if !CanTransition(t.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.state, to)
	}
	t.state = to
	return nil
}

// Start begins a countdown for actor
func (t *Timer) Start(actor int, d time.Duration) (Started, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if actor != t.humanSlot {
		return Started{}, fmt.Errorf("%w: slot %d", ErrNotHumanActor, actor)
	}
	if err := t.transition(Running); err != nil {
		return Started{}, err
	}

	t.gen++
	t.actor = actor
	t.total = d
	t.deadline = t.clock.Now().Add(d)
	t.stop = make(chan struct{})
	go t.run(t.gen, d, t.stop)

	log.Debug().Int("actor", actor).Dur("duration", d).Msg("turn timer started")
	return Started{Actor: actor, Duration: d, Deadline: t.deadline}, nil
}

// Cancel stops a running countdown and returns the timer to idle. Calling it
// on a timer that is not running is a no-op.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return
	}
	_ = t.transition(Cancelled)
	close(t.stop)
	_ = t.transition(Idle)
	log.Debug().Int("actor", t.actor).Msg("turn timer cancelled")
	t.actor = -1
}

// Handle validates a signal read from C. Signals of an earlier countdown or
// arriving after Cancel are dropped (ok == false). A deadline signal moves the
// timer through expired back to idle and yields EventExpired.
func (t *Timer) Handle(sig Signal) (Event, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sig.Gen != t.gen || t.state != Running {
		return Event{}, false
	}
	switch sig.Kind {
	case SignalTick:
		return Event{Kind: EventTick, Actor: t.actor, Remaining: t.remainingLocked()}, true
	case SignalDeadline:
		_ = t.transition(Expired)
		close(t.stop)
		ev := Event{Kind: EventExpired, Actor: t.actor}
		_ = t.transition(Idle)
		t.actor = -1
		log.Debug().Int("actor", ev.Actor).Msg("turn timer expired")
		return ev, true
	default:
		return Event{}, false
	}
}

func (t *Timer) remainingLocked() time.Duration {
	left := t.deadline.Sub(t.clock.Now())
	if left < 0 {
		return 0
	}
	return left.Round(time.Second)
}

// run is the countdown goroutine of one generation
func (t *Timer) run(gen uint64, d time.Duration, stop <-chan struct{}) {
	ticker := t.clock.NewTicker(t.interval)
	deadline := t.clock.NewTimer(d)
	defer ticker.Stop()
	defer deadline.Stop()

	emit := func(kind SignalKind) bool {
		select {
		case t.c <- Signal{Kind: kind, Gen: gen}:
			return true
		case <-stop:
			return false
		}
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !emit(SignalTick) {
				return
			}
		case <-deadline.Chan():
			emit(SignalDeadline)
			return
		}
	}
}
