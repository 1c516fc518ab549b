package reasoning

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
)

// Sink receives what a Batcher consumes. Append sees every fragment as it
// arrives, Flush sees the coalesced batches in order.
type Sink interface {
	Append(fragment string)
	Flush(batch string)
}

// Batcher coalesces a fragment stream into batches. A batch is flushed when it
// reaches size characters or maxDelay after the previous flush, whichever is
// first, and once more when the input closes. A zero maxDelay disables the
// time based flush.
type Batcher struct {
	clock    clockwork.Clock
	size     int
	maxDelay time.Duration
}

// NewBatcher returns a batcher; size below 1 is treated as 1
func NewBatcher(clock clockwork.Clock, size int, maxDelay time.Duration) *Batcher {
	if size < 1 {
		size = 1
	}
	return &Batcher{clock: clock, size: size, maxDelay: maxDelay}
}

// Run consumes in until it is closed. It is the only reader of in.
func (b *Batcher) Run(in <-chan string, sink Sink) {
	var (
		buf    strings.Builder
		runes  int
		timer  clockwork.Timer
		timerC <-chan time.Time
	)
	if b.maxDelay > 0 {
		timer = b.clock.NewTimer(b.maxDelay)
		timerC = timer.Chan()
		defer timer.Stop()
	}

	flush := func() {
		if buf.Len() > 0 {
			sink.Flush(buf.String())
			buf.Reset()
			runes = 0
		}
	}

	for {
		select {
		case frag, ok := <-in:
			if !ok {
				flush()
				return
			}
			if frag == "" {
				continue
			}
			sink.Append(frag)
			buf.WriteString(frag)
			runes += utf8.RuneCountInString(frag)
			if runes >= b.size {
				flush()
				if timer != nil {
					stopAndDrainTimer(timer)
					timer.Reset(b.maxDelay)
				}
			}
		case <-timerC:
			flush()
			timer.Reset(b.maxDelay)
		}
	}
}

// stopAndDrainTimer stops a timer and empties its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
