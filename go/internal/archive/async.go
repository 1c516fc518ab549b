package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrArchiveClosed = errors.New("archive closed")

type AsyncConfig struct {
	Buffer     int
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration // per publish attempt
}

func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		Buffer:     1024,
		MaxRetries: 3,
		RetryDelay: time.Second,
		Timeout:    5 * time.Second,
	}
}

type job struct {
	kind string
	run  func(ctx context.Context) error
}

// Async moves archiving off the caller's goroutine. Records are queued and
// written by a single worker; a full queue drops the record with a warning
// so game play never waits on the history store.
type Async struct {
	next   Archiver
	clock  clockwork.Clock
	config AsyncConfig
	queue  chan job
	done   chan struct{}

	mu     sync.Mutex
	closed bool

	statsMu      sync.Mutex
	processed    uint64
	failed       uint64
	dropped      uint64
	lastArchived time.Time
}

func NewAsync(next Archiver, clock clockwork.Clock, cfg AsyncConfig) *Async {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1
	}
	a := &Async{
		next:   next,
		clock:  clock,
		config: cfg,
		queue:  make(chan job, cfg.Buffer),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) ArchiveReasoning(_ context.Context, rec ReasoningRecord) error {
	return a.enqueue(job{kind: "reasoning", run: func(ctx context.Context) error {
		return a.next.ArchiveReasoning(ctx, rec)
	}})
}

func (a *Async) ArchiveHand(_ context.Context, rec HandRecord) error {
	return a.enqueue(job{kind: "hand", run: func(ctx context.Context) error {
		return a.next.ArchiveHand(ctx, rec)
	}})
}

func (a *Async) enqueue(j job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrArchiveClosed
	}
	select {
	case a.queue <- j:
	default:
		a.statsMu.Lock()
		a.dropped++
		a.statsMu.Unlock()
		log.Warn().Str("kind", j.kind).Msg("archive queue full, dropping record")
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		err := a.process(j)

		a.statsMu.Lock()
		if err != nil {
			a.failed++
		} else {
			a.processed++
			a.lastArchived = a.clock.Now()
		}
		a.statsMu.Unlock()
	}
}

func (a *Async) process(j job) error {
	var err error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			<-a.clock.After(a.config.RetryDelay * time.Duration(attempt))
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.config.Timeout)
		err = j.run(ctx)
		cancel()
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Str("kind", j.kind).Int("attempt", attempt+1).Msg("archive write failed")
	}
	log.Error().Err(err).Str("kind", j.kind).Msg("giving up on archive record")
	return err
}

// Stats returns counters of the worker
func (a *Async) Stats() (processed, failed, dropped uint64, pending int, last time.Time) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	return a.processed, a.failed, a.dropped, len(a.queue), a.lastArchived
}

// Close stops accepting records, drains the queue and closes the next archiver
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}
