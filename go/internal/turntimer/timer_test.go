package turntimer

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvSignal(t *testing.T, tm *Timer, within time.Duration) Signal {
	t.Helper()
	select {
	case sig := <-tm.C():
		return sig
	case <-time.After(within):
		t.Fatalf("timed out waiting for timer signal")
		return Signal{}
	}
}

func waitForCountdown(t *testing.T, fc *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// ticker and deadline timer
	require.NoError(t, fc.BlockUntilContext(ctx, 2))
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(Idle, Running))
	assert.True(t, CanTransition(Running, Expired))
	assert.True(t, CanTransition(Running, Cancelled))
	assert.True(t, CanTransition(Expired, Idle))
	assert.True(t, CanTransition(Cancelled, Idle))

	assert.False(t, CanTransition(Idle, Expired))
	assert.False(t, CanTransition(Running, Idle))
	assert.False(t, CanTransition(Expired, Running))
}

func TestStart_OnlyFromIdleAndForHuman(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tm := New(fc, time.Second, 0)

	_, err := tm.Start(1, 30*time.Second)
	assert.ErrorIs(t, err, ErrNotHumanActor)
	assert.Equal(t, Idle, tm.State())

	started, err := tm.Start(0, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, fc.Now().Add(30*time.Second), started.Deadline)
	assert.Equal(t, Running, tm.State())

	_, err = tm.Start(0, 30*time.Second)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	tm.Cancel()
	assert.Equal(t, Idle, tm.State())
}

func TestTimer_ExpiresOnceAfterDuration(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tm := New(fc, time.Second, 0)
	start := fc.Now()

	_, err := tm.Start(0, 30*time.Second)
	require.NoError(t, err)
	waitForCountdown(t, fc)

	for i := 1; i < 30; i++ {
		fc.Advance(time.Second)
		ev, ok := tm.Handle(recvSignal(t, tm, time.Second))
		require.True(t, ok)
		require.Equal(t, EventTick, ev.Kind)
		assert.Equal(t, time.Duration(30-i)*time.Second, ev.Remaining)
		assert.Equal(t, 0, ev.Actor)
	}

	fc.Advance(time.Second)
	expired := 0
	for expired == 0 {
		ev, ok := tm.Handle(recvSignal(t, tm, time.Second))
		if ok && ev.Kind == EventExpired {
			expired++
			assert.Equal(t, 0, ev.Actor)
			assert.GreaterOrEqual(t, fc.Since(start), 30*time.Second)
		}
	}
	assert.Equal(t, Idle, tm.State())

	// nothing more is delivered for this countdown
	fc.Advance(5 * time.Second)
	select {
	case sig := <-tm.C():
		_, ok := tm.Handle(sig)
		assert.False(t, ok)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancel_DropsPendingSignals(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tm := New(fc, time.Second, 0)

	_, err := tm.Start(0, 3*time.Second)
	require.NoError(t, err)
	waitForCountdown(t, fc)

	fc.Advance(time.Second)
	sig := recvSignal(t, tm, time.Second)

	tm.Cancel()
	_, ok := tm.Handle(sig)
	assert.False(t, ok, "tick read before cancel is stale after it")
	assert.Zero(t, tm.Remaining())

	fc.Advance(10 * time.Second)
	select {
	case sig := <-tm.C():
		_, ok := tm.Handle(sig)
		assert.False(t, ok)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandle_DropsEarlierGeneration(t *testing.T) {
	fc := clockwork.NewFakeClock()
	tm := New(fc, time.Second, 0)

	_, err := tm.Start(0, 30*time.Second)
	require.NoError(t, err)
	tm.Cancel()
	_, err = tm.Start(0, 30*time.Second)
	require.NoError(t, err)

	_, ok := tm.Handle(Signal{Kind: SignalDeadline, Gen: 1})
	assert.False(t, ok)
	assert.Equal(t, Running, tm.State())

	actor, total, remaining, running := tm.Snapshot()
	assert.True(t, running)
	assert.Equal(t, 0, actor)
	assert.Equal(t, 30*time.Second, total)
	assert.Equal(t, 30*time.Second, remaining)
	tm.Cancel()
}
