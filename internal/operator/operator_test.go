package operator_test

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfischl/ispnub/internal/counter"
	"github.com/tfischl/ispnub/internal/hal"
	"github.com/tfischl/ispnub/internal/operator"
)

// fakeTick free-runs much faster than the real 256ms slow tick so
// debounce/blink thresholds clear within a short test window instead of
// real half-seconds.
type fakeTick struct {
	now atomic.Uint32

	stop chan struct{}
	done chan struct{}
}

func newFakeTick() *fakeTick {
	f := &fakeTick{stop: make(chan struct{}), done: make(chan struct{})}
	go f.run()
	return f
}

func (f *fakeTick) run() {
	defer close(f.done)
	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-t.C:
			f.now.Add(1)
		}
	}
}

func (f *fakeTick) close() {
	close(f.stop)
	<-f.done
}

func (f *fakeTick) SlowNow() uint8             { return uint8(f.now.Load()) }
func (f *fakeTick) SlowDiff(sample uint8) uint8 { return f.SlowNow() - sample }

type stubRunner struct {
	result bool
}

func (r stubRunner) Run() (bool, error) { return r.result, nil }

func silentLogger() *log.Logger {
	return log.New(io.Discard)
}

func newLoopRig(t *testing.T, nextResult *bool) (*operator.Loop, *hal.Sim, *counter.Store) {
	t.Helper()
	sim, _ := hal.NewSim(nil)
	cs := counter.New(sim)
	ft := newFakeTick()
	t.Cleanup(ft.close)
	newRun := func() operator.Runner { return stubRunner{result: *nextResult} }
	l := operator.New(sim, ft, cs, newRun, silentLogger())
	return l, sim, cs
}

// runLoop starts l.Run in the background and returns a cancel func. The
// debounce threshold (more than 2 fake-slow-ticks) clears almost immediately
// since fakeTick advances once per real millisecond.
func runLoop(l *operator.Loop) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	return ctx, cancel
}

func TestCounterExhaustedIgnoresPress(t *testing.T) {
	sim, _ := hal.NewSim(nil)
	cs := counter.New(sim)
	require.NoError(t, cs.Write(0)) // read() == 0, script never runs
	ft := newFakeTick()
	t.Cleanup(ft.close)
	var runs atomic.Int32
	newRun := func() operator.Runner {
		runs.Add(1)
		return stubRunner{result: true}
	}
	l := operator.New(sim, ft, cs, newRun, silentLogger())

	_, cancel := runLoop(l)
	defer cancel()

	time.Sleep(30 * time.Millisecond) // let the debounce lock clear
	sim.PressSwitch()
	time.Sleep(20 * time.Millisecond)

	// The ignored press counts as a failed outcome, so red blinks along
	// with the exhausted-counter green blink; either phase is valid.
	assert.Zero(t, runs.Load(), "an exhausted counter must not start a programming cycle")
}

func TestTriggerRunsScriptWhenCounterPositive(t *testing.T) {
	success := true
	l, sim, cs := newLoopRig(t, &success)
	require.NoError(t, cs.Write(5))

	_, cancel := runLoop(l)
	defer cancel()

	time.Sleep(30 * time.Millisecond)
	sim.PressSwitch()
	time.Sleep(20 * time.Millisecond)
	sim.ReleaseSwitch()
	time.Sleep(5 * time.Millisecond)

	green, red := sim.LEDState()
	assert.True(t, green)
	assert.False(t, red)
}

func TestFailedRunBlinksRed(t *testing.T) {
	success := false
	l, sim, cs := newLoopRig(t, &success)
	require.NoError(t, cs.Write(5))

	_, cancel := runLoop(l)
	defer cancel()

	time.Sleep(30 * time.Millisecond)
	sim.PressSwitch()
	time.Sleep(20 * time.Millisecond)
	sim.ReleaseSwitch()
	time.Sleep(5 * time.Millisecond)

	green, _ := sim.LEDState()
	assert.False(t, green, "a failed run must not leave green solid-on")
}
