// Package operator implements the debounced, LED-signalling control loop
// that gates script execution on a button press and a positive counter,
// per spec.md §4.6.
package operator

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tfischl/ispnub/internal/counter"
	"github.com/tfischl/ispnub/internal/hal"
	"github.com/tfischl/ispnub/internal/script"
)

// TickSource is the slow-tick surface the loop needs — satisfied by
// *tick.Source in production and by a fake in tests, so debounce/blink
// timing can be tested without waiting on wall-clock ticks.
type TickSource interface {
	SlowNow() uint8
	SlowDiff(sample uint8) uint8
}

const (
	// A slow tick of tick.Source lasts 256 fast ticks of 1ms (256ms).
	debounceSlowTicks = 2 // SlowDiff > 2: released for more than 512ms
	blinkSlowTicks    = 0 // SlowDiff > 0: toggles on every slow tick, ~250ms

	// pollInterval is how often Run samples the switch and ticks. The
	// original firmware busy-waits on a single core with nothing else to
	// do; here we share the host, so we poll instead of spin — see
	// DESIGN.md's Open Question resolution.
	pollInterval = 2 * time.Millisecond
)

// Runner executes one full programming cycle, returning its outcome.
// Satisfied by *script.Interpreter in production; a stub in tests.
type Runner interface {
	Run() (bool, error)
}

// Loop is the operator-facing state machine: debounce, trigger,
// counter-gating and idle LED animation.
type Loop struct {
	hw      hal.Facade
	tick    TickSource
	counter *counter.Store
	run     func() Runner
	log     *log.Logger

	keyLocked   bool
	keyTicker   uint8
	success     bool
	counterVal  uint16
	blinkTicker uint8
	blinkOn     bool
}

// New constructs a Loop. newRun is called once per trigger to obtain a
// fresh Runner bound to the script image's start cursor (a
// script.Interpreter has run-once semantics, mirroring the original's
// single flash-resident entry point re-executed from byte 0 each
// press).
func New(hw hal.Facade, t TickSource, cs *counter.Store, newRun func() Runner, logger *log.Logger) *Loop {
	return &Loop{
		hw:        hw,
		tick:      t,
		counter:   cs,
		run:       newRun,
		log:       logger,
		success:   true,
		keyLocked: true,
	}
}

// ensure *script.Interpreter can stand in for Runner without an adapter.
var _ Runner = (*script.Interpreter)(nil)

// Run blocks, driving the loop, until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	l.keyTicker = l.tick.SlowNow()
	l.blinkTicker = l.tick.SlowNow()

	v, err := l.counter.Read()
	if err != nil {
		return err
	}
	l.counterVal = v

	l.hw.LEDGreen(true)
	l.hw.LEDRed(false)

	t := time.NewTicker(pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			l.step()
		}
	}
}

func (l *Loop) step() {
	pressed := l.hw.SwitchPressed()

	if l.keyLocked {
		if pressed {
			l.keyTicker = l.tick.SlowNow()
		} else if l.tick.SlowDiff(l.keyTicker) > debounceSlowTicks {
			l.keyLocked = false
		}
	} else if pressed {
		if l.counterVal > 0 {
			l.hw.LEDGreen(true)
			l.hw.LEDRed(true)

			l.log.Info("programming cycle starting", "counter", l.counterVal)
			ok, err := l.run().Run()
			if err != nil {
				l.log.Error("programming cycle error", "err", err)
			}
			l.success = ok

			v, err := l.counter.Read()
			if err != nil {
				l.log.Error("counter read failed", "err", err)
			} else {
				l.counterVal = v
			}

			l.hw.LEDGreen(l.success)
			l.hw.LEDRed(false)
			l.blinkTicker = l.tick.SlowNow()

			l.log.Info("programming cycle finished", "success", l.success, "counter", l.counterVal)
		} else {
			l.log.Warn("programming counter exhausted, ignoring press")
			l.success = false
		}

		l.keyLocked = true
		l.keyTicker = l.tick.SlowNow()
	}

	if l.tick.SlowDiff(l.blinkTicker) > blinkSlowTicks {
		l.blinkTicker = l.tick.SlowNow()
		l.blinkOn = !l.blinkOn

		if l.counterVal == 0 {
			l.hw.LEDGreen(l.blinkOn)
		} else {
			l.hw.LEDGreen(l.success)
		}

		if !l.success {
			l.hw.LEDRed(l.blinkOn)
		} else {
			l.hw.LEDRed(false)
		}
	}
}
