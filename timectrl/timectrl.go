package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Components that
// only need to read or wait on simulated time depend on it rather than on
// the concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After returns a channel that receives the simulation time once d has
	// elapsed in simulation time.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces ticks against the wall clock, scaled by Speed.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners allow while still
	// stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// TimeController drives simulation time in fixed steps and notifies
// registered listeners once per step. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode
	// Speed is the ratio of simulated to wall time in RealTime mode. Values
	// <= 0 mean 1.
	Speed float64

	currentTime time.Time
	ticks       uint64

	paused bool
	wake   chan struct{}
	stop   chan struct{}
	once   sync.Once

	waiters   []waiter
	listeners []func(time.Time)
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		Speed:       1,
		currentTime: start,
		wake:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Ticks returns how many steps the controller has taken.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// SetTime moves the clock to t without notifying listeners. Waiters whose
// deadline has passed fire.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.fireWaitersLocked()
	tc.mu.Unlock()
}

// After returns a channel that receives the simulation time once d has
// elapsed in simulation time. Implements SimClock.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	deadline := tc.currentTime.Add(d)
	if d <= 0 {
		ch <- tc.currentTime
		return ch
	}
	tc.waiters = append(tc.waiters, waiter{deadline: deadline, ch: ch})
	return ch
}

func (tc *TimeController) fireWaitersLocked() {
	kept := tc.waiters[:0]
	for _, w := range tc.waiters {
		if !w.deadline.After(tc.currentTime) {
			w.ch <- tc.currentTime
			continue
		}
		kept = append(kept, w)
	}
	tc.waiters = kept
}

// AddListener registers a callback invoked on every tick with the new
// simulation time. Listeners run on the controller goroutine in
// registration order.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Pause holds the clock until Resume. A tick in progress completes.
func (tc *TimeController) Pause() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.paused = true
}

// Resume releases a paused clock.
func (tc *TimeController) Resume() {
	tc.mu.Lock()
	tc.paused = false
	tc.mu.Unlock()
	select {
	case tc.wake <- struct{}{}:
	default:
	}
}

// Paused reports whether the clock is paused.
func (tc *TimeController) Paused() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.paused
}

// Stop ends a running Start loop after the current tick. It is safe to call
// more than once.
func (tc *TimeController) Stop() {
	tc.once.Do(func() { close(tc.stop) })
}

func (tc *TimeController) interval() time.Duration {
	speed := tc.Speed
	if speed <= 0 {
		speed = 1
	}
	d := time.Duration(float64(tc.Tick) / speed)
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}

// Start runs the controller in a separate goroutine until maxTicks steps
// have been taken (0 means no limit), ctx is cancelled or Stop is called. It
// returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, maxTicks uint64) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		var pace <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.interval())
			defer ticker.Stop()
			pace = ticker.C
		}

		for {
			if maxTicks > 0 && tc.Ticks() >= maxTicks {
				return
			}
			if !tc.waitRunnable(ctx) {
				return
			}
			if pace != nil {
				select {
				case <-ctx.Done():
					return
				case <-tc.stop:
					return
				case <-pace:
				}
			} else {
				select {
				case <-ctx.Done():
					return
				case <-tc.stop:
					return
				default:
				}
			}
			tc.Step()
		}
	}()
	return done
}

// waitRunnable blocks while the clock is paused. It returns false once the
// loop should exit.
func (tc *TimeController) waitRunnable(ctx context.Context) bool {
	for tc.Paused() {
		select {
		case <-ctx.Done():
			return false
		case <-tc.stop:
			return false
		case <-tc.wake:
		}
	}
	return true
}

// Step advances the clock by one tick and notifies listeners. Start calls it
// from its goroutine; callers driving the clock by hand call it directly.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.ticks++
	now := tc.currentTime
	tc.fireWaitersLocked()
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return now
}
