package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock gives access to the replay time of the run.
type Clock interface {
	// Now returns the time of the last epoch handed to the controller.
	Now() time.Time
}

// Mode describes how the TimeController paces epoch replay.
type Mode int

const (
	// RealTime holds every epoch back until the wall clock has advanced by
	// the same amount as the observation time (scaled by Speed).
	RealTime Mode = iota
	// Accelerated releases epochs as fast as they can be processed.
	Accelerated
)

// TimeController maps seconds of day onto the processing day, paces the
// replay and notifies registered listeners. It implements Clock.
type TimeController struct {
	mu sync.RWMutex

	Day  time.Time
	Mode Mode
	// Speed multiplies the RealTime pace. Values <= 0 mean 1.
	Speed float64

	currentTime time.Time

	// Wall clock and observation time of the first paced epoch.
	wallStart time.Time
	sodStart  float64
	started   bool

	listeners []func(time.Time)
}

// NewTimeController constructs a controller for the day starting at day.
func NewTimeController(day time.Time, mode Mode) *TimeController {
	return &TimeController{
		Day:         day,
		Mode:        mode,
		Speed:       1,
		currentTime: day,
	}
}

// Now returns the current replay time. Implements Clock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// TimeOf converts a second of day into an absolute time.
func (tc *TimeController) TimeOf(sod float64) time.Time {
	return tc.Day.Add(time.Duration(sod * float64(time.Second)))
}

// AddListener registers a callback invoked after every Advance.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Advance moves replay time to sod. In RealTime mode it blocks until the
// epoch is due; it returns early with the context error if ctx is done.
// Epochs that go back in time are released immediately.
func (tc *TimeController) Advance(ctx context.Context, sod float64) error {
	if tc.Mode == RealTime {
		if err := tc.wait(ctx, sod); err != nil {
			return err
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	now := tc.TimeOf(sod)
	tc.mu.Lock()
	tc.currentTime = now
	listeners := append([]func(time.Time){}, tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
	return nil
}

func (tc *TimeController) wait(ctx context.Context, sod float64) error {
	tc.mu.Lock()
	if !tc.started {
		tc.started = true
		tc.wallStart = time.Now()
		tc.sodStart = sod
	}
	speed := tc.Speed
	if speed <= 0 {
		speed = 1
	}
	due := tc.wallStart.Add(time.Duration((sod - tc.sodStart) / speed * float64(time.Second)))
	tc.mu.Unlock()

	delay := time.Until(due)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Every wraps fn into a listener that fires on the first epoch and then
// once whenever replay time crosses into a new interval, with boundaries
// as computed by time.Truncate.
func Every(interval time.Duration, fn func(time.Time)) func(time.Time) {
	var (
		mu      sync.Mutex
		last    time.Time
		started bool
	)
	return func(now time.Time) {
		slot := now.Truncate(interval)
		mu.Lock()
		fire := !started || !slot.Equal(last)
		started, last = true, slot
		mu.Unlock()
		if fire {
			fn(now)
		}
	}
}
