// Package encoder implements a quadrature encoder decoder: an
// interrupt-updated signed tick counter plus a sliding-window RPM estimator.
//
// The tick counter lives in a single atomic integer. Edge callbacks run in
// interrupt context and perform exactly one atomic add; no locks, no
// allocation, no floating point. Everything else (window maintenance, RPM
// math, diagnostics) runs on the control loop side.
package encoder

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
)

// Defaults, matching the shipped rover calibration.
const (
	DefaultTicksPerRev = 728 // 13 pulses x 28:1 gear x 2 edges
	DefaultWindow      = 100 * time.Millisecond
	DefaultMinInterval = 5 * time.Millisecond

	// staleWindows is how many RPM windows may pass without an edge before
	// the encoder is reported stale.
	staleWindows = 3
)

// Config parameterises an Encoder. Zero values fall back to the defaults
// above.
type Config struct {
	TicksPerRev float64
	Window      time.Duration
	// MinInterval is the shortest spacing between two RPM recomputations.
	// Calls closer together return the cached value so a near-zero divisor
	// never reaches the estimate.
	MinInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.TicksPerRev == 0 {
		c.TicksPerRev = DefaultTicksPerRev
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.MinInterval == 0 {
		c.MinInterval = DefaultMinInterval
	}
}

// sample is one (tick delta, dt) observation in the sliding window.
type sample struct {
	at    time.Time
	delta int64
	dt    time.Duration
}

// Diagnostics is a read-only health snapshot of the estimator.
type Diagnostics struct {
	Ticks         int64
	RPM           float64
	WindowSamples int
	SinceLastEdge time.Duration
	// Stale is set when no edge has been observed for several window
	// durations; it signals a disconnected or broken encoder, not an error.
	Stale bool
}

// Encoder tracks position and estimates speed for one wheel.
type Encoder struct {
	ticks atomic.Int64

	cfg   Config
	clock timeutil.Clock

	mu         sync.Mutex
	samples    []sample
	lastCount  int64
	lastTime   time.Time
	lastChange time.Time
	rpm        float64
}

// New returns an Encoder using clk for all loop-side time arithmetic.
func New(cfg Config, clk timeutil.Clock) *Encoder {
	cfg.applyDefaults()
	now := clk.Now()
	return &Encoder{
		cfg:        cfg,
		clock:      clk,
		lastTime:   now,
		lastChange: now,
	}
}

// Edge is the channel-A edge callback. It must be safe to call from
// interrupt context: the body is a single atomic add. When both channels
// read the same level the wheel is moving forward; otherwise backward.
func (e *Encoder) Edge(aHigh, bHigh bool) {
	if aHigh == bHigh {
		e.ticks.Add(1)
	} else {
		e.ticks.Add(-1)
	}
}

// Ticks returns the signed tick count since the last reset. The count is
// unbounded (it wraps only at int64 width) so odometry can integrate it.
func (e *Encoder) Ticks() int64 {
	return e.ticks.Load()
}

// RPM returns the last smoothed signed RPM without recomputing.
func (e *Encoder) RPM() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rpm
}

// UpdateRPM folds the ticks accumulated since the previous call into the
// sliding window and recomputes the smoothed signed RPM. Called from the
// control loop, never from interrupt context.
func (e *Encoder) UpdateRPM() float64 {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	dt := now.Sub(e.lastTime)
	if dt < e.cfg.MinInterval {
		return e.rpm
	}

	count := e.ticks.Load()
	delta := count - e.lastCount
	e.samples = append(e.samples, sample{at: now, delta: delta, dt: dt})
	e.lastCount = count
	e.lastTime = now
	if delta != 0 {
		e.lastChange = now
	}

	// Evict samples that fell out of the window.
	cutoff := now.Add(-e.cfg.Window)
	for len(e.samples) > 0 && e.samples[0].at.Before(cutoff) {
		e.samples = e.samples[1:]
	}

	var totalTicks int64
	var totalTime time.Duration
	for _, s := range e.samples {
		totalTicks += s.delta
		totalTime += s.dt
	}
	if totalTime > 0 {
		revs := float64(totalTicks) / e.cfg.TicksPerRev
		mins := totalTime.Minutes()
		e.rpm = revs / mins
	}
	return e.rpm
}

// Reset zeroes the count, window and cached RPM. Called when a motor target
// transitions to zero or when re-arming after an emergency stop, so stale
// window history cannot leak into the next run.
func (e *Encoder) Reset() {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.ticks.Store(0)
	e.samples = e.samples[:0]
	e.lastCount = 0
	e.lastTime = now
	e.lastChange = now
	e.rpm = 0
}

// Stale reports whether no edge has been observed for several window
// durations.
func (e *Encoder) Stale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.staleLocked(e.clock.Now())
}

func (e *Encoder) staleLocked(now time.Time) bool {
	return now.Sub(e.lastChange) > time.Duration(staleWindows)*e.cfg.Window
}

// Diagnostics returns a consistent snapshot for telemetry and health checks.
func (e *Encoder) Diagnostics() Diagnostics {
	now := e.clock.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	return Diagnostics{
		Ticks:         e.ticks.Load(),
		RPM:           e.rpm,
		WindowSamples: len(e.samples),
		SinceLastEdge: now.Sub(e.lastChange),
		Stale:         e.staleLocked(now),
	}
}

// AbsRPM returns the magnitude of the cached RPM estimate. The PID loop
// controls speed magnitude; direction is handled on the actuator side.
func (e *Encoder) AbsRPM() float64 {
	return math.Abs(e.RPM())
}
