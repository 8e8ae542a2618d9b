// Package pid implements the per-wheel control law: PID plus an open-loop
// feedforward baseline, with anti-windup, slew-rate limiting and output
// clamping. Outputs are PWM duty counts.
package pid

import (
	"errors"
	"fmt"
	"math"
)

// Defaults from the shipped rover tune. Kff and Offset come from the
// two-speed steady-state calibration (see FitFeedforward); treat all of
// these as per-hardware configuration, not a contract.
const (
	DefaultKp           = 75.0
	DefaultKi           = 7.5
	DefaultKd           = 2.5
	DefaultKff          = 165.0
	DefaultOffset       = 1789.0
	DefaultSlewMaxDelta = 3000.0
	DefaultDutyMin      = 3500.0
	DefaultDutyMax      = 52428.0 // 80% of 16-bit full scale
	DefaultErrorBound   = 150.0   // RPM; gate for integral accumulation
)

// ErrInvalidConfig reports an unusable controller configuration.
var ErrInvalidConfig = errors.New("pid: invalid config")

// Config holds the gains and limits for one controller.
type Config struct {
	Kp float64
	Ki float64
	Kd float64

	// Kff and Offset form the feedforward term Kff*target + Offset, an
	// empirically calibrated open-loop duty baseline.
	Kff    float64
	Offset float64

	// SlewMaxDelta bounds the change in output per compute step. Zero
	// disables slew limiting.
	SlewMaxDelta float64

	// DutyMin/DutyMax clamp the output. DutyMin is the deadband floor below
	// which the motor does not turn.
	DutyMin float64
	DutyMax float64

	// IntegralLimit clamps the error integral to [-IntegralLimit,
	// IntegralLimit]. Zero disables the clamp.
	IntegralLimit float64

	// ErrorSaneBound stops integral accumulation while |error| is at or
	// above this value, so a large step change cannot wind the integral up
	// during the approach. Zero disables the gate.
	ErrorSaneBound float64
}

// DefaultConfig returns the shipped tune.
func DefaultConfig() Config {
	return Config{
		Kp:             DefaultKp,
		Ki:             DefaultKi,
		Kd:             DefaultKd,
		Kff:            DefaultKff,
		Offset:         DefaultOffset,
		SlewMaxDelta:   DefaultSlewMaxDelta,
		DutyMin:        DefaultDutyMin,
		DutyMax:        DefaultDutyMax,
		ErrorSaneBound: DefaultErrorBound,
	}
}

// Validate rejects configurations whose output range is empty.
func (c Config) Validate() error {
	if c.DutyMax <= c.DutyMin {
		return fmt.Errorf("%w: duty range [%v, %v] is empty", ErrInvalidConfig, c.DutyMin, c.DutyMax)
	}
	if c.SlewMaxDelta < 0 || c.IntegralLimit < 0 || c.ErrorSaneBound < 0 {
		return fmt.Errorf("%w: limits must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// State is a diagnostic snapshot of the controller internals.
type State struct {
	Integral   float64
	LastError  float64
	LastOutput float64
	// Saturated is set when the last output was pinned at DutyMin or
	// DutyMax. Not an error; informs tuning.
	Saturated bool
}

// Controller is the stateful control law for one wheel. Not safe for
// concurrent use; it belongs to a single motor loop.
type Controller struct {
	cfg Config

	integral   float64
	lastError  float64
	lastOutput float64
	saturated  bool
}

// New builds a Controller, rejecting invalid configurations.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, lastOutput: cfg.DutyMin}, nil
}

// Compute advances the control law one step and returns the new duty.
// target and current are RPM magnitudes; dt is the step interval in seconds.
func (c *Controller) Compute(target, current, dt float64) float64 {
	err := target - current

	if c.cfg.ErrorSaneBound == 0 || math.Abs(err) < c.cfg.ErrorSaneBound {
		c.integral += err * dt
	}
	if lim := c.cfg.IntegralLimit; lim > 0 {
		c.integral = clamp(c.integral, -lim, lim)
	}

	var derivative float64
	if dt > 0 {
		derivative = (err - c.lastError) / dt
	}

	pidTerm := c.cfg.Kp*err + c.cfg.Ki*c.integral + c.cfg.Kd*derivative
	feedforward := c.cfg.Kff*target + c.cfg.Offset
	raw := pidTerm + feedforward

	if slew := c.cfg.SlewMaxDelta; slew > 0 {
		raw = clamp(raw, c.lastOutput-slew, c.lastOutput+slew)
	}

	out := clamp(raw, c.cfg.DutyMin, c.cfg.DutyMax)

	c.lastError = err
	c.lastOutput = out
	c.saturated = out <= c.cfg.DutyMin || out >= c.cfg.DutyMax
	return out
}

// Reset clears the integral, error history and output history. Must be
// called whenever the target transitions to zero so a stale integral cannot
// kick the motor on the next start.
func (c *Controller) Reset() {
	c.integral = 0
	c.lastError = 0
	c.lastOutput = c.cfg.DutyMin
	c.saturated = false
}

// State returns the current diagnostic snapshot.
func (c *Controller) State() State {
	return State{
		Integral:   c.integral,
		LastError:  c.lastError,
		LastOutput: c.lastOutput,
		Saturated:  c.saturated,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
