// Package drivetrain owns the two wheel motors and turns body-frame
// velocity commands into wheel targets, with the command-timeout fail-safe
// and the emergency-stop latch on top.
package drivetrain

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/kinematics"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/monitoring"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/motor"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/wire"
)

// DefaultCommandTimeout is how long a velocity command stays valid. With no
// fresh command inside this window the controller stops and brakes.
const DefaultCommandTimeout = 500 * time.Millisecond

// ErrEstopLatched is returned by commands refused while the emergency stop
// is latched.
var ErrEstopLatched = errors.New("drivetrain: emergency stop latched")

// Config assembles a Controller.
type Config struct {
	Left           motor.Motor
	Right          motor.Motor
	Model          kinematics.Model
	CommandTimeout time.Duration
	Clock          timeutil.Clock
}

// Diagnostics is the drivetrain snapshot telemetry is built from.
type Diagnostics struct {
	CommandLinear  float64
	CommandAngular float64
	ActualLinear   float64
	ActualAngular  float64
	Left           motor.Diagnostics
	Right          motor.Diagnostics
	Flags          wire.StatusFlags
	EstopSource    uint8
}

// moveGoal tracks a distance-bounded StartMove request. remaining counts
// down by measured travel; the signed commanded speed lives in cmdLinear.
type moveGoal struct {
	remaining float64 // meters, always positive
	lastTick  time.Time
}

// Controller coordinates both wheels. UpdateCmdVel may be called from a
// different goroutine than UpdateMotors; one mutex covers all state.
type Controller struct {
	left    motor.Motor
	right   motor.Motor
	model   kinematics.Model
	timeout time.Duration
	clock   timeutil.Clock

	mu          sync.Mutex
	cmdLinear   float64
	cmdAngular  float64
	cmdAt       time.Time
	timedOut    bool
	stopped     bool
	estop       bool
	estopSource uint8
	goal        *moveGoal
}

// New builds a Controller over the two wheel motors.
func New(cfg Config) (*Controller, error) {
	if cfg.Left == nil || cfg.Right == nil {
		return nil, errors.New("drivetrain: both motors are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	return &Controller{
		left:    cfg.Left,
		right:   cfg.Right,
		model:   cfg.Model,
		timeout: cfg.CommandTimeout,
		clock:   cfg.Clock,
		stopped: true,
	}, nil
}

// UpdateCmdVel stores a fresh body-frame velocity command and restarts the
// timeout window. It does not touch the motors; UpdateMotors applies it on
// the next control tick. Returns ErrEstopLatched while the latch is set.
func (c *Controller) UpdateCmdVel(linear, angular float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.estop {
		return ErrEstopLatched
	}
	c.cmdLinear = linear
	c.cmdAngular = angular
	c.cmdAt = c.clock.Now()
	c.timedOut = false
	c.goal = nil
	return nil
}

// StartMove begins a distance-bounded straight move at the given speed and
// returns immediately. UpdateMotors advances the goal each tick by the
// travel the encoders actually measured, and stops once that covers the
// distance, so a stalled wheel cannot "complete" a move on schedule. A
// negative distance moves backwards.
func (c *Controller) StartMove(distance, speed float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.estop {
		return ErrEstopLatched
	}
	if speed <= 0 {
		return errors.New("drivetrain: move speed must be positive")
	}
	sign := 1.0
	if distance < 0 {
		sign = -1
		distance = -distance
	}
	now := c.clock.Now()
	c.goal = &moveGoal{remaining: distance, lastTick: now}
	c.cmdLinear = sign * speed
	c.cmdAngular = 0
	c.cmdAt = now
	c.timedOut = false
	return nil
}

// Moving reports whether a StartMove goal is still being driven.
func (c *Controller) Moving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.goal != nil
}

// UpdateMotors runs one control tick: enforce the command timeout, advance
// any distance goal, push wheel targets, and step both PID loops. Call it
// from the single control loop goroutine.
func (c *Controller) UpdateMotors() {
	c.mu.Lock()

	now := c.clock.Now()
	if c.estop {
		c.mu.Unlock()
		return
	}

	if !c.timedOut && c.clock.Since(c.cmdAt) > c.timeout {
		c.timedOut = true
		c.goal = nil
		c.cmdLinear = 0
		c.cmdAngular = 0
		monitoring.Logf("drivetrain: command timeout, stopping")
	}

	if g := c.goal; g != nil {
		// Advance by measured travel, not the commanded speed.
		linear, _ := c.model.BodyVelocity(
			c.left.Diagnostics().MeasuredRPM,
			c.right.Diagnostics().MeasuredRPM,
		)
		g.remaining -= math.Abs(linear) * now.Sub(g.lastTick).Seconds()
		g.lastTick = now
		if g.remaining <= 0 {
			c.goal = nil
			c.cmdLinear = 0
			c.cmdAngular = 0
		} else {
			// Keep the goal alive past the command timeout.
			c.cmdAt = now
		}
	}

	linear, angular := c.cmdLinear, c.cmdAngular
	timedOut := c.timedOut
	c.mu.Unlock()

	if linear == 0 && angular == 0 {
		c.stopWheels(timedOut)
		return
	}

	leftRPM, rightRPM := c.model.WheelRPMs(linear, angular)
	c.left.SetTargetRPM(leftRPM)
	c.right.SetTargetRPM(rightRPM)
	c.left.Step()
	c.right.Step()

	c.mu.Lock()
	c.stopped = false
	c.mu.Unlock()
}

// stopWheels zeroes both targets and, on the first call after motion,
// engages the brakes.
func (c *Controller) stopWheels(brake bool) {
	c.mu.Lock()
	first := !c.stopped
	c.stopped = true
	c.mu.Unlock()

	c.left.SetTargetRPM(0)
	c.right.SetTargetRPM(0)
	if first && brake {
		c.left.Brake()
		c.right.Brake()
	}
}

// StopMotors cancels any command or goal and actively brakes both wheels.
func (c *Controller) StopMotors() {
	c.mu.Lock()
	c.cmdLinear = 0
	c.cmdAngular = 0
	c.goal = nil
	c.mu.Unlock()

	c.left.SetTargetRPM(0)
	c.right.SetTargetRPM(0)
	c.left.Brake()
	c.right.Brake()
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// EmergencyStop brakes immediately and latches: every command is refused
// until ClearEmergencyStop. The source tag records who tripped it.
func (c *Controller) EmergencyStop(source uint8) {
	c.mu.Lock()
	c.estop = true
	c.estopSource = source
	c.mu.Unlock()

	monitoring.Logf("drivetrain: emergency stop (source %d)", source)
	c.StopMotors()
}

// ClearEmergencyStop releases the latch. Motion resumes only when a fresh
// command arrives.
func (c *Controller) ClearEmergencyStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.estop {
		return
	}
	c.estop = false
	c.estopSource = 0
	// Force the next UpdateMotors to wait for a new command.
	c.timedOut = true
	monitoring.Logf("drivetrain: emergency stop cleared")
}

// EstopLatched reports the latch state.
func (c *Controller) EstopLatched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estop
}

// Diagnostics snapshots both wheels and derives the status flag bitmask
// and the body-frame velocity estimate from measured wheel speeds.
func (c *Controller) Diagnostics() Diagnostics {
	c.mu.Lock()
	d := Diagnostics{
		CommandLinear:  c.cmdLinear,
		CommandAngular: c.cmdAngular,
		EstopSource:    c.estopSource,
	}
	if c.timedOut {
		d.Flags |= wire.FlagCommandTimeout
	}
	if c.estop {
		d.Flags |= wire.FlagEstopLatched
	}
	c.mu.Unlock()

	d.Left = c.left.Diagnostics()
	d.Right = c.right.Diagnostics()
	d.ActualLinear, d.ActualAngular = c.model.BodyVelocity(d.Left.MeasuredRPM, d.Right.MeasuredRPM)

	if d.Left.EncoderStale {
		d.Flags |= wire.FlagLeftEncoderStale
	}
	if d.Right.EncoderStale {
		d.Flags |= wire.FlagRightEncoderStale
	}
	if d.Left.Saturated {
		d.Flags |= wire.FlagLeftDutySaturated
	}
	if d.Right.Saturated {
		d.Flags |= wire.FlagRightDutySaturated
	}
	return d
}
