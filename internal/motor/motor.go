package motor

import (
	"errors"
	"math"
	"time"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/encoder"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/monitoring"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/pid"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
)

// DefaultMinLoopPeriod rate-gates Step so a fast outer loop cannot produce
// near-zero dt values in the control law.
const DefaultMinLoopPeriod = 5 * time.Millisecond

// Motor is the interface the drivetrain depends on. The sign of the target
// selects direction on the actuator; the control law itself works on the
// magnitude.
type Motor interface {
	SetTargetRPM(rpm float64)
	Step()
	Brake()
	Diagnostics() Diagnostics
}

// Diagnostics is the per-wheel snapshot used for telemetry and health
// checks.
type Diagnostics struct {
	TargetRPM    float64 // magnitude
	MeasuredRPM  float64 // signed
	LastError    float64
	Integral     float64
	LastDuty     float64
	Saturated    bool
	EncoderStale bool
	IOErrors     uint64
}

// Config assembles one Wheel.
type Config struct {
	Name       string
	Actuator   Actuator
	Encoder    *encoder.Encoder
	Controller *pid.Controller
	// Invert flips the direction line for mirrored physical mounting.
	Invert        bool
	MinLoopPeriod time.Duration
	Clock         timeutil.Clock
}

// Wheel is the concrete Motor: one PID+feedforward controller closing the
// loop from one encoder onto one H-bridge channel. It belongs to a single
// control loop goroutine.
type Wheel struct {
	name    string
	act     Actuator
	enc     *encoder.Encoder
	ctrl    *pid.Controller
	invert  bool
	minLoop time.Duration
	clock   timeutil.Clock

	targetRPM float64 // magnitude; direction already applied
	lastStep  time.Time
	lastDuty  float64
	ioErrors  uint64
}

// NewWheel builds a Wheel from its parts.
func NewWheel(cfg Config) (*Wheel, error) {
	if cfg.Actuator == nil || cfg.Encoder == nil || cfg.Controller == nil {
		return nil, errors.New("motor: actuator, encoder and controller are all required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.MinLoopPeriod == 0 {
		cfg.MinLoopPeriod = DefaultMinLoopPeriod
	}
	return &Wheel{
		name:     cfg.Name,
		act:      cfg.Actuator,
		enc:      cfg.Encoder,
		ctrl:     cfg.Controller,
		invert:   cfg.Invert,
		minLoop:  cfg.MinLoopPeriod,
		clock:    cfg.Clock,
		lastStep: cfg.Clock.Now(),
	}, nil
}

// SetTargetRPM applies the sign to the direction line immediately and stores
// the magnitude as the control target. A zero target forces the output to
// zero at once and resets the controller and encoder window, so no stale
// integral can kick the next start.
func (w *Wheel) SetTargetRPM(rpm float64) {
	forward := rpm >= 0
	if w.invert {
		forward = !forward
	}
	if err := w.act.SetDirection(forward); err != nil {
		w.ioErrors++
		monitoring.Logf("motor %s: set direction: %v", w.name, err)
	}

	stopping := rpm == 0 && w.targetRPM != 0
	starting := rpm != 0 && w.targetRPM == 0
	w.targetRPM = math.Abs(rpm)
	if starting {
		// Don't let idle time leak into the first loop's dt.
		w.lastStep = w.clock.Now()
	}

	if rpm == 0 {
		if err := w.act.SetDuty(0); err != nil {
			w.ioErrors++
			monitoring.Logf("motor %s: zero duty: %v", w.name, err)
		}
		if stopping {
			w.ctrl.Reset()
			w.enc.Reset()
		}
	}
}

// Step runs one control iteration: read the encoder, compute the new duty,
// write it to the actuator. Calls spaced closer than the minimum loop
// period, or with a zero target, do nothing.
func (w *Wheel) Step() {
	now := w.clock.Now()
	dt := now.Sub(w.lastStep)
	if dt < w.minLoop || w.targetRPM == 0 {
		return
	}

	current := math.Abs(w.enc.UpdateRPM())
	duty := w.ctrl.Compute(w.targetRPM, current, dt.Seconds())
	w.lastDuty = duty
	if err := w.act.SetDuty(dutyCounts(duty)); err != nil {
		w.ioErrors++
		monitoring.Logf("motor %s: set duty: %v", w.name, err)
	}
	w.lastStep = now
}

// Brake engages the hardware short-brake.
func (w *Wheel) Brake() {
	if err := w.act.Brake(); err != nil {
		w.ioErrors++
		monitoring.Logf("motor %s: brake: %v", w.name, err)
	}
}

// TargetRPM returns the current target magnitude.
func (w *Wheel) TargetRPM() float64 { return w.targetRPM }

// Diagnostics reports the wheel's controller and encoder state.
func (w *Wheel) Diagnostics() Diagnostics {
	s := w.ctrl.State()
	return Diagnostics{
		TargetRPM:    w.targetRPM,
		MeasuredRPM:  w.enc.RPM(),
		LastError:    s.LastError,
		Integral:     s.Integral,
		LastDuty:     w.lastDuty,
		Saturated:    s.Saturated,
		EncoderStale: w.targetRPM != 0 && w.enc.Stale(),
		IOErrors:     w.ioErrors,
	}
}

func dutyCounts(duty float64) uint16 {
	if duty <= 0 {
		return 0
	}
	if duty >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(math.Round(duty))
}
