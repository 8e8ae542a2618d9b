// Package kinematics implements the pure differential-drive transforms
// between body-frame velocity (linear m/s, angular rad/s) and per-wheel
// angular speed in RPM.
//
// No clamping happens here: saturation is the actuator's job.
package kinematics

import (
	"errors"
	"fmt"
	"math"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/units"
)

// ErrInvalidGeometry reports an unusable wheel configuration.
var ErrInvalidGeometry = errors.New("kinematics: invalid geometry")

// Geometry holds the wheel constants of the base.
type Geometry struct {
	WheelRadius     float64 // m
	WheelSeparation float64 // m, centre-to-centre between the wheel contacts
}

// Validate rejects geometries whose wheel circumference would be zero or
// negative. A zero separation is accepted; the inverse transform defines
// angular velocity as zero in that case.
func (g Geometry) Validate() error {
	if g.WheelRadius <= 0 {
		return fmt.Errorf("%w: wheel radius %v must be > 0", ErrInvalidGeometry, g.WheelRadius)
	}
	if g.WheelSeparation < 0 {
		return fmt.Errorf("%w: wheel separation %v must be >= 0", ErrInvalidGeometry, g.WheelSeparation)
	}
	return nil
}

// Circumference returns the wheel circumference in metres.
func (g Geometry) Circumference() float64 {
	return 2 * math.Pi * g.WheelRadius
}

// Model is a validated, ready-to-use kinematic transform. Models are
// stateless and safe for concurrent use.
type Model struct {
	circumference float64
	separation    float64
}

// New builds a Model from a Geometry, rejecting invalid configurations.
func New(g Geometry) (Model, error) {
	if err := g.Validate(); err != nil {
		return Model{}, err
	}
	return Model{circumference: g.Circumference(), separation: g.WheelSeparation}, nil
}

// WheelRPMs converts a body velocity to left/right wheel speeds:
//
//	v_l = v - ω·L/2
//	v_r = v + ω·L/2
//	rpm = v_wheel · 60 / C
func (m Model) WheelRPMs(linear, angular float64) (left, right float64) {
	vl := linear - angular*m.separation*0.5
	vr := linear + angular*m.separation*0.5
	return units.MetersPerSecondToRPM(vl, m.circumference),
		units.MetersPerSecondToRPM(vr, m.circumference)
}

// BodyVelocity is the inverse transform, used to turn measured wheel speeds
// back into an odometry estimate:
//
//	v = (v_l + v_r)/2
//	ω = (v_r - v_l)/L   (ω = 0 when L = 0)
func (m Model) BodyVelocity(leftRPM, rightRPM float64) (linear, angular float64) {
	vl := units.RPMToMetersPerSecond(leftRPM, m.circumference)
	vr := units.RPMToMetersPerSecond(rightRPM, m.circumference)
	linear = (vl + vr) / 2
	if m.separation > 0 {
		angular = (vr - vl) / m.separation
	}
	return linear, angular
}
