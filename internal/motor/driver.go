// Package motor binds one PID controller, one quadrature encoder and one
// H-bridge channel into the per-wheel control unit the drivetrain steps.
package motor

import (
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/hal"
)

// Actuator is one wheel's output channel: a direction line pair and a PWM
// input, TB6612 style.
type Actuator interface {
	// SetDirection selects forward or reverse on the direction pins.
	SetDirection(forward bool) error

	// SetDuty sets the PWM duty in 16-bit counts.
	SetDuty(counts uint16) error

	// Brake shorts the bridge for an active stop and zeroes the duty.
	Brake() error
}

// HBridgeChannel drives one channel of a dual H-bridge motor driver via two
// direction pins and a PWM pin.
type HBridgeChannel struct {
	In1 hal.DigitalPin
	In2 hal.DigitalPin
	PWM hal.PWMPin
}

// SetDirection drives IN1/IN2 as complements: IN1 high for forward.
func (c *HBridgeChannel) SetDirection(forward bool) error {
	if err := c.In1.Set(forward); err != nil {
		return err
	}
	return c.In2.Set(!forward)
}

// SetDuty forwards the duty to the PWM pin.
func (c *HBridgeChannel) SetDuty(counts uint16) error {
	return c.PWM.SetDuty(counts)
}

// Brake engages short-brake: both inputs high, duty zero.
func (c *HBridgeChannel) Brake() error {
	if err := c.In1.Set(true); err != nil {
		return err
	}
	if err := c.In2.Set(true); err != nil {
		return err
	}
	return c.PWM.SetDuty(0)
}
