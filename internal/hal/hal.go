// Package hal defines the narrow hardware interfaces the control stack
// drives: GPIO direction pins, PWM outputs, encoder interrupt inputs and the
// telemetry sensors. Real implementations bind to whatever GPIO library the
// deployment uses; the in-memory mocks in this package back the tests and
// dev mode.
package hal

// DigitalPin is a writable GPIO line.
type DigitalPin interface {
	// Set drives the line high or low.
	Set(high bool) error
}

// PWMPin is a PWM output channel with 16-bit duty resolution.
type PWMPin interface {
	// SetDuty sets the duty cycle in counts of the 16-bit full scale.
	SetDuty(counts uint16) error
}

// InterruptPin is a GPIO input that reports edges. The handler runs in
// interrupt context: it must not block, lock or allocate.
type InterruptPin interface {
	// Get samples the current line level.
	Get() (bool, error)

	// SetEdgeHandler installs the callback invoked on every rising and
	// falling edge with the new line level. Installing nil removes it.
	SetEdgeHandler(func(high bool))
}

// BatteryMonitor reads the pack voltage, typically via an ADC divider.
type BatteryMonitor interface {
	Voltage() (float64, error)
}

// IMUSample is one inertial reading: acceleration in g, rotation in deg/s.
type IMUSample struct {
	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
}

// IMU reads the inertial measurement unit.
type IMU interface {
	Read() (IMUSample, error)
}
