package motor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/encoder"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/hal"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/pid"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
)

type wheelFixture struct {
	wheel *Wheel
	clock *timeutil.MockClock
	in1   *hal.MockDigitalPin
	in2   *hal.MockDigitalPin
	pwm   *hal.MockPWMPin
	enc   *encoder.Encoder
}

func newWheelFixture(t *testing.T, invert bool) *wheelFixture {
	t.Helper()

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	in1 := &hal.MockDigitalPin{}
	in2 := &hal.MockDigitalPin{}
	pwm := &hal.MockPWMPin{}
	enc := encoder.New(encoder.Config{TicksPerRev: 100}, clock)
	ctrl, err := pid.New(pid.DefaultConfig())
	require.NoError(t, err)

	wheel, err := NewWheel(Config{
		Name:       "left",
		Actuator:   &HBridgeChannel{In1: in1, In2: in2, PWM: pwm},
		Encoder:    enc,
		Controller: ctrl,
		Invert:     invert,
		Clock:      clock,
	})
	require.NoError(t, err)

	return &wheelFixture{wheel: wheel, clock: clock, in1: in1, in2: in2, pwm: pwm, enc: enc}
}

// spin feeds the encoder enough edges over dt for the given tick count.
func (f *wheelFixture) spin(ticks int, dt time.Duration) {
	per := dt / time.Duration(ticks)
	for i := 0; i < ticks; i++ {
		f.clock.Advance(per)
		f.enc.Edge(true, true) // forward: A==B
	}
}

func TestNewWheelRequiresParts(t *testing.T) {
	_, err := NewWheel(Config{})
	require.Error(t, err)
}

func TestSetTargetRPMDirection(t *testing.T) {
	f := newWheelFixture(t, false)

	f.wheel.SetTargetRPM(120)
	assert.True(t, f.in1.Level())
	assert.False(t, f.in2.Level())

	f.wheel.SetTargetRPM(-120)
	assert.False(t, f.in1.Level())
	assert.True(t, f.in2.Level())

	assert.Equal(t, 120.0, f.wheel.TargetRPM(), "target is a magnitude")
}

func TestSetTargetRPMInverted(t *testing.T) {
	f := newWheelFixture(t, true)

	f.wheel.SetTargetRPM(120)
	assert.False(t, f.in1.Level())
	assert.True(t, f.in2.Level())
}

func TestStepDrivesDuty(t *testing.T) {
	f := newWheelFixture(t, false)

	f.wheel.SetTargetRPM(100)
	f.spin(10, 50*time.Millisecond)
	f.wheel.Step()

	duty := f.pwm.Duty()
	assert.Greater(t, duty, uint16(0))
	assert.GreaterOrEqual(t, duty, uint16(pid.DefaultDutyMin))
	assert.LessOrEqual(t, duty, uint16(pid.DefaultDutyMax))
}

func TestStepRateGated(t *testing.T) {
	f := newWheelFixture(t, false)

	f.wheel.SetTargetRPM(100)
	f.clock.Advance(1 * time.Millisecond)
	f.wheel.Step()

	assert.Empty(t, f.pwm.History(), "calls inside the minimum loop period write nothing")
}

func TestStepIdleWithZeroTarget(t *testing.T) {
	f := newWheelFixture(t, false)

	f.clock.Advance(50 * time.Millisecond)
	f.wheel.Step()
	assert.Empty(t, f.pwm.History())
}

func TestZeroTargetStopsAndResets(t *testing.T) {
	f := newWheelFixture(t, false)

	f.wheel.SetTargetRPM(100)
	f.spin(10, 50*time.Millisecond)
	f.wheel.Step()
	require.NotEmpty(t, f.pwm.History())

	f.wheel.SetTargetRPM(0)

	assert.Equal(t, uint16(0), f.pwm.Duty())
	assert.Equal(t, int64(0), f.enc.Ticks(), "stop clears the encoder window")
	d := f.wheel.Diagnostics()
	assert.Zero(t, d.Integral)
	assert.Zero(t, d.LastError)
}

func TestBrakeShortsBridge(t *testing.T) {
	f := newWheelFixture(t, false)

	f.wheel.Brake()
	assert.True(t, f.in1.Level())
	assert.True(t, f.in2.Level())
	assert.Equal(t, uint16(0), f.pwm.Duty())
}

func TestDiagnosticsSnapshot(t *testing.T) {
	f := newWheelFixture(t, false)

	f.wheel.SetTargetRPM(100)
	f.spin(10, 50*time.Millisecond)
	f.wheel.Step()

	d := f.wheel.Diagnostics()
	assert.Equal(t, 100.0, d.TargetRPM)
	assert.Greater(t, d.MeasuredRPM, 0.0)
	assert.Greater(t, d.LastDuty, 0.0)
	assert.Zero(t, d.IOErrors)
}

func TestDiagnosticsEncoderStale(t *testing.T) {
	f := newWheelFixture(t, false)

	f.wheel.SetTargetRPM(100)
	f.clock.Advance(time.Second)
	assert.True(t, f.wheel.Diagnostics().EncoderStale)

	// Staleness only matters while a target is set.
	f.wheel.SetTargetRPM(0)
	assert.False(t, f.wheel.Diagnostics().EncoderStale)
}

func TestIOErrorsCounted(t *testing.T) {
	f := newWheelFixture(t, false)
	f.pwm.Err = assert.AnError

	f.wheel.SetTargetRPM(100)
	f.spin(10, 50*time.Millisecond)
	f.wheel.Step()

	assert.Equal(t, uint64(1), f.wheel.Diagnostics().IOErrors)
}
