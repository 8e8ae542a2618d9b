package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/arbiter"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/uartlink"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/wire"
)

type serviceFixture struct {
	svc   *Service
	port  *uartlink.MockSerialPort
	clock *timeutil.MockClock
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(6000, 0))
	port := &uartlink.MockSerialPort{}
	link, err := uartlink.NewHostLink(uartlink.HostConfig{
		Path:    "/dev/ttyACM0",
		Factory: uartlink.NewMockSerialFactory(port),
		Clock:   clock,
	})
	require.NoError(t, err)

	svc, err := New(Config{Link: link, Clock: clock})
	require.NoError(t, err)
	return &serviceFixture{svc: svc, port: port, clock: clock}
}

func sentVelocities(t *testing.T, port *uartlink.MockSerialPort) []wire.VelocityCommand {
	t.Helper()
	var dec wire.Decoder
	dec.Feed(port.Written())
	var cmds []wire.VelocityCommand
	for {
		f, ok := dec.Next()
		if !ok {
			return cmds
		}
		if f.MsgID != wire.MsgVelocity {
			continue
		}
		cmd, err := wire.DecodeVelocity(f)
		require.NoError(t, err)
		cmds = append(cmds, cmd)
	}
}

func TestNewRequiresLink(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestStepStreamsWinningCommand(t *testing.T) {
	f := newServiceFixture(t)

	f.svc.SetVelocityAuto(0.4, 0)
	f.svc.SetVelocity(0.1, 0.2)
	f.svc.Step()

	cmds := sentVelocities(t, f.port)
	require.NotEmpty(t, cmds)
	last := cmds[len(cmds)-1]
	assert.InDelta(t, 0.1, last.Linear, 1e-6, "teleop beats autonomy")
	assert.InDelta(t, 0.2, last.Angular, 1e-6)
}

func TestTeleopExpiryFallsBackToAuto(t *testing.T) {
	f := newServiceFixture(t)

	f.svc.SetVelocity(0.1, 0)
	f.svc.SetVelocityAuto(0.4, 0)
	f.svc.Step()
	f.port.ResetWritten()

	f.clock.Advance(arbiter.TeleopTimeout + 10*time.Millisecond)
	f.svc.Step()

	cmds := sentVelocities(t, f.port)
	require.NotEmpty(t, cmds)
	assert.InDelta(t, 0.4, cmds[len(cmds)-1].Linear, 1e-6)

	cmd, src := f.svc.CurrentCommand()
	assert.Equal(t, arbiter.SourceAuto, src)
	assert.InDelta(t, 0.4, cmd.Linear, 1e-6)
}

func TestStepPublishesTelemetry(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.Step() // connect

	sub := f.svc.Subscribe()
	defer f.svc.Unsubscribe(sub)

	want := wire.Telemetry{LeftRPM: 120.5, BatteryVolts: 11.25}
	frame, err := wire.Encode(wire.MsgTelemetry, want.MarshalPayload())
	require.NoError(t, err)
	f.port.FeedRead(frame)

	f.clock.Advance(10 * time.Millisecond)
	f.svc.Step()

	got := <-sub.C
	assert.Equal(t, want, got.Telemetry)

	// The same frame is not republished on the next tick.
	f.clock.Advance(10 * time.Millisecond)
	f.svc.Step()
	select {
	case extra := <-sub.C:
		t.Fatalf("unexpected republish: %+v", extra)
	default:
	}
}

func TestStatusSnapshot(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.SetVelocity(0.1, 0)
	f.svc.Step()

	st := f.svc.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, arbiter.SourceTeleop, st.Arbiter.Mode)
	assert.False(t, st.HaveTelem)
}

func TestEmergencyStopGoesStraightToWire(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.Step() // connect
	f.port.ResetWritten()

	require.NoError(t, f.svc.EmergencyStop())

	var dec wire.Decoder
	dec.Feed(f.port.Written())
	frame, ok := dec.Next()
	require.True(t, ok)
	assert.Equal(t, byte(wire.MsgEmergencyStop), frame.MsgID)
}

func TestRunStopsOnCancel(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(6000, 0))
	port := &uartlink.MockSerialPort{}
	link, err := uartlink.NewHostLink(uartlink.HostConfig{
		Path:    "/dev/ttyACM0",
		Factory: uartlink.NewMockSerialFactory(port),
		Clock:   clock,
	})
	require.NoError(t, err)
	svc, err := New(Config{Link: link, Clock: clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
