package uartlink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/wire"
)

// decodeFrames runs the captured port writes back through the decoder.
func decodeFrames(t *testing.T, raw []byte) []wire.Frame {
	t.Helper()
	var dec wire.Decoder
	dec.Feed(raw)
	var frames []wire.Frame
	for {
		f, ok := dec.Next()
		if !ok {
			return frames
		}
		frames = append(frames, f)
	}
}

func decodeVelocities(t *testing.T, raw []byte) []wire.VelocityCommand {
	t.Helper()
	var cmds []wire.VelocityCommand
	for _, f := range decodeFrames(t, raw) {
		if f.MsgID != wire.MsgVelocity {
			continue
		}
		cmd, err := wire.DecodeVelocity(f)
		require.NoError(t, err)
		cmds = append(cmds, cmd)
	}
	return cmds
}

func newHostFixture(t *testing.T, factory SerialPortFactory) (*HostLink, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(4000, 0))
	link, err := NewHostLink(HostConfig{
		Path:    "/dev/ttyACM0",
		Factory: factory,
		Clock:   clock,
	})
	require.NoError(t, err)
	return link, clock
}

func TestHostLinkRequiresFactory(t *testing.T) {
	_, err := NewHostLink(HostConfig{})
	require.Error(t, err)
}

func TestHostLinkFirstStepConnectsAndSends(t *testing.T) {
	port := &MockSerialPort{}
	link, _ := newHostFixture(t, NewMockSerialFactory(port))

	require.False(t, link.Connected())
	link.SetCommand(0.3, -0.5)
	link.Step()

	require.True(t, link.Connected())
	cmds := decodeVelocities(t, port.Written())
	require.Len(t, cmds, 1)
	assert.InDelta(t, 0.3, cmds[0].Linear, 1e-6)
	assert.InDelta(t, -0.5, cmds[0].Angular, 1e-6)
}

func TestHostLinkClampsCommands(t *testing.T) {
	port := &MockSerialPort{}
	link, _ := newHostFixture(t, NewMockSerialFactory(port))

	link.SetCommand(5, -9)
	linear, angular := link.Command()
	assert.Equal(t, DefaultMaxLinear, linear)
	assert.Equal(t, -DefaultMaxAngular, angular)
}

func TestHostLinkEpsilonSuppressesResend(t *testing.T) {
	port := &MockSerialPort{}
	link, clock := newHostFixture(t, NewMockSerialFactory(port))

	link.SetCommand(0.3, 0)
	link.Step()
	port.ResetWritten()

	// Sub-epsilon change inside the heartbeat window sends nothing.
	clock.Advance(10 * time.Millisecond)
	link.SetCommand(0.3+5e-5, 0)
	link.Step()
	assert.Empty(t, decodeVelocities(t, port.Written()))

	// A real change goes out immediately.
	link.SetCommand(0.4, 0)
	link.Step()
	cmds := decodeVelocities(t, port.Written())
	require.Len(t, cmds, 1)
	assert.InDelta(t, 0.4, cmds[0].Linear, 1e-6)
}

func TestHostLinkHeartbeat(t *testing.T) {
	port := &MockSerialPort{}
	link, clock := newHostFixture(t, NewMockSerialFactory(port))

	link.SetCommand(0.3, 0)
	link.Step()
	port.ResetWritten()

	clock.Advance(DefaultHeartbeat)
	link.Step()

	cmds := decodeVelocities(t, port.Written())
	require.Len(t, cmds, 1, "unchanged command resent on the heartbeat")
	assert.InDelta(t, 0.3, cmds[0].Linear, 1e-6)
}

func TestHostLinkReadsTelemetry(t *testing.T) {
	port := &MockSerialPort{}
	link, clock := newHostFixture(t, NewMockSerialFactory(port))
	link.Step()

	want := wire.Telemetry{
		LeftRPM:      120.5,
		RightRPM:     -119.25,
		BatteryVolts: 11.25,
		Flags:        wire.FlagLeftDutySaturated,
	}
	frame, err := wire.Encode(wire.MsgTelemetry, want.MarshalPayload())
	require.NoError(t, err)
	port.FeedRead(frame)

	clock.Advance(10 * time.Millisecond)
	link.Step()

	got, at, ok := link.Telemetry()
	require.True(t, ok)
	assert.Equal(t, want, got)
	assert.Equal(t, clock.Now(), at)
}

func TestHostLinkReconnectBackoff(t *testing.T) {
	port := &MockSerialPort{}
	factory := NewMockSerialFactory(port)
	factory.OpenErr = assert.AnError
	link, clock := newHostFixture(t, factory)

	link.Step()
	assert.False(t, link.Connected())
	assert.Equal(t, 1, factory.OpenCalls)

	// Inside the backoff window no reopen is attempted.
	clock.Advance(DefaultReconnectBackoff / 2)
	link.Step()
	assert.Equal(t, 1, factory.OpenCalls)

	clock.Advance(DefaultReconnectBackoff)
	link.Step()
	assert.True(t, link.Connected())
	assert.Equal(t, 2, factory.OpenCalls)
}

func TestHostLinkWriteErrorTriggersReconnect(t *testing.T) {
	first := &MockSerialPort{}
	second := &MockSerialPort{}
	factory := NewMockSerialFactory(first, second)
	link, clock := newHostFixture(t, factory)

	link.SetCommand(0.3, 0)
	first.WriteErr = assert.AnError
	link.Step()

	assert.False(t, link.Connected())
	assert.True(t, first.Closed())

	clock.Advance(DefaultReconnectBackoff + time.Millisecond)
	link.Step()

	require.True(t, link.Connected())
	cmds := decodeVelocities(t, second.Written())
	require.Len(t, cmds, 1, "command resent on the fresh connection")
	assert.InDelta(t, 0.3, cmds[0].Linear, 1e-6)
}

func TestHostLinkEmergencyStop(t *testing.T) {
	port := &MockSerialPort{}
	link, _ := newHostFixture(t, NewMockSerialFactory(port))
	link.SetCommand(0.3, 0.1)
	link.Step()
	port.ResetWritten()

	require.NoError(t, link.SendEmergencyStop(1))

	frames := decodeFrames(t, port.Written())
	require.Len(t, frames, 1)
	msg, err := wire.DecodeEmergencyStop(frames[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(1), msg.Source)

	linear, angular := link.Command()
	assert.Zero(t, linear)
	assert.Zero(t, angular)
}

func TestHostLinkEstopWhileDisconnected(t *testing.T) {
	factory := NewMockSerialFactory(&MockSerialPort{})
	link, _ := newHostFixture(t, factory)

	assert.ErrorIs(t, link.SendEmergencyStop(1), ErrNotConnected)
	assert.ErrorIs(t, link.SendClearEstop(7), ErrNotConnected)
}

func TestHostLinkClearEstop(t *testing.T) {
	port := &MockSerialPort{}
	link, _ := newHostFixture(t, NewMockSerialFactory(port))
	link.Step()
	port.ResetWritten()

	require.NoError(t, link.SendClearEstop(42))

	frames := decodeFrames(t, port.Written())
	require.Len(t, frames, 1)
	msg, err := wire.DecodeClearEstop(frames[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(42), msg.RequestID)
}

func TestHostLinkClose(t *testing.T) {
	port := &MockSerialPort{}
	link, _ := newHostFixture(t, NewMockSerialFactory(port))
	link.Step()

	require.NoError(t, link.Close())
	assert.False(t, link.Connected())
	assert.True(t, port.Closed())
}
