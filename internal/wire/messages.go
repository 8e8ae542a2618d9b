package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Payload sizes for the fixed-layout messages. Receivers must reject frames
// whose declared length differs from the size expected for their message ID.
const (
	VelocityPayloadLen      = 8
	TelemetryPayloadLen     = 48
	EmergencyStopPayloadLen = 1
	ClearEstopPayloadLen    = 4
)

// StatusFlags is the bitmask carried in telemetry frames.
type StatusFlags uint32

const (
	// FlagCommandTimeout is set while the controller is in the command
	// staleness fail-safe.
	FlagCommandTimeout StatusFlags = 1 << iota
	// FlagLeftEncoderStale / FlagRightEncoderStale report an encoder with no
	// edges for several RPM windows.
	FlagLeftEncoderStale
	FlagRightEncoderStale
	// FlagLeftDutySaturated / FlagRightDutySaturated report a duty output
	// pinned at its configured min or max.
	FlagLeftDutySaturated
	FlagRightDutySaturated
	// FlagEstopLatched is set while the emergency stop latch holds the
	// drivetrain stopped.
	FlagEstopLatched
)

// Has reports whether all bits in mask are set.
func (f StatusFlags) Has(mask StatusFlags) bool { return f&mask == mask }

// VelocityCommand is the body-frame velocity command carried by MsgVelocity.
// Units are m/s and rad/s; on the wire both are float32.
type VelocityCommand struct {
	Linear  float64
	Angular float64
}

// MarshalPayload packs the command into its 8-byte wire payload.
func (c VelocityCommand) MarshalPayload() []byte {
	p := make([]byte, VelocityPayloadLen)
	binary.BigEndian.PutUint32(p[0:], math.Float32bits(float32(c.Linear)))
	binary.BigEndian.PutUint32(p[4:], math.Float32bits(float32(c.Angular)))
	return p
}

// DecodeVelocity parses a MsgVelocity frame.
func DecodeVelocity(f Frame) (VelocityCommand, error) {
	if f.MsgID != MsgVelocity {
		return VelocityCommand{}, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrWrongMessage, f.MsgID, MsgVelocity)
	}
	if len(f.Payload) != VelocityPayloadLen {
		return VelocityCommand{}, badLength(f, VelocityPayloadLen)
	}
	return VelocityCommand{
		Linear:  float64(math.Float32frombits(binary.BigEndian.Uint32(f.Payload[0:]))),
		Angular: float64(math.Float32frombits(binary.BigEndian.Uint32(f.Payload[4:]))),
	}, nil
}

// Telemetry is the controller-to-host feedback message carried by
// MsgTelemetry: wheel speeds, battery voltage, IMU readings, the echoed
// velocity command and the status flag bitmask.
type Telemetry struct {
	LeftRPM      float64
	RightRPM     float64
	BatteryVolts float64
	AccelX       float64 // g
	AccelY       float64
	AccelZ       float64
	GyroX        float64 // deg/s
	GyroY        float64
	GyroZ        float64
	EchoLinear   float64 // m/s, last accepted command
	EchoAngular  float64 // rad/s
	Flags        StatusFlags
}

// MarshalPayload packs the telemetry into its 48-byte wire payload: eleven
// float32 fields followed by the uint32 flag word.
func (t Telemetry) MarshalPayload() []byte {
	p := make([]byte, TelemetryPayloadLen)
	fields := [...]float64{
		t.LeftRPM, t.RightRPM, t.BatteryVolts,
		t.AccelX, t.AccelY, t.AccelZ,
		t.GyroX, t.GyroY, t.GyroZ,
		t.EchoLinear, t.EchoAngular,
	}
	for i, v := range fields {
		binary.BigEndian.PutUint32(p[i*4:], math.Float32bits(float32(v)))
	}
	binary.BigEndian.PutUint32(p[44:], uint32(t.Flags))
	return p
}

// DecodeTelemetry parses a MsgTelemetry frame.
func DecodeTelemetry(f Frame) (Telemetry, error) {
	if f.MsgID != MsgTelemetry {
		return Telemetry{}, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrWrongMessage, f.MsgID, MsgTelemetry)
	}
	if len(f.Payload) != TelemetryPayloadLen {
		return Telemetry{}, badLength(f, TelemetryPayloadLen)
	}
	at := func(i int) float64 {
		return float64(math.Float32frombits(binary.BigEndian.Uint32(f.Payload[i*4:])))
	}
	return Telemetry{
		LeftRPM:      at(0),
		RightRPM:     at(1),
		BatteryVolts: at(2),
		AccelX:       at(3),
		AccelY:       at(4),
		AccelZ:       at(5),
		GyroX:        at(6),
		GyroY:        at(7),
		GyroZ:        at(8),
		EchoLinear:   at(9),
		EchoAngular:  at(10),
		Flags:        StatusFlags(binary.BigEndian.Uint32(f.Payload[44:])),
	}, nil
}

// EmergencyStop requests an immediate brake-and-latch on the controller.
// Source identifies who raised it (0 = unspecified, 1 = operator, 2 = host
// watchdog).
type EmergencyStop struct {
	Source uint8
}

// MarshalPayload packs the e-stop request.
func (e EmergencyStop) MarshalPayload() []byte {
	return []byte{e.Source}
}

// DecodeEmergencyStop parses a MsgEmergencyStop frame.
func DecodeEmergencyStop(f Frame) (EmergencyStop, error) {
	if f.MsgID != MsgEmergencyStop {
		return EmergencyStop{}, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrWrongMessage, f.MsgID, MsgEmergencyStop)
	}
	if len(f.Payload) != EmergencyStopPayloadLen {
		return EmergencyStop{}, badLength(f, EmergencyStopPayloadLen)
	}
	return EmergencyStop{Source: f.Payload[0]}, nil
}

// ClearEstop releases a latched emergency stop. RequestID is an opaque value
// from the sender used for log correlation.
type ClearEstop struct {
	RequestID uint32
}

// MarshalPayload packs the clear request.
func (c ClearEstop) MarshalPayload() []byte {
	p := make([]byte, ClearEstopPayloadLen)
	binary.BigEndian.PutUint32(p, c.RequestID)
	return p
}

// DecodeClearEstop parses a MsgClearEstop frame.
func DecodeClearEstop(f Frame) (ClearEstop, error) {
	if f.MsgID != MsgClearEstop {
		return ClearEstop{}, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrWrongMessage, f.MsgID, MsgClearEstop)
	}
	if len(f.Payload) != ClearEstopPayloadLen {
		return ClearEstop{}, badLength(f, ClearEstopPayloadLen)
	}
	return ClearEstop{RequestID: binary.BigEndian.Uint32(f.Payload)}, nil
}

func badLength(f Frame, want int) error {
	return fmt.Errorf("wire: message 0x%02x declared %d payload bytes, expected %d", f.MsgID, len(f.Payload), want)
}
