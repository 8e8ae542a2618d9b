package uartlink

import (
	"errors"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/drivetrain"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/hal"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/monitoring"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/wire"
)

// ControllerConfig assembles a ControllerLink.
type ControllerConfig struct {
	Port    SerialPorter
	Drive   *drivetrain.Controller
	Battery hal.BatteryMonitor
	IMU     hal.IMU
}

// ControllerLink is the controller end of the UART protocol: it decodes
// incoming command frames into drivetrain calls and packs diagnostics into
// outgoing telemetry frames. Battery and IMU are optional; missing sensors
// report zero in telemetry.
type ControllerLink struct {
	port    SerialPorter
	dec     wire.Decoder
	drive   *drivetrain.Controller
	battery hal.BatteryMonitor
	imu     hal.IMU
}

// NewControllerLink builds a ControllerLink over an already-open port.
func NewControllerLink(cfg ControllerConfig) (*ControllerLink, error) {
	if cfg.Port == nil || cfg.Drive == nil {
		return nil, errors.New("uartlink: port and drivetrain are required")
	}
	return &ControllerLink{
		port:    cfg.Port,
		drive:   cfg.Drive,
		battery: cfg.Battery,
		imu:     cfg.IMU,
	}, nil
}

// Poll drains the port and dispatches every complete frame. Corrupt input
// is dropped by the decoder; a read error is returned so the caller's loop
// can decide what to do with the port.
func (l *ControllerLink) Poll() error {
	buf := make([]byte, readChunk)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			l.dec.Feed(buf[:n])
		}
		if err != nil {
			l.dispatch()
			return err
		}
		if n == 0 {
			break
		}
	}
	l.dispatch()
	return nil
}

func (l *ControllerLink) dispatch() {
	for {
		frame, ok := l.dec.Next()
		if !ok {
			return
		}
		switch frame.MsgID {
		case wire.MsgVelocity:
			cmd, err := wire.DecodeVelocity(frame)
			if err != nil {
				monitoring.Debugf("uartlink: bad velocity frame: %v", err)
				continue
			}
			if err := l.drive.UpdateCmdVel(cmd.Linear, cmd.Angular); err != nil {
				monitoring.Debugf("uartlink: command refused: %v", err)
			}
		case wire.MsgEmergencyStop:
			msg, err := wire.DecodeEmergencyStop(frame)
			if err != nil {
				monitoring.Debugf("uartlink: bad estop frame: %v", err)
				continue
			}
			l.drive.EmergencyStop(msg.Source)
		case wire.MsgClearEstop:
			if _, err := wire.DecodeClearEstop(frame); err != nil {
				monitoring.Debugf("uartlink: bad estop clear frame: %v", err)
				continue
			}
			l.drive.ClearEmergencyStop()
		}
	}
}

// SendTelemetry packs the current drivetrain, battery and IMU state into
// one telemetry frame and writes it to the port.
func (l *ControllerLink) SendTelemetry() error {
	d := l.drive.Diagnostics()

	telem := wire.Telemetry{
		LeftRPM:     d.Left.MeasuredRPM,
		RightRPM:    d.Right.MeasuredRPM,
		EchoLinear:  d.CommandLinear,
		EchoAngular: d.CommandAngular,
		Flags:       d.Flags,
	}

	if l.battery != nil {
		volts, err := l.battery.Voltage()
		if err != nil {
			monitoring.Debugf("uartlink: battery read: %v", err)
		} else {
			telem.BatteryVolts = volts
		}
	}

	if l.imu != nil {
		sample, err := l.imu.Read()
		if err != nil {
			monitoring.Debugf("uartlink: imu read: %v", err)
		} else {
			telem.AccelX = sample.AccelX
			telem.AccelY = sample.AccelY
			telem.AccelZ = sample.AccelZ
			telem.GyroX = sample.GyroX
			telem.GyroY = sample.GyroY
			telem.GyroZ = sample.GyroZ
		}
	}

	frame, err := wire.Encode(wire.MsgTelemetry, telem.MarshalPayload())
	if err != nil {
		return err
	}
	_, err = l.port.Write(frame)
	return err
}
