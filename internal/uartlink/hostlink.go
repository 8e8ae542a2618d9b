package uartlink

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/monitoring"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/wire"
)

// Host-side defaults.
const (
	// DefaultMaxLinear and DefaultMaxAngular clamp outgoing commands to
	// what the platform can actually do.
	DefaultMaxLinear  = 0.6 // m/s
	DefaultMaxAngular = 2.0 // rad/s

	// DefaultHeartbeat resends the current command even when unchanged,
	// so the firmware's command timeout never trips during steady motion.
	DefaultHeartbeat = 50 * time.Millisecond

	// DefaultReconnectBackoff spaces reopen attempts after a port error.
	DefaultReconnectBackoff = 1 * time.Second

	// commandEpsilon: changes smaller than this ride the heartbeat
	// instead of generating immediate traffic.
	commandEpsilon = 1e-4

	readChunk = 256
)

// ErrNotConnected is returned by sends attempted while the port is down.
var ErrNotConnected = errors.New("uartlink: not connected")

// HostConfig assembles a HostLink.
type HostConfig struct {
	Path             string
	Options          PortOptions
	Factory          SerialPortFactory
	Clock            timeutil.Clock
	MaxLinear        float64
	MaxAngular       float64
	Heartbeat        time.Duration
	ReconnectBackoff time.Duration
}

// HostLink is the host end of the UART protocol. It clamps and streams the
// current velocity command down to the controller, polls for telemetry
// frames coming back, and reopens the port with backoff after errors.
// SetCommand may be called from any goroutine; Step runs on one loop.
type HostLink struct {
	path    string
	opts    PortOptions
	factory SerialPortFactory
	clock   timeutil.Clock

	maxLinear  float64
	maxAngular float64
	heartbeat  time.Duration
	backoff    time.Duration

	mu          sync.Mutex
	port        SerialPorter
	dec         wire.Decoder
	nextAttempt time.Time

	cmdLinear  float64
	cmdAngular float64

	sentLinear  float64
	sentAngular float64
	lastSend    time.Time

	telemetry   wire.Telemetry
	telemetryAt time.Time
	haveTelem   bool
}

// NewHostLink builds a HostLink. The port is opened lazily on the first
// Step, so construction never touches hardware.
func NewHostLink(cfg HostConfig) (*HostLink, error) {
	if cfg.Factory == nil {
		return nil, errors.New("uartlink: factory is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.MaxLinear == 0 {
		cfg.MaxLinear = DefaultMaxLinear
	}
	if cfg.MaxAngular == 0 {
		cfg.MaxAngular = DefaultMaxAngular
	}
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = DefaultReconnectBackoff
	}
	return &HostLink{
		path:       cfg.Path,
		opts:       cfg.Options,
		factory:    cfg.Factory,
		clock:      cfg.Clock,
		maxLinear:  cfg.MaxLinear,
		maxAngular: cfg.MaxAngular,
		heartbeat:  cfg.Heartbeat,
		backoff:    cfg.ReconnectBackoff,
	}, nil
}

// SetCommand stores the desired body velocity, clamped to the platform
// limits. Step decides when it actually goes on the wire.
func (l *HostLink) SetCommand(linear, angular float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmdLinear = clampAbs(linear, l.maxLinear)
	l.cmdAngular = clampAbs(angular, l.maxAngular)
}

// Command returns the clamped command currently being streamed.
func (l *HostLink) Command() (linear, angular float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmdLinear, l.cmdAngular
}

// Connected reports whether the port is currently open.
func (l *HostLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port != nil
}

// Telemetry returns the most recent telemetry frame and when it arrived.
func (l *HostLink) Telemetry() (wire.Telemetry, time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.telemetry, l.telemetryAt, l.haveTelem
}

// Step runs one link iteration: connect if needed, send the command when it
// changed or the heartbeat is due, and drain any telemetry waiting on the
// port. Call it from the host control loop.
func (l *HostLink) Step() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil && !l.connectLocked() {
		return
	}

	now := l.clock.Now()
	changed := math.Abs(l.cmdLinear-l.sentLinear) > commandEpsilon ||
		math.Abs(l.cmdAngular-l.sentAngular) > commandEpsilon
	if changed || now.Sub(l.lastSend) >= l.heartbeat {
		cmd := wire.VelocityCommand{Linear: l.cmdLinear, Angular: l.cmdAngular}
		if err := l.writeFrameLocked(wire.MsgVelocity, cmd.MarshalPayload()); err != nil {
			l.teardownLocked(err)
			return
		}
		l.sentLinear = l.cmdLinear
		l.sentAngular = l.cmdAngular
		l.lastSend = now
	}

	l.readTelemetryLocked()
}

// SendEmergencyStop pushes an estop frame immediately, bypassing the
// heartbeat cadence, and zeroes the streamed command.
func (l *HostLink) SendEmergencyStop(source uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmdLinear = 0
	l.cmdAngular = 0
	if l.port == nil {
		return ErrNotConnected
	}
	msg := wire.EmergencyStop{Source: source}
	if err := l.writeFrameLocked(wire.MsgEmergencyStop, msg.MarshalPayload()); err != nil {
		l.teardownLocked(err)
		return err
	}
	return nil
}

// SendClearEstop asks the controller to release its estop latch.
func (l *HostLink) SendClearEstop(requestID uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return ErrNotConnected
	}
	msg := wire.ClearEstop{RequestID: requestID}
	if err := l.writeFrameLocked(wire.MsgClearEstop, msg.MarshalPayload()); err != nil {
		l.teardownLocked(err)
		return err
	}
	return nil
}

// Close shuts the port down. Step will not reconnect after Close until
// called again; callers stop the loop first.
func (l *HostLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

func (l *HostLink) connectLocked() bool {
	now := l.clock.Now()
	if now.Before(l.nextAttempt) {
		return false
	}

	port, err := l.factory.Open(l.path, l.opts)
	if err != nil {
		l.nextAttempt = now.Add(l.backoff)
		monitoring.Logf("uartlink: open %s: %v (retry in %s)", l.path, err, l.backoff)
		return false
	}

	l.port = port
	l.dec = wire.Decoder{}
	// Force an immediate command frame on the fresh connection.
	l.lastSend = time.Time{}
	monitoring.Logf("uartlink: connected to %s", l.path)
	return true
}

func (l *HostLink) teardownLocked(err error) {
	monitoring.Logf("uartlink: port error: %v, reconnecting", err)
	if l.port != nil {
		l.port.Close()
		l.port = nil
	}
	l.nextAttempt = l.clock.Now().Add(l.backoff)
}

func (l *HostLink) writeFrameLocked(msgID byte, payload []byte) error {
	frame, err := wire.Encode(msgID, payload)
	if err != nil {
		return err
	}
	_, err = l.port.Write(frame)
	return err
}

// readTelemetryLocked drains whatever the port has buffered without
// blocking. The port must be opened with a read timeout.
func (l *HostLink) readTelemetryLocked() {
	buf := make([]byte, readChunk)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			l.dec.Feed(buf[:n])
		}
		if err != nil {
			l.teardownLocked(err)
			return
		}
		if n == 0 {
			break
		}
	}

	for {
		frame, ok := l.dec.Next()
		if !ok {
			break
		}
		if frame.MsgID != wire.MsgTelemetry {
			continue
		}
		telem, err := wire.DecodeTelemetry(frame)
		if err != nil {
			monitoring.Debugf("uartlink: bad telemetry frame: %v", err)
			continue
		}
		l.telemetry = telem
		l.telemetryAt = l.clock.Now()
		l.haveTelem = true
	}
}

func clampAbs(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
