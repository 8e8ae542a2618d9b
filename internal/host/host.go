// Package host runs the host-side control service: it arbitrates velocity
// commands from teleop and autonomy, streams the winner to the motor
// controller over the UART link, and fans returned telemetry out to
// subscribers.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/arbiter"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/telemetry"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/uartlink"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/wire"
)

// DefaultLoopInterval is the host control loop period.
const DefaultLoopInterval = 20 * time.Millisecond

// Config assembles a Service.
type Config struct {
	Link         *uartlink.HostLink
	Clock        timeutil.Clock
	LoopInterval time.Duration
}

// Status is the service snapshot served to UIs and debug endpoints.
type Status struct {
	Arbiter     arbiter.Status
	Connected   bool
	Telemetry   wire.Telemetry
	TelemetryAt time.Time
	HaveTelem   bool
}

// Service owns the host control loop. Command setters are safe to call
// from any goroutine; Run occupies one.
type Service struct {
	arb   *arbiter.Arbiter
	link  *uartlink.HostLink
	hub   *telemetry.Hub
	clock timeutil.Clock
	loop  time.Duration

	lastPublished time.Time
}

// New builds a Service around an existing link.
func New(cfg Config) (*Service, error) {
	if cfg.Link == nil {
		return nil, errors.New("host: link is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.LoopInterval == 0 {
		cfg.LoopInterval = DefaultLoopInterval
	}
	return &Service{
		arb:   arbiter.New(cfg.Clock),
		link:  cfg.Link,
		hub:   telemetry.NewHub(),
		clock: cfg.Clock,
		loop:  cfg.LoopInterval,
	}, nil
}

// SetVelocity records a teleop command.
func (s *Service) SetVelocity(linear, angular float64) {
	s.arb.UpdateSource(arbiter.SourceTeleop, arbiter.Command{Linear: linear, Angular: angular})
}

// SetVelocityAuto records an autonomy command.
func (s *Service) SetVelocityAuto(linear, angular float64) {
	s.arb.UpdateSource(arbiter.SourceAuto, arbiter.Command{Linear: linear, Angular: angular})
}

// CurrentCommand returns the winning command and its source.
func (s *Service) CurrentCommand() (arbiter.Command, arbiter.Source) {
	return s.arb.Current()
}

// EmergencyStop pushes an estop straight to the controller.
func (s *Service) EmergencyStop() error {
	return s.link.SendEmergencyStop(uint8(arbiter.SourceTeleop))
}

// ClearEmergencyStop asks the controller to release its latch.
func (s *Service) ClearEmergencyStop(requestID uint32) error {
	return s.link.SendClearEstop(requestID)
}

// Subscribe returns a live telemetry feed.
func (s *Service) Subscribe() telemetry.Subscription {
	return s.hub.Subscribe(0)
}

// Unsubscribe closes a telemetry feed.
func (s *Service) Unsubscribe(sub telemetry.Subscription) {
	s.hub.Unsubscribe(sub.ID)
}

// Status reports the current arbiter, link and telemetry state.
func (s *Service) Status() Status {
	telem, at, ok := s.link.Telemetry()
	return Status{
		Arbiter:     s.arb.StatusSnapshot(),
		Connected:   s.link.Connected(),
		Telemetry:   telem,
		TelemetryAt: at,
		HaveTelem:   ok,
	}
}

// Step runs one loop iteration: push the arbiter's winner into the link,
// drive the link, and publish any fresh telemetry.
func (s *Service) Step() {
	cmd, _ := s.arb.Current()
	s.link.SetCommand(cmd.Linear, cmd.Angular)
	s.link.Step()

	telem, at, ok := s.link.Telemetry()
	if ok && at.After(s.lastPublished) {
		s.hub.Publish(telemetry.Sample{At: at, Telemetry: telem})
		s.lastPublished = at
	}
}

// Run drives the control loop at a fixed rate until the context is
// cancelled, then closes the link.
func (s *Service) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.loop)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.link.Close()
			return ctx.Err()
		case <-ticker.C():
			s.Step()
		}
	}
}
