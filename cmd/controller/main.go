// Command controller runs the motor-controller control core against a
// serial device. Hardware access goes through the hal interfaces; without
// a real GPIO binding it drives a simulated plant, which makes the binary
// a bench emulator for exercising the host service end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/config"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/drivetrain"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/encoder"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/hal"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/kinematics"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/monitoring"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/motor"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/pid"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/uartlink"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to robot config JSON (optional)")
	serialPath  = flag.String("serial", "", "Serial device path (overrides config)")
	telemRate   = flag.Duration("telemetry-interval", 50*time.Millisecond, "Telemetry send interval")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// simWheel wires one wheel's mock pins to a first-order plant that feeds
// encoder edges back at the speed the applied duty would produce, phased
// for whichever direction the bridge is being driven in.
type simWheel struct {
	in1    *hal.MockDigitalPin
	pwm    *hal.MockPWMPin
	enc    *encoder.Encoder
	cfg    pid.Config
	invert bool
	rem    float64 // fractional ticks carried between steps
}

func (w *simWheel) step(dt time.Duration, ticksPerRev float64) {
	duty := float64(w.pwm.Duty())
	rpm := 0.0
	if duty > 0 {
		// Invert the feedforward model: steady-state speed for a duty.
		rpm = (duty - w.cfg.Offset) / w.cfg.Kff
		if rpm < 0 {
			rpm = 0
		}
	}
	// IN1 carries the (possibly mirrored) direction line; undo the mirror
	// to recover the wheel's physical direction.
	forward := w.in1.Level() != w.invert
	w.rem += rpm * ticksPerRev * dt.Minutes()
	for w.rem >= 1 {
		w.enc.Edge(true, forward)
		w.rem--
	}
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("controller %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		os.Exit(0)
	}
	monitoring.SetVerbose(*verbose)

	cfg := config.EmptyRobotConfig()
	if *configPath != "" {
		loaded, err := config.LoadRobotConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	path := cfg.GetSerialPath()
	if *serialPath != "" {
		path = *serialPath
	}

	port, err := uartlink.RealSerialFactory{}.Open(path, cfg.PortOptions())
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	defer port.Close()

	model, err := kinematics.New(cfg.Geometry())
	if err != nil {
		log.Fatalf("geometry: %v", err)
	}

	clock := timeutil.RealClock{}
	encCfg := cfg.EncoderConfig()
	pidCfg := cfg.PIDConfig()

	buildWheel := func(name string, invert bool) (*motor.Wheel, *simWheel) {
		enc := encoder.New(encCfg, clock)
		ctrl, err := pid.New(pidCfg)
		if err != nil {
			log.Fatalf("pid config: %v", err)
		}
		in1 := &hal.MockDigitalPin{}
		pwm := &hal.MockPWMPin{}
		wheel, err := motor.NewWheel(motor.Config{
			Name: name,
			Actuator: &motor.HBridgeChannel{
				In1: in1,
				In2: &hal.MockDigitalPin{},
				PWM: pwm,
			},
			Encoder:    enc,
			Controller: ctrl,
			Invert:     invert,
			Clock:      clock,
		})
		if err != nil {
			log.Fatalf("build %s wheel: %v", name, err)
		}
		return wheel, &simWheel{in1: in1, pwm: pwm, enc: enc, cfg: pidCfg, invert: invert}
	}

	leftWheel, leftSim := buildWheel("left", cfg.GetInvertLeft())
	rightWheel, rightSim := buildWheel("right", cfg.GetInvertRight())

	drive, err := drivetrain.New(drivetrain.Config{
		Left:           leftWheel,
		Right:          rightWheel,
		Model:          model,
		CommandTimeout: cfg.GetCommandTimeout(),
		Clock:          clock,
	})
	if err != nil {
		log.Fatalf("drivetrain: %v", err)
	}

	link, err := uartlink.NewControllerLink(uartlink.ControllerConfig{
		Port:    port,
		Drive:   drive,
		Battery: &hal.MockBattery{Volts: 12.0},
	})
	if err != nil {
		log.Fatalf("link: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop := cfg.GetLoopInterval()
	ticksPerRev := encCfg.TicksPerRev
	if ticksPerRev == 0 {
		ticksPerRev = encoder.DefaultTicksPerRev
	}

	monitoring.Logf("controller: serving %s, loop %s", path, loop)

	ticker := time.NewTicker(loop)
	defer ticker.Stop()
	lastTelem := time.Now()

	for {
		select {
		case <-ctx.Done():
			drive.StopMotors()
			monitoring.Logf("controller: shut down")
			return
		case now := <-ticker.C:
			if err := link.Poll(); err != nil {
				monitoring.Logf("controller: poll: %v", err)
			}
			leftSim.step(loop, ticksPerRev)
			rightSim.step(loop, ticksPerRev)
			drive.UpdateMotors()
			if now.Sub(lastTelem) >= *telemRate {
				if err := link.SendTelemetry(); err != nil {
					monitoring.Logf("controller: telemetry: %v", err)
				}
				lastTelem = now
			}
		}
	}
}
