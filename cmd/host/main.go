// Command host runs the host-side drive service: it arbitrates teleop and
// autonomy velocity commands and streams the winner to the motor
// controller over UART, logging returned telemetry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/config"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/host"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/monitoring"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/uartlink"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to robot config JSON (optional)")
	serialPath  = flag.String("serial", "", "Serial device path (overrides config)")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	logTelem    = flag.Bool("log-telemetry", false, "Log every telemetry frame as JSON")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("host %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
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

	link, err := uartlink.NewHostLink(uartlink.HostConfig{
		Path:             path,
		Options:          cfg.PortOptions(),
		Factory:          uartlink.RealSerialFactory{},
		MaxLinear:        cfg.GetMaxLinear(),
		MaxAngular:       cfg.GetMaxAngular(),
		Heartbeat:        cfg.GetHeartbeat(),
		ReconnectBackoff: cfg.GetReconnectBackoff(),
	})
	if err != nil {
		log.Fatalf("create link: %v", err)
	}

	svc, err := host.New(host.Config{
		Link:         link,
		LoopInterval: cfg.GetLoopInterval(),
	})
	if err != nil {
		log.Fatalf("create service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *logTelem {
		go logTelemetry(ctx, svc)
	}

	monitoring.Logf("host: driving %s, loop %s", path, cfg.GetLoopInterval())
	if err := svc.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("run: %v", err)
	}
	monitoring.Logf("host: shut down")
}

func logTelemetry(ctx context.Context, svc *host.Service) {
	sub := svc.Subscribe()
	defer svc.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-sub.C:
			if !ok {
				return
			}
			line, err := json.Marshal(struct {
				At       string  `json:"at"`
				LeftRPM  float64 `json:"left_rpm"`
				RightRPM float64 `json:"right_rpm"`
				Battery  float64 `json:"battery_v"`
				Flags    uint32  `json:"flags"`
			}{
				At:       sample.At.Format(time.RFC3339Nano),
				LeftRPM:  sample.Telemetry.LeftRPM,
				RightRPM: sample.Telemetry.RightRPM,
				Battery:  sample.Telemetry.BatteryVolts,
				Flags:    uint32(sample.Telemetry.Flags),
			})
			if err != nil {
				continue
			}
			monitoring.Logf("telemetry %s", line)
		}
	}
}
