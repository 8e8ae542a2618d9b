// Package config loads the robot's tuning and hardware parameters from
// JSON. Every field is a pointer so a partial file overlays the built-in
// defaults: omitted fields keep their default, present fields override it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/encoder"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/kinematics"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/pid"
	"github.com/sunnydayw/outdoor-autonomous-bot/internal/uartlink"
)

// DefaultConfigPath is the path to the canonical robot defaults file.
const DefaultConfigPath = "config/robot.defaults.json"

// RobotConfig is the root configuration. The schema doubles as the
// payload for runtime parameter updates, so partial documents are normal.
type RobotConfig struct {
	// Wheel geometry
	WheelRadiusM     *float64 `json:"wheel_radius_m,omitempty"`
	WheelSeparationM *float64 `json:"wheel_separation_m,omitempty"`

	// Encoder params
	TicksPerRev    *int    `json:"ticks_per_rev,omitempty"`
	RPMWindow      *string `json:"rpm_window,omitempty"`       // duration string like "100ms"
	RPMMinInterval *string `json:"rpm_min_interval,omitempty"` // duration string like "5ms"

	// PID + feedforward gains
	Kp             *float64 `json:"kp,omitempty"`
	Ki             *float64 `json:"ki,omitempty"`
	Kd             *float64 `json:"kd,omitempty"`
	Kff            *float64 `json:"kff,omitempty"`
	DutyOffset     *float64 `json:"duty_offset,omitempty"`
	SlewMaxDelta   *float64 `json:"slew_max_delta,omitempty"`
	DutyMin        *float64 `json:"duty_min,omitempty"`
	DutyMax        *float64 `json:"duty_max,omitempty"`
	ErrorSaneBound *float64 `json:"error_sane_bound,omitempty"`

	// Platform limits
	MaxLinearMps    *float64 `json:"max_linear_mps,omitempty"`
	MaxAngularRadps *float64 `json:"max_angular_radps,omitempty"`

	// Loop timing
	CommandTimeout *string `json:"command_timeout,omitempty"` // duration string like "500ms"
	LoopInterval   *string `json:"loop_interval,omitempty"`   // duration string like "20ms"

	// Serial link
	SerialPath       *string `json:"serial_path,omitempty"`
	BaudRate         *int    `json:"baud_rate,omitempty"`
	Heartbeat        *string `json:"heartbeat,omitempty"`
	ReconnectBackoff *string `json:"reconnect_backoff,omitempty"`

	// Left motor direction line is mirrored on the chassis.
	InvertLeft  *bool `json:"invert_left,omitempty"`
	InvertRight *bool `json:"invert_right,omitempty"`
}

// EmptyRobotConfig returns a RobotConfig with every field nil, meaning all
// defaults.
func EmptyRobotConfig() *RobotConfig {
	return &RobotConfig{}
}

// LoadRobotConfig loads a RobotConfig from a JSON file. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadRobotConfig(path string) (*RobotConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRobotConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every set field for sanity. Nil fields are fine; they
// fall back to defaults.
func (c *RobotConfig) Validate() error {
	if c.WheelRadiusM != nil && *c.WheelRadiusM <= 0 {
		return fmt.Errorf("wheel_radius_m must be positive, got %f", *c.WheelRadiusM)
	}
	if c.WheelSeparationM != nil && *c.WheelSeparationM < 0 {
		return fmt.Errorf("wheel_separation_m must be non-negative, got %f", *c.WheelSeparationM)
	}
	if c.TicksPerRev != nil && *c.TicksPerRev <= 0 {
		return fmt.Errorf("ticks_per_rev must be positive, got %d", *c.TicksPerRev)
	}
	if c.MaxLinearMps != nil && *c.MaxLinearMps <= 0 {
		return fmt.Errorf("max_linear_mps must be positive, got %f", *c.MaxLinearMps)
	}
	if c.MaxAngularRadps != nil && *c.MaxAngularRadps <= 0 {
		return fmt.Errorf("max_angular_radps must be positive, got %f", *c.MaxAngularRadps)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	if c.DutyMin != nil && c.DutyMax != nil && *c.DutyMin >= *c.DutyMax {
		return fmt.Errorf("duty_min %f must be below duty_max %f", *c.DutyMin, *c.DutyMax)
	}

	for name, field := range map[string]*string{
		"rpm_window":        c.RPMWindow,
		"rpm_min_interval":  c.RPMMinInterval,
		"command_timeout":   c.CommandTimeout,
		"loop_interval":     c.LoopInterval,
		"heartbeat":         c.Heartbeat,
		"reconnect_backoff": c.ReconnectBackoff,
	} {
		if field == nil || *field == "" {
			continue
		}
		d, err := time.ParseDuration(*field)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *field, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	// Build the derived configs so their own validation runs too.
	if err := c.Geometry().Validate(); err != nil {
		return err
	}
	return c.PIDConfig().Validate()
}

// Geometry returns the wheel geometry with defaults applied.
func (c *RobotConfig) Geometry() kinematics.Geometry {
	g := kinematics.Geometry{
		WheelRadius:     0.03302, // 1.3 inch wheels
		WheelSeparation: 0.1143,
	}
	if c.WheelRadiusM != nil {
		g.WheelRadius = *c.WheelRadiusM
	}
	if c.WheelSeparationM != nil {
		g.WheelSeparation = *c.WheelSeparationM
	}
	return g
}

// EncoderConfig returns the encoder settings with defaults applied.
func (c *RobotConfig) EncoderConfig() encoder.Config {
	cfg := encoder.Config{}
	if c.TicksPerRev != nil {
		cfg.TicksPerRev = float64(*c.TicksPerRev)
	}
	cfg.Window = c.duration(c.RPMWindow, encoder.DefaultWindow)
	cfg.MinInterval = c.duration(c.RPMMinInterval, encoder.DefaultMinInterval)
	return cfg
}

// PIDConfig returns the wheel controller gains with defaults applied.
func (c *RobotConfig) PIDConfig() pid.Config {
	cfg := pid.DefaultConfig()
	if c.Kp != nil {
		cfg.Kp = *c.Kp
	}
	if c.Ki != nil {
		cfg.Ki = *c.Ki
	}
	if c.Kd != nil {
		cfg.Kd = *c.Kd
	}
	if c.Kff != nil {
		cfg.Kff = *c.Kff
	}
	if c.DutyOffset != nil {
		cfg.Offset = *c.DutyOffset
	}
	if c.SlewMaxDelta != nil {
		cfg.SlewMaxDelta = *c.SlewMaxDelta
	}
	if c.DutyMin != nil {
		cfg.DutyMin = *c.DutyMin
	}
	if c.DutyMax != nil {
		cfg.DutyMax = *c.DutyMax
	}
	if c.ErrorSaneBound != nil {
		cfg.ErrorSaneBound = *c.ErrorSaneBound
	}
	return cfg
}

// PortOptions returns the serial settings with defaults applied.
func (c *RobotConfig) PortOptions() uartlink.PortOptions {
	opts := uartlink.PortOptions{}
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	return opts
}

// GetSerialPath returns the serial device path or the default.
func (c *RobotConfig) GetSerialPath() string {
	if c.SerialPath == nil || *c.SerialPath == "" {
		return "/dev/ttyACM0"
	}
	return *c.SerialPath
}

// GetMaxLinear returns the linear speed limit in m/s.
func (c *RobotConfig) GetMaxLinear() float64 {
	if c.MaxLinearMps == nil {
		return 0.6
	}
	return *c.MaxLinearMps
}

// GetMaxAngular returns the angular speed limit in rad/s.
func (c *RobotConfig) GetMaxAngular() float64 {
	if c.MaxAngularRadps == nil {
		return 2.0
	}
	return *c.MaxAngularRadps
}

// GetCommandTimeout returns how long a velocity command stays valid.
func (c *RobotConfig) GetCommandTimeout() time.Duration {
	return c.duration(c.CommandTimeout, 500*time.Millisecond)
}

// GetLoopInterval returns the control loop period.
func (c *RobotConfig) GetLoopInterval() time.Duration {
	return c.duration(c.LoopInterval, 20*time.Millisecond)
}

// GetHeartbeat returns the host command resend interval.
func (c *RobotConfig) GetHeartbeat() time.Duration {
	return c.duration(c.Heartbeat, uartlink.DefaultHeartbeat)
}

// GetReconnectBackoff returns the serial reopen spacing.
func (c *RobotConfig) GetReconnectBackoff() time.Duration {
	return c.duration(c.ReconnectBackoff, uartlink.DefaultReconnectBackoff)
}

// GetInvertLeft reports whether the left direction line is mirrored.
func (c *RobotConfig) GetInvertLeft() bool {
	if c.InvertLeft == nil {
		return true // left motor is mounted mirrored
	}
	return *c.InvertLeft
}

// GetInvertRight reports whether the right direction line is mirrored.
func (c *RobotConfig) GetInvertRight() bool {
	if c.InvertRight == nil {
		return false
	}
	return *c.InvertRight
}

func (c *RobotConfig) duration(field *string, fallback time.Duration) time.Duration {
	if field == nil || *field == "" {
		return fallback
	}
	d, err := time.ParseDuration(*field)
	if err != nil {
		return fallback
	}
	return d
}
