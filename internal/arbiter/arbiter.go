// Package arbiter merges velocity commands from multiple sources into one
// winner. Teleop beats autonomy, and a source whose last command is older
// than its timeout drops out of contention entirely, so the active mode is
// a pure function of command ages at read time.
package arbiter

import (
	"sync"
	"time"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
)

// Source identifies a command producer.
type Source int

const (
	SourceIdle Source = iota
	SourceAuto
	SourceTeleop
)

// String returns the source name for logs and status endpoints.
func (s Source) String() string {
	switch s {
	case SourceTeleop:
		return "teleop"
	case SourceAuto:
		return "auto"
	default:
		return "idle"
	}
}

// Timeouts per source. Teleop expires faster because a stalled joystick is
// more dangerous than a stalled planner.
const (
	TeleopTimeout = 500 * time.Millisecond
	AutoTimeout   = 1 * time.Second
)

// Command is a body-frame velocity request.
type Command struct {
	Linear  float64
	Angular float64
}

// SourceStatus describes one source in a status snapshot. Active means the
// source's last command is still inside its timeout; an active source is
// not necessarily the winner.
type SourceStatus struct {
	Command Command
	Age     time.Duration
	Active  bool
}

// Status is a point-in-time view of every source plus the winner.
type Status struct {
	Mode   Source
	Teleop SourceStatus
	Auto   SourceStatus
}

type sourceState struct {
	cmd    Command
	at     time.Time
	seen   bool
	expiry time.Duration
}

func (s *sourceState) fresh(now time.Time) bool {
	return s.seen && now.Sub(s.at) < s.expiry
}

// Arbiter holds the latest command from each source. All methods are safe
// for concurrent use.
type Arbiter struct {
	clock timeutil.Clock

	mu     sync.Mutex
	teleop sourceState
	auto   sourceState
}

// New builds an Arbiter. A nil clock means wall time.
func New(clock timeutil.Clock) *Arbiter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Arbiter{
		clock:  clock,
		teleop: sourceState{expiry: TeleopTimeout},
		auto:   sourceState{expiry: AutoTimeout},
	}
}

// UpdateSource records a command from the given source, timestamped now.
// Idle is not a real producer and is ignored.
func (a *Arbiter) UpdateSource(src Source, cmd Command) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	switch src {
	case SourceTeleop:
		a.teleop.cmd = cmd
		a.teleop.at = now
		a.teleop.seen = true
	case SourceAuto:
		a.auto.cmd = cmd
		a.auto.at = now
		a.auto.seen = true
	}
}

// Current returns the winning command and which source produced it. The
// winner is re-derived on every call, so an expired teleop command yields
// to a still-fresh autonomy command without any explicit handoff.
func (a *Arbiter) Current() (Command, Source) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	if a.teleop.fresh(now) {
		return a.teleop.cmd, SourceTeleop
	}
	if a.auto.fresh(now) {
		return a.auto.cmd, SourceAuto
	}
	return Command{}, SourceIdle
}

// StatusSnapshot reports every source's latest command, its age, and
// whether it is the active one.
func (a *Arbiter) StatusSnapshot() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()

	st := Status{Mode: SourceIdle}
	if a.teleop.fresh(now) {
		st.Mode = SourceTeleop
	} else if a.auto.fresh(now) {
		st.Mode = SourceAuto
	}

	st.Teleop = SourceStatus{
		Command: a.teleop.cmd,
		Age:     sourceAge(a.teleop, now),
		Active:  a.teleop.fresh(now),
	}
	st.Auto = SourceStatus{
		Command: a.auto.cmd,
		Age:     sourceAge(a.auto, now),
		Active:  a.auto.fresh(now),
	}
	return st
}

func sourceAge(s sourceState, now time.Time) time.Duration {
	if !s.seen {
		return -1
	}
	return now.Sub(s.at)
}
