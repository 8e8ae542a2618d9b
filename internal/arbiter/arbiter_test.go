package arbiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sunnydayw/outdoor-autonomous-bot/internal/timeutil"
)

func newTestArbiter() (*Arbiter, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Unix(3000, 0))
	return New(clock), clock
}

func TestIdleByDefault(t *testing.T) {
	a, _ := newTestArbiter()

	cmd, src := a.Current()
	assert.Equal(t, SourceIdle, src)
	assert.Equal(t, Command{}, cmd)
}

func TestTeleopWinsOverAuto(t *testing.T) {
	a, _ := newTestArbiter()

	a.UpdateSource(SourceAuto, Command{Linear: 0.4})
	a.UpdateSource(SourceTeleop, Command{Linear: 0.1})

	cmd, src := a.Current()
	assert.Equal(t, SourceTeleop, src)
	assert.Equal(t, 0.1, cmd.Linear)
}

func TestPriorityDecaysWithAge(t *testing.T) {
	a, clock := newTestArbiter()

	// Teleop and auto command at t=0; teleop wins while fresh, yields to
	// auto once past its shorter timeout, and everything is idle after
	// auto expires too.
	a.UpdateSource(SourceTeleop, Command{Linear: 0.1})
	a.UpdateSource(SourceAuto, Command{Linear: 0.4})

	clock.Advance(400 * time.Millisecond)
	_, src := a.Current()
	assert.Equal(t, SourceTeleop, src, "t=0.4s")

	clock.Advance(200 * time.Millisecond)
	cmd, src := a.Current()
	assert.Equal(t, SourceAuto, src, "t=0.6s")
	assert.Equal(t, 0.4, cmd.Linear)

	clock.Advance(500 * time.Millisecond)
	cmd, src = a.Current()
	assert.Equal(t, SourceIdle, src, "t=1.1s")
	assert.Equal(t, Command{}, cmd)
}

func TestFreshCommandReclaims(t *testing.T) {
	a, clock := newTestArbiter()

	a.UpdateSource(SourceAuto, Command{Linear: 0.4})
	clock.Advance(600 * time.Millisecond)
	a.UpdateSource(SourceTeleop, Command{Angular: 1.0})

	cmd, src := a.Current()
	assert.Equal(t, SourceTeleop, src)
	assert.Equal(t, 1.0, cmd.Angular)
}

func TestIdleSourceIgnored(t *testing.T) {
	a, _ := newTestArbiter()

	a.UpdateSource(SourceIdle, Command{Linear: 9})
	_, src := a.Current()
	assert.Equal(t, SourceIdle, src)

	st := a.StatusSnapshot()
	assert.Equal(t, Command{}, st.Teleop.Command)
	assert.Equal(t, Command{}, st.Auto.Command)
}

func TestStatusSnapshot(t *testing.T) {
	a, clock := newTestArbiter()

	a.UpdateSource(SourceAuto, Command{Linear: 0.4})
	clock.Advance(100 * time.Millisecond)
	a.UpdateSource(SourceTeleop, Command{Linear: 0.1})
	clock.Advance(50 * time.Millisecond)

	st := a.StatusSnapshot()
	assert.Equal(t, SourceTeleop, st.Mode)
	assert.True(t, st.Teleop.Active)
	assert.True(t, st.Auto.Active, "auto is fresh even while teleop holds the mode")
	assert.Equal(t, 50*time.Millisecond, st.Teleop.Age)
	assert.Equal(t, 150*time.Millisecond, st.Auto.Age)
}

func TestActiveTracksFreshnessNotMode(t *testing.T) {
	a, clock := newTestArbiter()

	// Both sources command at t=0; teleop wins the mode throughout its
	// freshness window, but auto stays active until its own timeout.
	a.UpdateSource(SourceAuto, Command{Linear: 0.4})
	a.UpdateSource(SourceTeleop, Command{Linear: 0.1})

	clock.Advance(100 * time.Millisecond)
	st := a.StatusSnapshot()
	assert.Equal(t, SourceTeleop, st.Mode)
	assert.True(t, st.Teleop.Active)
	assert.True(t, st.Auto.Active)

	// Past the teleop timeout only auto remains active, and wins.
	clock.Advance(500 * time.Millisecond)
	st = a.StatusSnapshot()
	assert.Equal(t, SourceAuto, st.Mode)
	assert.False(t, st.Teleop.Active)
	assert.True(t, st.Auto.Active)

	// Past the auto timeout nothing is active.
	clock.Advance(500 * time.Millisecond)
	st = a.StatusSnapshot()
	assert.Equal(t, SourceIdle, st.Mode)
	assert.False(t, st.Teleop.Active)
	assert.False(t, st.Auto.Active)
}

func TestStatusSnapshotNeverSeen(t *testing.T) {
	a, _ := newTestArbiter()

	st := a.StatusSnapshot()
	assert.Equal(t, SourceIdle, st.Mode)
	assert.Equal(t, time.Duration(-1), st.Teleop.Age)
	assert.Equal(t, time.Duration(-1), st.Auto.Age)
}

func TestSourceString(t *testing.T) {
	assert.Equal(t, "teleop", SourceTeleop.String())
	assert.Equal(t, "auto", SourceAuto.String())
	assert.Equal(t, "idle", SourceIdle.String())
}
