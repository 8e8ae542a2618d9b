package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestMockClockAdvance(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	assert.Equal(t, base, c.Now())

	c.Advance(250 * time.Millisecond)
	assert.Equal(t, base.Add(250*time.Millisecond), c.Now())
	assert.Equal(t, 250*time.Millisecond, c.Since(base))
}

func TestMockClockSleepRecords(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	c.Sleep(20 * time.Millisecond)
	c.Sleep(5 * time.Millisecond)
	assert.Equal(t, []time.Duration{20 * time.Millisecond, 5 * time.Millisecond}, c.Sleeps())
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(100, 0))
	tk := c.NewTicker(10 * time.Millisecond)

	select {
	case <-tk.C():
		t.Fatal("ticker fired before any time passed")
	default:
	}

	c.Advance(10 * time.Millisecond)
	select {
	case <-tk.C():
	default:
		t.Fatal("ticker did not fire after one period")
	}
}

func TestMockTickerStopped(t *testing.T) {
	c := NewMockClock(time.Unix(100, 0))
	tk := c.NewTicker(time.Millisecond)
	tk.Stop()
	c.Advance(10 * time.Millisecond)

	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTickerDropsWhenSlow(t *testing.T) {
	c := NewMockClock(time.Unix(100, 0))
	tk := c.NewTicker(time.Millisecond)

	// Many periods elapse with nobody draining; the buffered channel holds
	// one tick and the rest are dropped, matching time.Ticker.
	c.Advance(50 * time.Millisecond)

	count := 0
	for {
		select {
		case <-tk.C():
			count++
			continue
		default:
		}
		break
	}
	require.Equal(t, 1, count)
}
