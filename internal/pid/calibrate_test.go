package pid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitFeedforwardTwoPoint(t *testing.T) {
	// The classic field procedure: hold two speeds, read the settled duty.
	kff, offset, err := FitFeedforward([]CalibrationSample{
		{RPM: 40, Duty: 8389},
		{RPM: 100, Duty: 18289},
	})
	require.NoError(t, err)
	// Kff = (18289-8389)/(100-40) = 165, offset = 8389 - 165*40 = 1789.
	assert.InDelta(t, 165, kff, 1e-6)
	assert.InDelta(t, 1789, offset, 1e-6)
}

func TestFitFeedforwardOverdetermined(t *testing.T) {
	// Noiseless samples on the line duty = 150*rpm + 2000.
	var samples []CalibrationSample
	for rpm := 20.0; rpm <= 180; rpm += 20 {
		samples = append(samples, CalibrationSample{RPM: rpm, Duty: 150*rpm + 2000})
	}
	kff, offset, err := FitFeedforward(samples)
	require.NoError(t, err)
	assert.InDelta(t, 150, kff, 1e-6)
	assert.InDelta(t, 2000, offset, 1e-6)
}

func TestFitFeedforwardRejectsDegenerateInput(t *testing.T) {
	_, _, err := FitFeedforward(nil)
	assert.ErrorIs(t, err, ErrCalibration)

	_, _, err = FitFeedforward([]CalibrationSample{{RPM: 50, Duty: 1}})
	assert.ErrorIs(t, err, ErrCalibration)

	_, _, err = FitFeedforward([]CalibrationSample{
		{RPM: 50, Duty: 1}, {RPM: 50, Duty: 2},
	})
	assert.ErrorIs(t, err, ErrCalibration)
}
