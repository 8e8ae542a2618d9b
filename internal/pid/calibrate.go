package pid

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrCalibration reports an unusable calibration data set.
var ErrCalibration = errors.New("pid: calibration failed")

// CalibrationSample is one steady-state observation: the duty that held the
// wheel at a given RPM. Collected operationally by commanding fixed speeds
// and reading back the settled duty.
type CalibrationSample struct {
	RPM  float64
	Duty float64
}

// FitFeedforward solves duty ~= Kff*rpm + Offset by least squares over the
// given samples. Two well-separated speeds are the minimum; more samples
// tighten the fit.
func FitFeedforward(samples []CalibrationSample) (kff, offset float64, err error) {
	if len(samples) < 2 {
		return 0, 0, fmt.Errorf("%w: need at least 2 samples, got %d", ErrCalibration, len(samples))
	}

	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	spread := false
	for i, s := range samples {
		xs[i] = s.RPM
		ys[i] = s.Duty
		if i > 0 && s.RPM != samples[0].RPM {
			spread = true
		}
	}
	if !spread {
		return 0, 0, fmt.Errorf("%w: all samples at the same RPM", ErrCalibration)
	}

	offset, kff = stat.LinearRegression(xs, ys, nil, false)
	return kff, offset, nil
}
