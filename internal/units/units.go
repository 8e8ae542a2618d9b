// Package units provides the unit conversions shared across the drive stack.
// Internally everything is SI (metres, seconds, radians); wheel speeds cross
// the motor boundary as RPM because that is what encoders and PID gains are
// calibrated in.
package units

// MetersPerInch converts imperial wheel datasheet dimensions to SI.
const MetersPerInch = 0.0254

// InchesToMeters converts a length in inches to metres.
func InchesToMeters(in float64) float64 { return in * MetersPerInch }

// RPMToMetersPerSecond converts a wheel angular speed in revolutions per
// minute to rim linear speed, given the wheel circumference in metres.
func RPMToMetersPerSecond(rpm, circumference float64) float64 {
	return rpm * circumference / 60.0
}

// MetersPerSecondToRPM converts a rim linear speed to revolutions per
// minute, given the wheel circumference in metres.
func MetersPerSecondToRPM(mps, circumference float64) float64 {
	return mps * 60.0 / circumference
}

// MillivoltsToVolts converts an ADC battery reading in millivolts to volts.
func MillivoltsToVolts(mv float64) float64 { return mv / 1000.0 }

// DutyFraction expresses a 16-bit PWM duty count as a 0..1 fraction of full
// scale. Used for diagnostics output only; control paths keep raw counts.
func DutyFraction(counts, fullScale float64) float64 {
	if fullScale <= 0 {
		return 0
	}
	return counts / fullScale
}
