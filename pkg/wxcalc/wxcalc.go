// Package wxcalc contains the meteorological formulas used by the automations.
// All temperatures are in degrees Celsius and pressures in hPa.
package wxcalc

import "math"

const (
	// tGradient is the standard atmosphere temperature lapse rate in K/m.
	tGradient = 0.0065
	// qffExponent is the barometric formula exponent for the standard atmosphere.
	qffExponent = -5.255

	// Magnus formula coefficients, above and below freezing.
	magnusAWater = 7.5
	magnusBWater = 237.3
	magnusAIce   = 7.6
	magnusBIce   = 240.7

	// saturationPressure0 is the saturation vapour pressure at 0 °C in hPa.
	saturationPressure0 = 6.1078

	molarMassWater = 18.016
	gasConstant    = 8314.3
)

// RoundTo rounds n to the given number of decimal places. A small epsilon
// nudges values like 1.005 that binary floating point stores just below
// the halfway point.
func RoundTo(n float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round((n+math.Copysign(1e-12, n))*p) / p
}

// DewPoint returns the dew point for temperature t and relative humidity rh
// (percent) using the Magnus formula.
func DewPoint(t, rh float64) float64 {
	a, b := magnus(t)
	vp := rh / 100 * saturationVapourPressure(t)
	v := math.Log10(vp / saturationPressure0)
	return b * v / (a - v)
}

// AbsoluteHumidity returns the water vapour density in g/m³.
func AbsoluteHumidity(t, rh float64) float64 {
	vp := rh / 100 * saturationVapourPressure(t)
	return 100000 * molarMassWater / gasConstant * vp / (t + 273.15)
}

func saturationVapourPressure(t float64) float64 {
	a, b := magnus(t)
	return saturationPressure0 * math.Pow(10, a*t/(b+t))
}

func magnus(t float64) (a, b float64) {
	if t >= 0 {
		return magnusAWater, magnusBWater
	}
	return magnusAIce, magnusBIce
}

// QFF reduces the station pressure qfe to sea level for a station at the given
// altitude (metres), using the measured air temperature t.
func QFF(qfe, t, altitude float64) float64 {
	tk := t + 273.15
	return qfe * math.Pow(tk/(tk+altitude*tGradient), qffExponent)
}

// BatteryIndicator maps a battery voltage onto an icon index using descending
// thresholds: 0 when above the first threshold, 1 when between the first and
// the second, and so on.
func BatteryIndicator(voltage float64, thresholds []float64) int {
	idx := 0
	for _, th := range thresholds {
		if voltage > th {
			break
		}
		idx++
	}
	return idx
}
