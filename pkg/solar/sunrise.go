package solar

import (
	"math"
	"time"
)

// sunEventMinutes returns sunrise and sunset in minutes from midnight UTC of
// the reference day without normalising them into a single day. ok is false
// during polar day or polar night.
func sunEventMinutes(ref time.Time, latitude, longitude float64) (rise, set float64, ok bool) {
	doy := float64(ref.YearDay())
	innerAngle := (356.6 + 0.9856*doy) * (math.Pi / 180.0)
	outerAngle := (278.97 + 0.9856*doy + 1.9165*math.Sin(innerAngle)) * (math.Pi / 180.0)
	declinationRad := math.Asin(0.39785 * math.Sin(outerAngle))

	latRad := latitude * (math.Pi / 180.0)

	// cos(H) = -tan(lat) * tan(declination) with the sun on the horizon
	cosH := -math.Tan(latRad) * math.Tan(declinationRad)
	if cosH < -1.0 || cosH > 1.0 {
		return 0, 0, false
	}

	hourAngleMinutes := math.Acos(cosH) * (180.0 / math.Pi) / 15.0 * 60.0

	// 720 = 12:00 UTC; each degree of longitude east moves noon 4 minutes earlier
	solarNoonUTC := 720.0 - longitude*4.0 - equationOfTime(ref)

	return solarNoonUTC - hourAngleMinutes, solarNoonUTC + hourAngleMinutes, true
}

// SunTimes returns the sunrise and sunset of the local calendar day containing
// date. ok is false when the sun does not rise or set on that day.
func SunTimes(date time.Time, latitude, longitude float64) (sunrise, sunset time.Time, ok bool) {
	y, m, d := date.Date()
	midnightUTC := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	rise, set, ok := sunEventMinutes(midnightUTC.Add(12*time.Hour), latitude, longitude)
	if !ok {
		return time.Time{}, time.Time{}, false
	}

	sunrise = midnightUTC.Add(time.Duration(rise * float64(time.Minute))).Round(time.Second)
	sunset = midnightUTC.Add(time.Duration(set * float64(time.Minute))).Round(time.Second)
	return sunrise.In(date.Location()), sunset.In(date.Location()), true
}
