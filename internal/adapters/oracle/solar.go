package oracle

import (
	"fmt"
	"math"
	"time"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/model"
)

// zenith angles (degrees from vertical) for each solar anchor, per the
// standard sunrise/sunset equation's civil-twilight convention: dawn
// and dusk use the civil-twilight zenith (96 degrees), sunrise/sunset
// use the standard solar-disc zenith (90.833 degrees, accounting for
// atmospheric refraction and the sun's apparent radius).
const (
	zenithSunriseSunset = 90.833
	zenithCivilTwilight = 96.0
)

// SolarCalculator approximates sunrise, sunset, civil dawn, and civil
// dusk for a given date and location using the NOAA solar position
// approximation (a standard, closed-form spherical-trigonometry
// algorithm — no network calls, no ephemeris table). It implements
// intent.SolarOracle.
type SolarCalculator struct{}

// NewSolarCalculator returns the built-in solar-time resolver.
func NewSolarCalculator() SolarCalculator {
	return SolarCalculator{}
}

// Resolve returns the local clock time of kind (offset by offsetMin
// minutes) on date, at the given latitude/longitude.
func (SolarCalculator) Resolve(date civil.Date, lat, lon float64, kind model.SolarKind, offsetMin int) (civil.Time, error) {
	var zenith float64
	var rising bool
	switch kind {
	case model.SolarDawn:
		zenith, rising = zenithCivilTwilight, true
	case model.SolarSunrise:
		zenith, rising = zenithSunriseSunset, true
	case model.SolarSunset:
		zenith, rising = zenithSunriseSunset, false
	case model.SolarDusk:
		zenith, rising = zenithCivilTwilight, false
	default:
		return civil.Time{}, fmt.Errorf("oracle: unrecognized solar kind %q", kind)
	}

	minutesUTC, err := solarEventMinutesUTC(date, lat, lon, zenith, rising)
	if err != nil {
		return civil.Time{}, err
	}

	// Longitude-based local time approximation: 15 degrees of
	// longitude per hour of solar offset from UTC. This is a civil
	// convenience, not a time-zone lookup — acceptable here since the
	// pipeline only needs a deterministic clock time, not zone-exact
	// civil time; the SolarOracle never needs to consult a tzdata.
	localMinutes := minutesUTC + lon/15*60 + float64(offsetMin)
	localMinutes = math.Mod(localMinutes+24*60, 24*60)

	hour := int(localMinutes / 60)
	minute := int(localMinutes) % 60
	second := int((localMinutes - math.Floor(localMinutes)) * 60)
	return civil.NewTime(hour, minute, second), nil
}

// solarEventMinutesUTC implements the NOAA/Sunrise-equation
// approximation, returning minutes after UTC midnight.
func solarEventMinutesUTC(date civil.Date, lat, lon, zenith float64, rising bool) (float64, error) {
	dayOfYear := dayOfYear(date)

	lngHour := lon / 15
	var t float64
	if rising {
		t = float64(dayOfYear) + (6-lngHour)/24
	} else {
		t = float64(dayOfYear) + (18-lngHour)/24
	}

	meanAnomaly := 0.9856*t - 3.289

	trueLongitude := meanAnomaly + 1.916*sinDeg(meanAnomaly) + 0.020*sinDeg(2*meanAnomaly) + 282.634
	trueLongitude = normalizeDegrees(trueLongitude)

	rightAscension := atanDeg(0.91764 * tanDeg(trueLongitude))
	rightAscension = normalizeDegrees(rightAscension)

	lQuadrant := math.Floor(trueLongitude/90) * 90
	raQuadrant := math.Floor(rightAscension/90) * 90
	rightAscension = rightAscension + (lQuadrant - raQuadrant)
	rightAscension /= 15

	sinDec := 0.39782 * sinDeg(trueLongitude)
	cosDec := cosDeg(asinDeg(sinDec))

	cosH := (cosDeg(zenith) - sinDec*sinDeg(lat)) / (cosDec * cosDeg(lat))
	if cosH > 1 {
		return 0, fmt.Errorf("oracle: sun never rises at lat=%.4f lon=%.4f on %s", lat, lon, date.String())
	}
	if cosH < -1 {
		return 0, fmt.Errorf("oracle: sun never sets at lat=%.4f lon=%.4f on %s", lat, lon, date.String())
	}

	var h float64
	if rising {
		h = 360 - acosDeg(cosH)
	} else {
		h = acosDeg(cosH)
	}
	h /= 15

	localMeanTime := h + rightAscension - 0.06571*t - 6.622
	utcMinutes := (localMeanTime - lngHour) * 60
	utcMinutes = math.Mod(utcMinutes+24*60, 24*60)
	return utcMinutes, nil
}

func dayOfYear(d civil.Date) int {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC).YearDay()
}

func sinDeg(deg float64) float64  { return math.Sin(deg * math.Pi / 180) }
func cosDeg(deg float64) float64  { return math.Cos(deg * math.Pi / 180) }
func tanDeg(deg float64) float64  { return math.Tan(deg * math.Pi / 180) }
func asinDeg(x float64) float64   { return math.Asin(x) * 180 / math.Pi }
func atanDeg(x float64) float64   { return math.Atan(x) * 180 / math.Pi }
func acosDeg(x float64) float64   { return math.Acos(x) * 180 / math.Pi }
func normalizeDegrees(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}
