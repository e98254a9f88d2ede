package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/model"
)

func TestSolarCalculator_SunriseBeforeSunset(t *testing.T) {
	calc := NewSolarCalculator()
	date := civil.NewDate(2025, 6, 21)

	sunrise, err := calc.Resolve(date, 40.7128, -74.0060, model.SolarSunrise, 0)
	require.NoError(t, err)
	sunset, err := calc.Resolve(date, 40.7128, -74.0060, model.SolarSunset, 0)
	require.NoError(t, err)

	assert.Less(t, sunrise.Hour, 8)
	assert.Greater(t, sunset.Hour, 17)
}

func TestSolarCalculator_DawnBeforeSunriseDuskAfterSunset(t *testing.T) {
	calc := NewSolarCalculator()
	date := civil.NewDate(2025, 6, 21)
	lat, lon := 40.7128, -74.0060

	dawn, err := calc.Resolve(date, lat, lon, model.SolarDawn, 0)
	require.NoError(t, err)
	sunrise, err := calc.Resolve(date, lat, lon, model.SolarSunrise, 0)
	require.NoError(t, err)
	sunset, err := calc.Resolve(date, lat, lon, model.SolarSunset, 0)
	require.NoError(t, err)
	dusk, err := calc.Resolve(date, lat, lon, model.SolarDusk, 0)
	require.NoError(t, err)

	dawnMin := dawn.Hour*60 + dawn.Minute
	sunriseMin := sunrise.Hour*60 + sunrise.Minute
	sunsetMin := sunset.Hour*60 + sunset.Minute
	duskMin := dusk.Hour*60 + dusk.Minute

	assert.Less(t, dawnMin, sunriseMin)
	assert.Less(t, sunsetMin, duskMin)
}

func TestSolarCalculator_OffsetShiftsTime(t *testing.T) {
	calc := NewSolarCalculator()
	date := civil.NewDate(2025, 6, 21)

	base, err := calc.Resolve(date, 40.7128, -74.0060, model.SolarSunrise, 0)
	require.NoError(t, err)
	shifted, err := calc.Resolve(date, 40.7128, -74.0060, model.SolarSunrise, 30)
	require.NoError(t, err)

	baseMin := base.Hour*60 + base.Minute
	shiftedMin := shifted.Hour*60 + shifted.Minute
	assert.Equal(t, 30, (shiftedMin-baseMin+24*60)%(24*60))
}

func TestSolarCalculator_UnrecognizedKindIsError(t *testing.T) {
	calc := NewSolarCalculator()
	_, err := calc.Resolve(civil.NewDate(2025, 6, 21), 40.7128, -74.0060, model.SolarKind("bogus"), 0)
	assert.Error(t, err)
}
