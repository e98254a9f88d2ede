package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/model"
)

type fakeProvider struct{}

func (fakeProvider) ResolveHoliday(name string, year int) (civil.Date, error) {
	return civil.NewDate(year, 1, 1), nil
}

func (fakeProvider) ResolveSolar(date civil.Date, lat, lon float64, kind model.SolarKind, offsetMin int) (civil.Time, error) {
	return civil.NewTime(7, 0, 0), nil
}

func TestPluginOracle_DelegatesToProvider(t *testing.T) {
	po := &PluginOracle{provider: fakeProvider{}}

	d, err := po.Holidays().Resolve("New Year's Day", 2025)
	require.NoError(t, err)
	assert.Equal(t, civil.NewDate(2025, 1, 1), d)

	tm, err := po.Solar().Resolve(civil.NewDate(2025, 1, 1), 0, 0, model.SolarSunrise, 0)
	require.NoError(t, err)
	assert.Equal(t, civil.NewTime(7, 0, 0), tm)
}
