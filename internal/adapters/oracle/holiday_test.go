package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcssync/gcs/internal/core/civil"
)

func TestFixedHolidayTable_FixedDates(t *testing.T) {
	table := NewFixedHolidayTable()

	d, err := table.Resolve("Independence Day", 2025)
	require.NoError(t, err)
	assert.Equal(t, civil.NewDate(2025, 7, 4), d)

	d, err = table.Resolve("christmas", 2025)
	require.NoError(t, err)
	assert.Equal(t, civil.NewDate(2025, 12, 25), d)
}

func TestFixedHolidayTable_NthWeekday(t *testing.T) {
	table := NewFixedHolidayTable()

	// Thanksgiving 2025 is the 4th Thursday of November: Nov 27.
	d, err := table.Resolve("Thanksgiving", 2025)
	require.NoError(t, err)
	assert.Equal(t, civil.NewDate(2025, 11, 27), d)

	// Labor Day 2025 is the 1st Monday of September: Sep 1.
	d, err = table.Resolve("Labor Day", 2025)
	require.NoError(t, err)
	assert.Equal(t, civil.NewDate(2025, 9, 1), d)

	// Memorial Day 2025 is the last Monday of May: May 26.
	d, err = table.Resolve("Memorial Day", 2025)
	require.NoError(t, err)
	assert.Equal(t, civil.NewDate(2025, 5, 26), d)
}

func TestFixedHolidayTable_Easter(t *testing.T) {
	table := NewFixedHolidayTable()

	// Easter 2025 falls on April 20.
	d, err := table.Resolve("Easter", 2025)
	require.NoError(t, err)
	assert.Equal(t, civil.NewDate(2025, 4, 20), d)
}

func TestFixedHolidayTable_UnrecognizedNameIsError(t *testing.T) {
	table := NewFixedHolidayTable()
	_, err := table.Resolve("Not A Holiday", 2025)
	assert.Error(t, err)
}
