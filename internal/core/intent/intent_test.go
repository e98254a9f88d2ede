package intent

import (
	"testing"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHolidays struct {
	byYear map[int]civil.Date
}

func (f fakeHolidays) Resolve(name string, year int) (civil.Date, error) {
	return f.byYear[year], nil
}

func dt(y, m, d, hh, mm int) civil.DateTime {
	return civil.DateTime{Date: civil.NewDate(y, m, d), Time: civil.NewTime(hh, mm, 0)}
}

// TestNormalize_SymbolicDateIdentityStableAcrossYears mirrors scenario
// S3: the same symbolic-date identity must hash identically whether
// resolved in 2024 or 2025.
func TestNormalize_SymbolicDateIdentityStableAcrossYears(t *testing.T) {
	holiday := fakeHolidays{byYear: map[int]civil.Date{
		2024: civil.NewDate(2024, 11, 28),
		2025: civil.NewDate(2025, 11, 27),
	}}

	makeInput := func(year int) Input {
		return Input{
			Type:           model.EntityCommand,
			Target:         "turn_on_lights",
			StartDate:      model.SymbolicDateSpec("Thanksgiving", nil),
			EndDate:        model.SymbolicDateSpec("Thanksgiving", nil),
			StartTime:      model.HardTime(civil.NewTime(18, 0, 0)),
			EndTime:        model.HardTime(civil.NewTime(19, 0, 0)),
			Managed:        true,
			Controller:     "calendar",
			ResolutionYear: year,
		}
	}

	i2024, err := Normalize(makeInput(2024), holiday, nil)
	require.NoError(t, err)
	i2025, err := Normalize(makeInput(2025), holiday, nil)
	require.NoError(t, err)

	assert.Equal(t, i2024.IdentityHash, i2025.IdentityHash)
	// but the resolved sub-event dates differ, and so does state hash.
	assert.Equal(t, civil.NewDate(2024, 11, 28), *i2024.SubEvents[0].Payload.ResolvedStartDate)
	assert.Equal(t, civil.NewDate(2025, 11, 27), *i2025.SubEvents[0].Payload.ResolvedStartDate)
	assert.NotEqual(t, i2024.EventStateHash, i2025.EventStateHash)
}

func TestNormalize_SequenceSuffixStripped(t *testing.T) {
	in := Input{
		Type:       model.EntitySequence,
		Target:     "holiday-show.fseq",
		StartDate:  model.HardDate(civil.NewDate(2025, 12, 1)),
		EndDate:    model.HardDate(civil.NewDate(2025, 12, 1)),
		StartTime:  model.HardTime(civil.NewTime(18, 0, 0)),
		EndTime:    model.HardTime(civil.NewTime(19, 0, 0)),
		Managed:    true,
		Controller: "calendar",
	}
	out, err := Normalize(in, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "holiday-show", out.Identity.Target)
}

func TestNormalize_MissingTargetIsSourceMalformed(t *testing.T) {
	in := Input{
		Type:      model.EntityPlaylist,
		StartDate: model.HardDate(civil.NewDate(2025, 1, 1)),
		EndDate:   model.HardDate(civil.NewDate(2025, 1, 1)),
		StartTime: model.HardTime(civil.NewTime(9, 0, 0)),
		EndTime:   model.HardTime(civil.NewTime(10, 0, 0)),
	}
	_, err := Normalize(in, nil, nil)
	require.Error(t, err)
}

func TestDecodeDayEnum_Weekend(t *testing.T) {
	days, err := DecodeDayEnum(9)
	require.NoError(t, err)
	assert.True(t, days.Weekly.Contains(model.Saturday))
	assert.True(t, days.Weekly.Contains(model.Sunday))
	assert.False(t, days.Weekly.Contains(model.Monday))
}

func TestDecodeDayEnum_BitmaskMode(t *testing.T) {
	// MO | WE | FR in bitmask mode.
	day := 0x10000 | 0x2000 | 0x0800 | 0x0200
	days, err := DecodeDayEnum(day)
	require.NoError(t, err)
	assert.True(t, days.Weekly.Contains(model.Monday))
	assert.True(t, days.Weekly.Contains(model.Wednesday))
	assert.True(t, days.Weekly.Contains(model.Friday))
	assert.False(t, days.Weekly.Contains(model.Tuesday))
}

func TestDecodeDayEnum_OddEvenParity(t *testing.T) {
	days, err := DecodeDayEnum(14)
	require.NoError(t, err)
	require.NotNil(t, days.Parity)
	assert.Equal(t, model.ParityOdd, *days.Parity)
}

func TestParseManagementTag(t *testing.T) {
	uid, managed := ParseManagementTag("|GCS:v1|uid=abc123|range=2025-01-06..2025-01-27|days=Mo")
	assert.True(t, managed)
	assert.Equal(t, "abc123", uid)

	_, managed = ParseManagementTag("")
	assert.False(t, managed)
}

func TestNormalizeSchedulerRow_UnmanagedWithoutTag(t *testing.T) {
	row := SchedulerRowInput{
		Type:      model.EntityPlaylist,
		Target:    "some-show",
		Enabled:   true,
		StartTime: civil.NewTime(18, 0, 0),
		EndTime:   civil.NewTime(19, 0, 0),
		StartDate: civil.NewDate(2025, 1, 1),
		EndDate:   civil.NewDate(2025, 12, 31),
		Day:       7,
	}
	out, err := NormalizeSchedulerRow(row)
	require.NoError(t, err)
	assert.False(t, out.Ownership.Managed)
}
