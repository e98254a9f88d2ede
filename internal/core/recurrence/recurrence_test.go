package recurrence

import (
	"testing"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dt(y, m, d, hh, mm int) civil.DateTime {
	return civil.DateTime{Date: civil.NewDate(y, m, d), Time: civil.NewTime(hh, mm, 0)}
}

// TestExpand_WeeklyWithCancellation covers a weekly Monday
// recurrence, four occurrences by COUNT, one of them cancelled via EXDATE.
func TestExpand_WeeklyWithCancellation(t *testing.T) {
	base := BaseRow{
		UID:   "A",
		Start: dt(2025, 1, 6, 18, 0),
		End:   dt(2025, 1, 6, 19, 0),
		Rule: &Rule{
			Freq:  Weekly,
			Count: 4,
			ByDay: []string{"MO"},
		},
		ExDates: []civil.DateTime{dt(2025, 1, 20, 18, 0)},
	}

	occs, err := Expand(base, dt(2025, 1, 1, 0, 0), dt(2025, 2, 1, 0, 0))
	require.NoError(t, err)
	require.Len(t, occs, 3)

	assert.Equal(t, civil.NewDate(2025, 1, 6), occs[0].Start.Date)
	assert.Equal(t, civil.NewDate(2025, 1, 13), occs[1].Start.Date)
	assert.Equal(t, civil.NewDate(2025, 1, 27), occs[2].Start.Date)

	for _, o := range occs {
		assert.Equal(t, civil.NewTime(19, 0, 0), o.End.Time)
	}
}

func TestExpand_UnknownFreqDowngradesToSingleOccurrence(t *testing.T) {
	base := BaseRow{
		UID:   "B",
		Start: dt(2025, 3, 1, 9, 0),
		End:   dt(2025, 3, 1, 9, 30),
		Rule:  &Rule{Freq: "MONTHLY"},
	}

	occs, err := Expand(base, dt(2025, 1, 1, 0, 0), dt(2025, 6, 1, 0, 0))
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, civil.NewDate(2025, 3, 1), occs[0].Start.Date)
}

func TestExpand_NoRuleSingleOccurrenceOutsideHorizonIsExcluded(t *testing.T) {
	base := BaseRow{
		UID:   "C",
		Start: dt(2025, 1, 1, 9, 0),
		End:   dt(2025, 1, 1, 9, 30),
	}

	occs, err := Expand(base, dt(2025, 2, 1, 0, 0), dt(2025, 3, 1, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestExpand_CountExtendsPastHorizonIsTruncated(t *testing.T) {
	base := BaseRow{
		UID:   "D",
		Start: dt(2025, 1, 1, 8, 0),
		End:   dt(2025, 1, 1, 8, 15),
		Rule: &Rule{
			Freq:  Daily,
			Count: 10,
		},
	}

	occs, err := Expand(base, dt(2025, 1, 1, 0, 0), dt(2025, 1, 5, 0, 0))
	require.NoError(t, err)
	assert.Len(t, occs, 4) // Jan 1..4 only (Jan 5 08:00 is past the 00:00 horizon end), though COUNT=10 extends to Jan 10
}

func TestExpand_UnsupportedByDayTokenIsSourceMalformed(t *testing.T) {
	base := BaseRow{
		UID:   "E",
		Start: dt(2025, 1, 1, 8, 0),
		End:   dt(2025, 1, 1, 8, 15),
		Rule: &Rule{
			Freq:  Weekly,
			ByDay: []string{"ZZ"},
		},
	}

	_, err := Expand(base, dt(2025, 1, 1, 0, 0), dt(2025, 2, 1, 0, 0))
	require.Error(t, err)
}
