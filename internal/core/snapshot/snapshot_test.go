package snapshot

import (
	"testing"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dt(y, m, d, hh, mm int) civil.DateTime {
	return civil.DateTime{Date: civil.NewDate(y, m, d), Time: civil.NewTime(hh, mm, 0)}
}

func TestSnapshot_BaseCancellationAndOverride(t *testing.T) {
	cancelledAt := dt(2025, 1, 20, 18, 0)
	overriddenAt := dt(2025, 1, 13, 18, 0)

	rows := []Row{
		{UID: "A", Start: dt(2025, 1, 6, 18, 0), End: dt(2025, 1, 6, 19, 0)},
		{UID: "A", RecurrenceID: &cancelledAt, Status: "cancelled"},
		{UID: "A", RecurrenceID: &overriddenAt, Start: dt(2025, 1, 13, 20, 0), End: dt(2025, 1, 13, 21, 0)},
	}

	result, err := Snapshot(rows)
	require.NoError(t, err)
	require.Contains(t, result.Bundles, "A")

	bundle := result.Bundles["A"]
	assert.True(t, bundle.CancelledDates[cancelledAt])
	require.Len(t, bundle.Overrides, 1)
	assert.Equal(t, overriddenAt, bundle.Overrides[0].OriginalStart)
	assert.Equal(t, civil.NewTime(20, 0, 0), bundle.Overrides[0].Start.Time)
}

func TestSnapshot_MissingUIDOnBaseRowIsSkippedNotFatal(t *testing.T) {
	rows := []Row{
		{Start: dt(2025, 1, 1, 9, 0), End: dt(2025, 1, 1, 9, 30)},
	}
	result, err := Snapshot(rows)
	require.NoError(t, err)
	assert.Empty(t, result.Bundles)
	require.Len(t, result.Warnings, 1)
}

func TestSnapshot_UnknownParentUIDOnOverrideIsFatal(t *testing.T) {
	orphanAt := dt(2025, 1, 13, 18, 0)
	rows := []Row{
		{UID: "ghost", RecurrenceID: &orphanAt, Start: dt(2025, 1, 13, 20, 0), End: dt(2025, 1, 13, 21, 0)},
	}
	_, err := Snapshot(rows)
	require.Error(t, err)
}

func TestSnapshot_UnknownParentUIDOnCancellationIsFatal(t *testing.T) {
	orphanAt := dt(2025, 1, 13, 18, 0)
	rows := []Row{
		{UID: "ghost", RecurrenceID: &orphanAt, Status: "cancelled"},
	}
	_, err := Snapshot(rows)
	require.Error(t, err)
}
