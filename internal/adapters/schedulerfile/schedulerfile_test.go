package schedulerfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/model"
)

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.ndjson")

	rows := []Row{
		{
			Type: "sequence", Target: "Morning Routine", Enabled: 1,
			StartTime: "07:00:00", EndTime: "07:30:00",
			StartDate: "2025-01-01", EndDate: "2025-12-31",
			Day: 8, StopType: 0, Repeat: 0,
			Tag: AuthorTag("abc123", civil.NewDate(2025, 1, 1), civil.NewDate(2025, 12, 31), model.Days{Weekly: model.NewWeekdaySet(model.Monday)}),
		},
		{
			Type: "command", Target: "unmanaged-thing", Enabled: 1,
			StartTime: "08:00:00", EndTime: "08:05:00",
			StartDate: "2025-01-01", EndDate: "2025-12-31",
			Day: 7,
		},
	}

	w := NewWriter(path)
	require.NoError(t, w.WriteRows(rows))

	r := NewReader(path)
	got, err := r.ReadRows()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Morning Routine", got[0].Target)
	assert.Equal(t, "unmanaged-thing", got[1].Target)
	assert.Empty(t, got[1].Tag)
}

func TestReadRowsMissingFileIsEmptyNotError(t *testing.T) {
	r := NewReader(filepath.Join(t.TempDir(), "nope.ndjson"))
	rows, err := r.ReadRows()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadInputsDecodesValidRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.ndjson")
	w := NewWriter(path)
	require.NoError(t, w.WriteRows([]Row{
		{Type: "sequence", Target: "Focus Block", Enabled: 1, StartTime: "09:00", EndTime: "10:00", StartDate: "2025-02-01", EndDate: "2025-02-28", Day: 7},
	}))

	r := NewReader(path)
	inputs, warnings := r.ReadInputs()
	assert.Empty(t, warnings)
	require.Len(t, inputs, 1)
	assert.Equal(t, "Focus Block", inputs[0].Target)
	assert.True(t, inputs[0].Enabled)
}

func TestReadInputsCollectsWarningForMalformedRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scheduler.ndjson")
	w := NewWriter(path)
	require.NoError(t, w.WriteRows([]Row{
		{Type: "sequence", Target: "", Enabled: 1, StartTime: "09:00", EndTime: "10:00", StartDate: "2025-02-01", EndDate: "2025-02-28", Day: 7},
	}))

	r := NewReader(path)
	inputs, warnings := r.ReadInputs()
	assert.Empty(t, inputs)
	require.Len(t, warnings, 1)
}

func TestAuthorTag(t *testing.T) {
	tag := AuthorTag("uid-1", civil.NewDate(2025, 1, 1), civil.NewDate(2025, 1, 31), model.Days{Weekly: model.NewWeekdaySet(model.Monday, model.Wednesday)})
	assert.Equal(t, "|GCS:v1|uid=uid-1|range=2025-01-01..2025-01-31|days=MO,WE", tag)
}

func TestFromEventSkipsUnmanaged(t *testing.T) {
	evt := model.Event{Ownership: model.Ownership{Managed: false}}
	rows, err := FromEvent(evt)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestFromEventAuthorsManagedRows(t *testing.T) {
	evt := model.Event{
		IdentityHash: "hash-1",
		Identity:     model.Identity{Type: model.EntitySequence, Target: "Deep Work"},
		Ownership:    model.Ownership{Managed: true},
		SubEvents: []model.SubEvent{
			{
				Timing: model.Timing{
					StartDate: model.HardDate(civil.NewDate(2025, 3, 1)),
					EndDate:   model.HardDate(civil.NewDate(2025, 3, 31)),
					StartTime: model.HardTime(civil.NewTime(9, 0, 0)),
					EndTime:   model.HardTime(civil.NewTime(10, 0, 0)),
					Days:      model.Days{Weekly: model.NewWeekdaySet(model.Monday)},
				},
				Behavior: model.Behavior{Enabled: true, Repeat: "none", StopType: model.StopGraceful},
			},
		},
	}

	rows, err := FromEvent(evt)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Deep Work", rows[0].Target)
	assert.Contains(t, rows[0].Tag, "uid=hash-1")
	assert.Equal(t, 1, rows[0].Enabled)
}
