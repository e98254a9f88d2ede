package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcssync/gcs/internal/adapters/schedulerfile"
	"github.com/gcssync/gcs/internal/core/intent"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/gcssync/gcs/pkg/config"
)

func TestParseCalendarSummary(t *testing.T) {
	cases := []struct {
		name    string
		summary string
		wantOK  bool
		wantCfg intent.CalendarAdapterConfig
	}{
		{
			name:    "well formed playlist",
			summary: "playlist: Halloween Show",
			wantOK:  true,
			wantCfg: intent.CalendarAdapterConfig{Type: model.EntityPlaylist, Target: "Halloween Show"},
		},
		{
			name:    "well formed sequence, extra whitespace",
			summary: "sequence:   Spooky Sequence  ",
			wantOK:  true,
			wantCfg: intent.CalendarAdapterConfig{Type: model.EntitySequence, Target: "Spooky Sequence"},
		},
		{
			name:    "no colon",
			summary: "Halloween Show",
			wantOK:  false,
		},
		{
			name:    "unknown type",
			summary: "banner: Halloween Show",
			wantOK:  false,
		},
		{
			name:    "empty target",
			summary: "playlist:   ",
			wantOK:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, ok := parseCalendarSummary(tc.summary)
			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantCfg, cfg)
			}
		})
	}
}

func TestHorizonFromConfig(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	h := HorizonFromConfig(30, now)

	assert.Equal(t, 2026, h.Start.Date.Year)
	assert.Equal(t, 10, h.Start.Date.Month)
	assert.Equal(t, 1, h.Start.Date.Day)
	assert.Equal(t, 31, h.End.Date.Day)
}

func TestIngestScheduler_NormalizesRowsAndCollectsWarnings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, schedulerfile.DefaultFileName)
	writer := schedulerfile.NewWriter(path)

	rows := []schedulerfile.Row{
		{
			Type:      "playlist",
			Target:    "Halloween Show",
			Enabled:   1,
			StartTime: "18:00:00",
			EndTime:   "19:00:00",
			StartDate: "2026-10-01",
			EndDate:   "2026-10-31",
			Day:       7,
		},
		{
			// missing target: the schedulerfile reader rejects this row as
			// KindSourceMalformed, which IngestScheduler demotes to a warning.
			Type:      "playlist",
			Target:    "",
			Enabled:   1,
			StartTime: "18:00:00",
			EndTime:   "19:00:00",
			StartDate: "2026-10-01",
			EndDate:   "2026-10-31",
		},
	}
	require.NoError(t, writer.WriteRows(rows))

	c := &Container{
		Config:    &config.Config{SchedulerCalendarScope: "primary"},
		Scheduler: SchedulerIO{Reader: schedulerfile.NewReader(path), Writer: writer},
	}

	result, err := c.IngestScheduler(time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, result.Manifest.Events, 1)
	assert.Len(t, result.Warnings, 1)
}
