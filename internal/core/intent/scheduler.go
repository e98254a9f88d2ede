package intent

import (
	"strconv"
	"strings"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/model"
)

// managementTagPrefix marks a scheduler row as authored by this system,
// the SchedulerWriter tag format.
const managementTagPrefix = "|GCS:v1|"

// SchedulerRowInput is one already-decoded SchedulerReader row: HH:MM
// strings parsed to civil.Time, the day/stopType/repeat integer enums
// still raw (decoded here, since their mapping is part of step 3/4 of
// normalization, not the reader's concern).
type SchedulerRowInput struct {
	Type          model.EntityType
	Target        string
	Enabled       bool
	StartTime     civil.Time
	EndTime       civil.Time
	StartDate     civil.Date
	EndDate       civil.Date
	Day           int
	StopTypeRaw   int
	RepeatRaw     int
	Args          map[string]string
	Tag           string
	CalendarScope string

	UpdatedAtEpoch *int64
}

// NormalizeSchedulerRow is the scheduler adapter: scheduler rows are
// already ranges (not per-occurrence), so unlike the calendar side
// they flow directly into an Intent with no RecurrenceExpander or
// IntentConsolidator step in between.
func NormalizeSchedulerRow(in SchedulerRowInput) (Intent, error) {
	days, err := DecodeDayEnum(in.Day)
	if err != nil {
		return Intent{}, err
	}

	uid, managed := ParseManagementTag(in.Tag)
	controller := ""
	if managed {
		controller = "calendar"
	}

	enabled := in.Enabled
	input := Input{
		Type:          in.Type,
		Target:        in.Target,
		StartDate:     model.HardDate(in.StartDate),
		EndDate:       model.HardDate(in.EndDate),
		StartTime:     model.HardTime(in.StartTime),
		EndTime:       model.HardTime(in.EndTime),
		Days:          days,
		Enabled:       &enabled,
		Repeat:        decodeRepeat(in.RepeatRaw),
		StopType:      decodeStopType(in.StopTypeRaw),
		Args:          in.Args,
		Managed:       managed,
		Controller:    controller,
		SourceUID:     uid,
		CalendarScope: in.CalendarScope,
		UpdatedAtEpoch: in.UpdatedAtEpoch,
	}
	// Scheduler rows are already hard-resolved; no symbolic token ever
	// reaches this adapter, so there is nothing for the holiday/solar
	// collaborators to do.
	return Normalize(input, nil, nil)
}

// DecodeDayEnum maps the SchedulerReader day field to a Days value.
// 0..6 are single weekdays in
// Sunday-first order; 7..13 are the named composite groups; 14/15 are
// date-parity tokens; bit 0x10000 switches to raw weekday-bitmask mode.
func DecodeDayEnum(day int) (model.Days, error) {
	const bitmaskMode = 0x10000
	if day&bitmaskMode != 0 {
		set := model.WeekdaySet{}
		bits := map[model.Weekday]int{
			model.Sunday:    0x4000,
			model.Monday:    0x2000,
			model.Tuesday:   0x1000,
			model.Wednesday: 0x0800,
			model.Thursday:  0x0400,
			model.Friday:    0x0200,
			model.Saturday:  0x0100,
		}
		for wd, bit := range bits {
			if day&bit != 0 {
				set[wd] = true
			}
		}
		return model.Days{Weekly: set}, nil
	}

	switch day {
	case 0, 1, 2, 3, 4, 5, 6:
		return model.Days{Weekly: model.NewWeekdaySet(model.AllWeekdays[day])}, nil
	case 7: // everyday
		return model.Days{Weekly: model.NewWeekdaySet(model.AllWeekdays...)}, nil
	case 8: // weekdays
		return model.Days{Weekly: model.NewWeekdaySet(model.Monday, model.Tuesday, model.Wednesday, model.Thursday, model.Friday)}, nil
	case 9: // weekend
		return model.Days{Weekly: model.NewWeekdaySet(model.Saturday, model.Sunday)}, nil
	case 10: // Mon/Wed/Fri
		return model.Days{Weekly: model.NewWeekdaySet(model.Monday, model.Wednesday, model.Friday)}, nil
	case 11: // Tue/Thu
		return model.Days{Weekly: model.NewWeekdaySet(model.Tuesday, model.Thursday)}, nil
	case 12: // Sun-Thu
		return model.Days{Weekly: model.NewWeekdaySet(model.Sunday, model.Monday, model.Tuesday, model.Wednesday, model.Thursday)}, nil
	case 13: // Fri/Sat
		return model.Days{Weekly: model.NewWeekdaySet(model.Friday, model.Saturday)}, nil
	case 14:
		odd := model.ParityOdd
		return model.Days{Parity: &odd}, nil
	case 15:
		even := model.ParityEven
		return model.Days{Parity: &even}, nil
	default:
		return model.Days{}, gcserr.New(gcserr.CodeSourceUnsupportedFreq, gcserr.KindSourceMalformed,
			"unrecognized scheduler day enum value", gcserr.Context{Computed: strconv.Itoa(day)})
	}
}

func decodeStopType(raw int) model.StopType {
	switch raw {
	case 1:
		return model.StopHard
	case 2:
		return model.StopNone
	default:
		return model.StopGraceful
	}
}

func decodeRepeat(raw int) string {
	switch raw {
	case 0:
		return "none"
	case 1:
		return "once"
	default:
		return strconv.Itoa(raw)
	}
}

// ParseManagementTag reports whether tag was authored by this system's
// SchedulerWriter, and if so the uid it was authored for.
func ParseManagementTag(tag string) (uid string, managed bool) {
	if !strings.HasPrefix(tag, managementTagPrefix) {
		return "", false
	}
	for _, part := range strings.Split(tag, "|") {
		if strings.HasPrefix(part, "uid=") {
			return strings.TrimPrefix(part, "uid="), true
		}
	}
	return "", true
}
