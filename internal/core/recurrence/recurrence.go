// Package recurrence implements the RecurrenceExpander: it turns one
// calendar base row plus an optional RRULE into concrete Occurrences
// within a horizon. The FREQ/INTERVAL/COUNT/UNTIL/BYDAY arithmetic is
// delegated to github.com/teambition/rrule-go rather than reimplemented;
// this package only owns the parts rrule-go does not: unknown-FREQ
// downgrade, EXDATE exclusion bookkeeping, and all-day horizon clipping.
package recurrence

import (
	"sort"
	"time"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/teambition/rrule-go"
)

// Freq names a supported recurrence frequency. Anything else is an
// "unknown FREQ" and downgrades to a single occurrence at DTSTART.
type Freq string

const (
	Daily  Freq = "DAILY"
	Weekly Freq = "WEEKLY"
)

// Rule is the subset of RRULE this component understands.
type Rule struct {
	Freq     Freq
	Interval int // 0 treated as 1
	Count    int // 0 means unbounded
	Until    *civil.DateTime
	ByDay    []string // ICS weekday tokens: MO, TU, ...
}

// BaseRow is one calendar base event as produced by CalendarSnapshotter:
// a DTSTART/DTEND pair, optional RRULE, and an EXDATE set.
type BaseRow struct {
	UID     string
	Start   civil.DateTime
	End     civil.DateTime
	AllDay  bool
	Rule    *Rule
	ExDates []civil.DateTime
}

// Occurrence is a concrete run window.
type Occurrence struct {
	Start  civil.DateTime
	End    civil.DateTime
	AllDay bool
	TZ     string
	Exdate bool
}

var weekdayTokens = map[string]rrule.Weekday{
	"SU": rrule.SU,
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
}

// Expand produces the ordered list of Occurrences for base within
// [horizonStart, horizonEnd], applying EXDATEs and downgrading unknown
// FREQ values to a single DTSTART occurrence. All-day bases are clipped
// at date granularity rather than instant granularity.
func Expand(base BaseRow, horizonStart, horizonEnd civil.DateTime) ([]Occurrence, error) {
	duration := base.End.ToStdTime().Sub(base.Start.ToStdTime())

	if base.Rule == nil || !supportedFreq(base.Rule.Freq) {
		return expandSingle(base, duration, horizonStart, horizonEnd), nil
	}

	starts, err := expandRule(base, horizonStart, horizonEnd)
	if err != nil {
		return nil, err
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		occStart := civil.DateTimeFromTime(s)
		occEnd := civil.DateTimeFromTime(s.Add(duration))
		if base.AllDay && !withinDateHorizon(occStart.Date, horizonStart.Date, horizonEnd.Date) {
			continue
		}
		out = append(out, Occurrence{
			Start:  occStart,
			End:    occEnd,
			AllDay: base.AllDay,
			TZ:     base.Start.Zone,
		})
	}
	return out, nil
}

func supportedFreq(f Freq) bool {
	return f == Daily || f == Weekly
}

// expandSingle handles both "no RRULE" and "unrecognized FREQ" by
// emitting DTSTART as the only occurrence, subject to horizon clipping
// and exact-match EXDATE exclusion.
func expandSingle(base BaseRow, duration time.Duration, horizonStart, horizonEnd civil.DateTime) []Occurrence {
	start := base.Start
	if base.AllDay {
		if !withinDateHorizon(start.Date, horizonStart.Date, horizonEnd.Date) {
			return nil
		}
	} else if start.Before(horizonStart) || horizonEnd.Before(start) {
		return nil
	}

	for _, ex := range base.ExDates {
		if ex.Equal(start) {
			return nil
		}
	}

	end := civil.DateTimeFromTime(start.ToStdTime().Add(duration))
	return []Occurrence{{Start: start, End: end, AllDay: base.AllDay, TZ: base.Start.Zone}}
}

func expandRule(base BaseRow, horizonStart, horizonEnd civil.DateTime) ([]time.Time, error) {
	freq := rrule.DAILY
	if base.Rule.Freq == Weekly {
		freq = rrule.WEEKLY
	}

	interval := base.Rule.Interval
	if interval <= 0 {
		interval = 1
	}

	opts := rrule.ROption{
		Freq:     freq,
		Dtstart:  base.Start.ToStdTime(),
		Interval: interval,
	}
	if base.Rule.Count > 0 {
		opts.Count = base.Rule.Count
	}
	if base.Rule.Until != nil {
		opts.Until = base.Rule.Until.ToStdTime()
	}
	for _, tok := range base.Rule.ByDay {
		wd, ok := weekdayTokens[tok]
		if !ok {
			return nil, gcserr.New(gcserr.CodeSourceUnsupportedFreq, gcserr.KindSourceMalformed,
				"unrecognized BYDAY token: "+tok, gcserr.Context{ID: base.UID, Field: "rrule.byday"})
		}
		opts.Byweekday = append(opts.Byweekday, wd)
	}

	r, err := rrule.NewRRule(opts)
	if err != nil {
		return nil, gcserr.Wrap(gcserr.CodeSourceUnsupportedFreq, gcserr.KindSourceMalformed,
			"invalid recurrence rule", gcserr.Context{ID: base.UID}, err)
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range base.ExDates {
		set.ExDate(ex.ToStdTime())
	}

	// Count is honored even when it runs past the horizon: we let
	// rrule-go materialize the whole finite sequence and then clip,
	// rather than bounding the query window by the horizon end when a
	// COUNT/UNTIL is present. For unbounded rules, the horizon itself
	// is the only bound.
	queryEnd := horizonEnd.ToStdTime()
	if base.Rule.Count > 0 || base.Rule.Until != nil {
		all := set.All()
		times := make([]time.Time, 0, len(all))
		for _, t := range all {
			if !t.Before(horizonStart.ToStdTime()) && !t.After(queryEnd) {
				times = append(times, t)
			}
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		return times, nil
	}

	return set.Between(horizonStart.ToStdTime(), queryEnd, true), nil
}

func withinDateHorizon(d, start, end civil.Date) bool {
	return !d.Before(start) && !d.After(end)
}
