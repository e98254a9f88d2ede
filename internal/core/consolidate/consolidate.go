// Package consolidate implements the IntentConsolidator: it losslessly
// collapses per-occurrence intents sharing a grouping key into zero or
// more RangedIntents. Scheduler-side intents never pass through this
// package — they already arrive as ranges.
package consolidate

import (
	intentpkg "github.com/gcssync/gcs/internal/core/intent"
	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/identity"
	"github.com/gcssync/gcs/internal/core/model"
)

// OccurrenceIntent wraps a per-occurrence Intent with the extra series
// context the range-derivation rule needs: the original series DTSTART
// date, which may precede the earliest surviving occurrence once
// cancellations/EXDATEs remove it. Nil when the series base has no
// recurrence rule; overrides of a ruled series carry it too, but the
// override path does not read it.
type OccurrenceIntent struct {
	Intent      intentpkg.Intent
	SeriesStart *civil.Date
	SeriesUntil *civil.Date
}

// RangedIntent is a consolidated intent: a template (an Intent whose
// identity.timing has been rewritten to the derived range and weekday
// mask) plus the range itself for callers that want it directly.
type RangedIntent struct {
	Template  intentpkg.Intent
	RangeStart civil.Date
	RangeEnd   civil.Date
	DaysMask   model.WeekdaySet
}

type groupKey struct {
	Type       model.EntityType
	Target     string
	StopType   model.StopType
	Repeat     string
	AllDay     bool
	StartTime  civil.Time
	EndTime    civil.Time
	IsOverride bool
}

func keyOf(o OccurrenceIntent) groupKey {
	sub := o.Intent.SubEvents[0]
	return groupKey{
		Type:       o.Intent.Identity.Type,
		Target:     o.Intent.Identity.Target,
		StopType:   sub.Behavior.StopType,
		Repeat:     sub.Behavior.Repeat,
		AllDay:     sub.Payload.AllDay,
		StartTime:  *sub.Timing.StartTime.Hard,
		EndTime:    *sub.Timing.EndTime.Hard,
		IsOverride: sub.Payload.IsOverride,
	}
}

// Consolidate groups occs by identity/behavior/payload key and derives
// a minimal set of lossless RangedIntents per group. Order of the result is
// deterministic: groups are processed in first-seen order, and ranges
// within a group are emitted in range-start order.
func Consolidate(occs []OccurrenceIntent) ([]RangedIntent, error) {
	order := make([]groupKey, 0)
	groups := make(map[groupKey][]OccurrenceIntent)
	for _, o := range occs {
		k := keyOf(o)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], o)
	}

	var out []RangedIntent
	for _, k := range order {
		group := groups[k]
		if k.IsOverride {
			for _, o := range group {
				d := *o.Intent.SubEvents[0].Payload.ResolvedStartDate
				out = append(out, RangedIntent{
					Template:   o.Intent,
					RangeStart: d,
					RangeEnd:   d,
				})
			}
			continue
		}

		ranged, err := consolidateGroup(group)
		if err != nil {
			return nil, err
		}
		out = append(out, ranged...)
	}
	return out, nil
}

func consolidateGroup(group []OccurrenceIntent) ([]RangedIntent, error) {
	dates := make([]civil.Date, 0, len(group))
	present := make(map[civil.Date]bool, len(group))
	for _, o := range group {
		d := *o.Intent.SubEvents[0].Payload.ResolvedStartDate
		if !present[d] {
			dates = append(dates, d)
			present[d] = true
		}
	}
	sortDates(dates)

	mask := unionWeekdays(dates)

	rangeStart := dates[0]
	var seriesStart *civil.Date
	var seriesUntil *civil.Date
	for _, o := range group {
		if o.SeriesStart != nil {
			seriesStart = o.SeriesStart
		}
		if o.SeriesUntil != nil {
			seriesUntil = o.SeriesUntil
		}
	}
	if seriesStart != nil && seriesStart.Before(rangeStart) {
		rangeStart = *seriesStart
	}

	rangeEnd := dates[len(dates)-1]
	if seriesUntil != nil {
		rangeEnd = *seriesUntil
	}

	if everyDayPresent(rangeStart, rangeEnd, present) {
		mask = model.NewWeekdaySet(model.AllWeekdays...)
	}

	segments := splitLossless(rangeStart, rangeEnd, mask, present)

	out := make([]RangedIntent, 0, len(segments))
	for _, seg := range segments {
		ri, err := buildRangedIntent(group, seg)
		if err != nil {
			return nil, err
		}
		out = append(out, ri)
	}
	return out, nil
}

type segment struct {
	Start civil.Date
	End   civil.Date
	Mask  model.WeekdaySet
}

// splitLossless implements the losslessness rule: walk
// [start,end] day by day; the moment a day whose weekday is in mask is
// not an actual occurrence date, close the current segment (if
// non-empty) and restart the next segment at the next occurrence date
// on or after the violation. Deterministic, minimal split count.
func splitLossless(start, end civil.Date, mask model.WeekdaySet, present map[civil.Date]bool) []segment {
	var out []segment
	segStart := start
	cur := start
	var lastPresent *civil.Date

	for {
		if cur.After(end) {
			if lastPresent != nil {
				out = append(out, segment{Start: segStart, End: *lastPresent, Mask: mask})
			}
			break
		}
		if present[cur] {
			d := cur
			lastPresent = &d
		}
		wd := model.FromStdWeekday(cur.Weekday())
		if mask.Contains(wd) && !present[cur] {
			if lastPresent != nil {
				out = append(out, segment{Start: segStart, End: *lastPresent, Mask: mask})
			}
			next, ok := nextPresentOnOrAfter(present, cur, end)
			if !ok {
				return out
			}
			segStart = next
			cur = next
			lastPresent = &next
			continue
		}
		cur = cur.AddDays(1)
	}
	return out
}

func nextPresentOnOrAfter(present map[civil.Date]bool, from, end civil.Date) (civil.Date, bool) {
	d := from
	for !d.After(end) {
		if present[d] {
			return d, true
		}
		d = d.AddDays(1)
	}
	return civil.Date{}, false
}

func everyDayPresent(start, end civil.Date, present map[civil.Date]bool) bool {
	d := start
	for !d.After(end) {
		if !present[d] {
			return false
		}
		d = d.AddDays(1)
	}
	return true
}

func unionWeekdays(dates []civil.Date) model.WeekdaySet {
	set := model.WeekdaySet{}
	for _, d := range dates {
		set[model.FromStdWeekday(d.Weekday())] = true
	}
	return set
}

func sortDates(dates []civil.Date) {
	for i := 1; i < len(dates); i++ {
		for j := i; j > 0 && dates[j].Before(dates[j-1]); j-- {
			dates[j], dates[j-1] = dates[j-1], dates[j]
		}
	}
}

func buildRangedIntent(group []OccurrenceIntent, seg segment) (RangedIntent, error) {
	rep := pickRepresentative(group, seg.Start, seg.End)

	// Identity stays date-independent: the segment's start/end only
	// describe where this particular RangedIntent applies in the
	// Manifest (RangeStart/RangeEnd below, and the SubEvent's own
	// Timing), never the identity that must keep matching across runs
	// as the window shifts. Only the weekday mask, which is part of
	// "sameness", carries over into the identity.
	ident := rep.Identity
	ident.Timing.StartDate = model.DateSpec{}
	ident.Timing.EndDate = model.DateSpec{}
	ident.Timing.Days = model.Days{Weekly: seg.Mask}

	identityHash, _, err := identity.HashIdentity(ident)
	if err != nil {
		return RangedIntent{}, err
	}

	sub := rep.SubEvents[0]
	sub.Timing = model.Timing{
		StartDate: model.HardDate(seg.Start),
		EndDate:   model.HardDate(seg.End),
		StartTime: sub.Timing.StartTime,
		EndTime:   sub.Timing.EndTime,
		Days:      model.Days{Weekly: seg.Mask},
	}
	stateHash, err := identity.SubEventStateHash(sub)
	if err != nil {
		return RangedIntent{}, err
	}
	sub.StateHash = stateHash

	template := intentpkg.Intent{
		IdentityHash:   identityHash,
		Identity:       ident,
		Ownership:      rep.Ownership,
		Correlation:    rep.Correlation,
		Provenance:     rep.Provenance,
		SubEvents:      []model.SubEvent{sub},
		EventStateHash: identity.EventStateHash([]string{stateHash}),
	}

	return RangedIntent{
		Template:   template,
		RangeStart: seg.Start,
		RangeEnd:   seg.End,
		DaysMask:   seg.Mask,
	}, nil
}

func pickRepresentative(group []OccurrenceIntent, segStart, segEnd civil.Date) intentpkg.Intent {
	for _, o := range group {
		d := *o.Intent.SubEvents[0].Payload.ResolvedStartDate
		if !d.Before(segStart) && !d.After(segEnd) {
			return o.Intent
		}
	}
	return group[0].Intent
}
