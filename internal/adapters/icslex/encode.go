package icslex

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/model"
)

// Encode serializes events back to an ICS document, one VEVENT per
// sub-event, the inverse of Lex/Snapshot for events that started life
// on the scheduler side — used by the `export` verb so operators
// migrating away from GCS get a calendar they can re-import elsewhere.
func Encode(events []model.Event) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//gcs//export//EN")

	for _, evt := range events {
		for i, sub := range evt.SubEvents {
			cal.Children = append(cal.Children, encodeSubEvent(evt, i, sub).Component)
		}
	}

	var buf bytes.Buffer
	enc := ical.NewEncoder(&buf)
	if err := enc.Encode(cal); err != nil {
		return nil, fmt.Errorf("icslex: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeSubEvent(evt model.Event, index int, sub model.SubEvent) *ical.Event {
	e := ical.NewEvent()
	uid := evt.IdentityHash
	if len(evt.SubEvents) > 1 {
		uid = fmt.Sprintf("%s-%d", evt.IdentityHash, index)
	}
	e.Props.SetText(ical.PropUID, uid)
	e.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	e.Props.SetText(ical.PropSummary, fmt.Sprintf("%s: %s", evt.Identity.Type, evt.Identity.Target))

	if start, ok := combine(sub.Timing.StartDate, sub.Payload.ResolvedStartDate, sub.Timing.StartTime, sub.Payload.ResolvedStartTime); ok {
		e.Props.SetDateTime(ical.PropDateTimeStart, start)
	}
	if end, ok := combine(sub.Timing.EndDate, sub.Payload.ResolvedEndDate, sub.Timing.EndTime, sub.Payload.ResolvedEndTime); ok {
		e.Props.SetDateTime(ical.PropDateTimeEnd, end)
	}

	if sub.Behavior.Repeat != "" {
		e.Props.SetText(ical.PropDescription, fmt.Sprintf("repeat=%s stop=%s", sub.Behavior.Repeat, sub.Behavior.StopType))
	}

	return e
}

// combine resolves a DateSpec/TimeSpec pair (preferring an
// already-resolved Payload value over the spec's own Hard field, since
// a symbolic spec carries no Hard value at all) into a concrete
// time.Time. ok is false when neither carries a hard date, meaning
// the sub-event has no usable timing to export.
func combine(dateSpec model.DateSpec, resolvedDate *civil.Date, timeSpec model.TimeSpec, resolvedTime *civil.Time) (time.Time, bool) {
	date := resolvedDate
	if date == nil {
		date = dateSpec.Hard
	}
	if date == nil {
		return time.Time{}, false
	}

	clock := resolvedTime
	if clock == nil {
		clock = timeSpec.Hard
	}
	hour, minute, second := 0, 0, 0
	if clock != nil {
		hour, minute, second = clock.Hour, clock.Minute, clock.Second
	}

	return time.Date(date.Year, time.Month(date.Month), date.Day, hour, minute, second, 0, time.UTC), true
}
