// Package icslex is the CalendarLexer collaborator: it turns raw ICS
// bytes into one snapshot.Row per VEVENT. Line unfolding and property
// splitting are delegated to emersion/go-ical; this package owns the
// VEVENT → Row shape, RRULE decomposition, and date-time parsing
// (the UTC "Z" suffix and the TZID parameter). The core assumes well-formed rows, so a malformed
// VEVENT is skipped here rather than surfaced as an error — malformed
// rows are skipped upstream, not failed fatally.
package icslex

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/recurrence"
	"github.com/gcssync/gcs/internal/core/snapshot"
)

// Lex decodes data as an ICS document and returns one Row per VEVENT
// component. A document-level decode failure is returned as an error;
// a single malformed VEVENT within an otherwise valid document is
// silently skipped.
func Lex(data []byte) ([]snapshot.Row, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("icslex: decode calendar: %w", err)
	}

	var rows []snapshot.Row
	for _, comp := range cal.Children {
		if comp.Name != ical.CompEvent {
			continue
		}
		row, ok := parseEvent(comp)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseEvent(comp *ical.Component) (snapshot.Row, bool) {
	uidProp := comp.Props.Get(ical.PropUID)
	if uidProp == nil {
		return snapshot.Row{}, false
	}

	dtstartProp := comp.Props.Get(ical.PropDateTimeStart)
	if dtstartProp == nil {
		return snapshot.Row{}, false
	}
	start, isAllDay, err := parsePropDateTime(dtstartProp)
	if err != nil {
		return snapshot.Row{}, false
	}

	row := snapshot.Row{
		UID:      uidProp.Value,
		Start:    start,
		End:      start,
		IsAllDay: isAllDay,
	}

	if p := comp.Props.Get(ical.PropSummary); p != nil {
		row.Summary = p.Value
	}
	if p := comp.Props.Get(ical.PropDescription); p != nil {
		row.Description = p.Value
	}
	if p := comp.Props.Get(ical.PropStatus); p != nil {
		row.Status = strings.ToUpper(p.Value)
	}

	if dtendProp := comp.Props.Get(ical.PropDateTimeEnd); dtendProp != nil {
		if end, _, err := parsePropDateTime(dtendProp); err == nil {
			row.End = end
		}
	}

	if rruleProp := comp.Props.Get(ical.PropRecurrenceRule); rruleProp != nil {
		if rule, err := parseRRule(rruleProp.Value); err == nil {
			row.Rule = rule
		}
	}

	for _, exdateProp := range comp.Props.Values(ical.PropExceptionDates) {
		for _, raw := range strings.Split(exdateProp.Value, ",") {
			if dt, _, err := parseDateTimeValue(strings.TrimSpace(raw)); err == nil {
				row.ExDates = append(row.ExDates, dt)
			}
		}
	}

	if recIDProp := comp.Props.Get(ical.PropRecurrenceID); recIDProp != nil {
		if dt, _, err := parsePropDateTime(recIDProp); err == nil {
			row.RecurrenceID = &dt
			row.IsOverride = true
		}
	}

	row.Provenance = parseProvenance(comp)

	return row, true
}

func parseProvenance(comp *ical.Component) snapshot.Provenance {
	var prov snapshot.Provenance
	if p := comp.Props.Get(ical.PropDateTimeStamp); p != nil {
		if dt, _, err := parsePropDateTime(p); err == nil {
			epoch := dt.ToStdTime().Unix()
			prov.DTStampEpoch = &epoch
		}
	}
	if p := comp.Props.Get(ical.PropCreated); p != nil {
		if dt, _, err := parsePropDateTime(p); err == nil {
			epoch := dt.ToStdTime().Unix()
			prov.CreatedAtEpoch = &epoch
		}
	}
	if p := comp.Props.Get(ical.PropLastModified); p != nil {
		if dt, _, err := parsePropDateTime(p); err == nil {
			epoch := dt.ToStdTime().Unix()
			prov.UpdatedAtEpoch = &epoch
		}
	}
	return prov
}

// parsePropDateTime parses a DTSTART/DTEND/RECURRENCE-ID-shaped
// property, using its VALUE=DATE parameter to tell an all-day date
// from a date-time.
func parsePropDateTime(p *ical.Prop) (civil.DateTime, bool, error) {
	isAllDay := p.Params.Get(ical.ParamValue) == "DATE"
	dt, _, err := parseDateTimeValue(p.Value)
	if err != nil {
		return civil.DateTime{}, false, err
	}
	if tzid := p.Params.Get("TZID"); tzid != "" {
		dt.Zone = tzid
	}
	return dt, isAllDay, nil
}

// parseDateTimeValue parses a raw ICS DATE or DATE-TIME value
// (YYYYMMDD or YYYYMMDDTHHMMSS[Z]).
func parseDateTimeValue(raw string) (civil.DateTime, bool, error) {
	if t, err := time.Parse("20060102T150405Z", raw); err == nil {
		return civil.DateTimeFromTime(t.UTC()), false, nil
	}
	if t, err := time.Parse("20060102T150405", raw); err == nil {
		return civil.DateTime{Date: civil.DateFromTime(t), Time: civil.TimeFromTime(t)}, false, nil
	}
	if t, err := time.Parse("20060102", raw); err == nil {
		return civil.DateTime{Date: civil.DateFromTime(t)}, true, nil
	}
	return civil.DateTime{}, false, fmt.Errorf("icslex: unrecognized date-time value %q", raw)
}

// parseRRule decomposes an RRULE property value
// ("FREQ=WEEKLY;INTERVAL=1;COUNT=4;BYDAY=MO,WE") into a
// recurrence.Rule. Only the FREQ/INTERVAL/COUNT/UNTIL/BYDAY parts
// are extracted; unrecognized parts are ignored —
// recurrence.Expand itself is responsible for downgrading a rule it
// can't honor.
func parseRRule(raw string) (*recurrence.Rule, error) {
	rule := &recurrence.Rule{}
	for _, part := range strings.Split(raw, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.ToUpper(kv[0]), kv[1]
		switch key {
		case "FREQ":
			switch strings.ToUpper(val) {
			case "DAILY":
				rule.Freq = recurrence.Daily
			case "WEEKLY":
				rule.Freq = recurrence.Weekly
			default:
				rule.Freq = recurrence.Freq(strings.ToLower(val))
			}
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("icslex: invalid INTERVAL %q: %w", val, err)
			}
			rule.Interval = n
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("icslex: invalid COUNT %q: %w", val, err)
			}
			rule.Count = n
		case "UNTIL":
			dt, _, err := parseDateTimeValue(val)
			if err != nil {
				return nil, fmt.Errorf("icslex: invalid UNTIL %q: %w", val, err)
			}
			rule.Until = &dt
		case "BYDAY":
			rule.ByDay = strings.Split(val, ",")
		}
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	return rule, nil
}
