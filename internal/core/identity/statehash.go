package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/model"
)

// SubEventStateHash computes a SubEvent's state hash: SHA-256 over the
// canonicalized timing ⊕ behavior ⊕ payload.
// Unlike Identity canonicalization this has no forbidden-field check —
// every field of a SubEvent is allowed to participate in its state.
func SubEventStateHash(sub model.SubEvent) (string, error) {
	timing, err := subEventTiming(sub.Timing)
	if err != nil {
		return "", err
	}

	c := canonical{
		"timing":   timing,
		"behavior": canonicalBehavior(sub.Behavior),
		"payload":  canonicalPayload(sub.Payload),
	}

	encoded, err := canonicalJSON(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// subEventTiming canonicalizes a SubEvent's timing without the
// identity-only forbidden-field check (a SubEvent's timing is always
// fully hard-resolved, so hard/symbolic exclusivity is still enforced,
// just not the "no stop_type etc. in timing" rule which only applies
// to Identity proper).
func subEventTiming(t model.Timing) (canonical, error) {
	startDate, err := canonicalDateSpec(t.StartDate, "timing.start_date")
	if err != nil {
		return nil, err
	}
	endDate, err := canonicalDateSpec(t.EndDate, "timing.end_date")
	if err != nil {
		return nil, err
	}
	startTime, err := canonicalTimeSpec(t.StartTime, "timing.start_time")
	if err != nil {
		return nil, err
	}
	endTime, err := canonicalTimeSpec(t.EndTime, "timing.end_time")
	if err != nil {
		return nil, err
	}
	if len(t.Days.Weekly) > 0 && t.Days.Parity != nil {
		return nil, gcserr.New(gcserr.CodeDaysConflict, gcserr.KindInvariantViolation,
			"timing.days cannot combine a weekday mask with a date-parity token", gcserr.Context{Field: "timing.days"})
	}
	return canonical{
		"days":       canonicalDays(t.Days),
		"start_date": startDate,
		"end_date":   endDate,
		"start_time": startTime,
		"end_time":   endTime,
	}, nil
}

func canonicalBehavior(b model.Behavior) canonical {
	return canonical{
		"enabled":   b.Enabled,
		"repeat":    b.Repeat,
		"stop_type": string(b.StopType),
	}
}

func canonicalPayload(p model.Payload) canonical {
	args := make(canonical, len(p.Args))
	for k, v := range p.Args {
		args[k] = v
	}

	c := canonical{
		"args":        args,
		"is_override": p.IsOverride,
		"all_day":     p.AllDay,
	}
	if p.ResolvedStartDate != nil {
		c["resolved_start_date"] = p.ResolvedStartDate.String()
	}
	if p.ResolvedEndDate != nil {
		c["resolved_end_date"] = p.ResolvedEndDate.String()
	}
	if p.ResolvedStartTime != nil {
		c["resolved_start_time"] = p.ResolvedStartTime.String()
	}
	if p.ResolvedEndTime != nil {
		c["resolved_end_time"] = p.ResolvedEndTime.String()
	}
	if p.SymbolicStartDate != nil {
		c["symbolic_start_date"] = p.SymbolicStartDate.Name
	}
	if p.SymbolicEndDate != nil {
		c["symbolic_end_date"] = p.SymbolicEndDate.Name
	}
	if p.SymbolicStartTime != nil {
		c["symbolic_start_time_kind"] = string(p.SymbolicStartTime.Kind)
		c["symbolic_start_time_offset"] = p.SymbolicStartTime.OffsetMin
	}
	if p.SymbolicEndTime != nil {
		c["symbolic_end_time_kind"] = string(p.SymbolicEndTime.Kind)
		c["symbolic_end_time_offset"] = p.SymbolicEndTime.OffsetMin
	}
	if p.OriginalStart != nil {
		c["original_start"] = p.OriginalStart.Date.String() + "T" + p.OriginalStart.Time.String()
	}
	return c
}

// EventStateHash aggregates an ordered list of sub-event state hashes
// into a single event-level state hash: SHA-256 of the ordered list
// joined.
func EventStateHash(subEventStateHashes []string) string {
	joined := strings.Join(subEventStateHashes, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
