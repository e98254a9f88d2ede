// Package intent implements the IntentNormalizer: one function with two
// thin adapters (calendar, scheduler) that turn a raw per-occurrence
// calendar input or a raw scheduler row into a source-neutral, fully
// resolved Intent carrying identity and state hashes.
package intent

import (
	"strings"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/identity"
	"github.com/gcssync/gcs/internal/core/model"
)

// HolidayResolver resolves a named holiday to a concrete date for a
// given year. It is a pure function collaborator; the
// core never caches or mutates it.
type HolidayResolver interface {
	Resolve(name string, year int) (civil.Date, error)
}

// SolarOracle resolves a solar-relative symbolic time to a concrete
// time of day for a given date and location.
type SolarOracle interface {
	Resolve(date civil.Date, lat, lon float64, kind model.SolarKind, offsetMin int) (civil.Time, error)
}

// Intent is the IntentNormalizer's output: a source-neutral,
// fully-resolved scheduled intent.
type Intent struct {
	IdentityHash   string
	Identity       model.Identity
	Ownership      model.Ownership
	Correlation    model.Correlation
	Provenance     model.Provenance
	SubEvents      []model.SubEvent
	EventStateHash string
}

// Location is the geographic point the SolarOracle resolves symbolic
// times against. A zero Location is valid when no symbolic time is
// present — Normalize never dereferences it unless SubEvent timing
// carries a symbolic time token.
type Location struct {
	Lat float64
	Lon float64
}

// Input is the normalized shape both adapters (calendar, scheduler)
// build before calling Normalize. Everything here is already
// source-neutral: type/target extraction, summary parsing, and
// provider-specific row decoding are the adapters' job, not the core's
// — adapters sit outside the core.
type Input struct {
	Type   model.EntityType
	Target string

	StartDate model.DateSpec
	EndDate   model.DateSpec
	StartTime model.TimeSpec
	EndTime   model.TimeSpec
	Days      model.Days

	Enabled  *bool // nil means "use default"
	Repeat   string
	StopType model.StopType
	Args     map[string]string

	IsOverride    bool
	OriginalStart *civil.DateTime
	AllDay        bool

	Managed    bool
	Controller string
	Locked     bool // carried in by the caller from the last-applied Manifest

	SourceUID     string
	ExternalIDs   map[string]string
	CalendarScope string

	UpdatedAtEpoch *int64
	CreatedAtEpoch *int64
	DTStampEpoch   *int64

	ResolutionYear int // year symbolic date tokens resolve against
	Location       Location
}

// sequenceSuffixes are stripped from a sequence target (step 1).
var sequenceSuffixes = []string{".fseq", ".eseq"}

// Normalize runs the eight ordered resolution steps over in,
// producing a fully-resolved Intent. holiday/solar may be nil only
// when in carries no symbolic tokens at all — Normalize returns a
// SourceMalformed error if a symbolic token needs resolution and the
// corresponding resolver is absent.
func Normalize(in Input, holiday HolidayResolver, solar SolarOracle) (Intent, error) {
	// Step 1: type + target.
	if in.Type == "" || !in.Type.IsValid() {
		return Intent{}, gcserr.New(gcserr.CodeIdentityMissingField, gcserr.KindInvariantViolation,
			"intent.type is required and must be one of playlist|command|sequence", gcserr.Context{Field: "type"})
	}
	target := strings.TrimSpace(in.Target)
	if target == "" {
		return Intent{}, gcserr.New(gcserr.CodeSourceMissingTarget, gcserr.KindSourceMalformed,
			"intent.target is required", gcserr.Context{})
	}
	if in.Type == model.EntitySequence {
		target = stripSequenceSuffix(target)
	}

	// Step 2: timing resolution. Identity keeps whatever was given
	// (hard stays hard, symbolic stays symbolic); the SubEvent always
	// gets a fully hard-resolved timing, with the symbolic companion
	// (if any) retained in the payload, never in identity.
	resolvedStart, symbolicStart, err := resolveDate(in.StartDate, in.ResolutionYear, holiday)
	if err != nil {
		return Intent{}, err
	}
	resolvedEnd, symbolicEnd, err := resolveDate(in.EndDate, in.ResolutionYear, holiday)
	if err != nil {
		return Intent{}, err
	}
	resolvedStartTime, symbolicStartTime, err := resolveTime(in.StartTime, resolvedStart, in.Location, solar)
	if err != nil {
		return Intent{}, err
	}
	resolvedEndTime, symbolicEndTime, err := resolveTime(in.EndTime, resolvedEnd, in.Location, solar)
	if err != nil {
		return Intent{}, err
	}

	// Step 3: days preserved verbatim (single dated occurrences arrive
	// with an already-empty Days from their adapter).
	days := in.Days

	// Step 4: behavior defaults.
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	repeat := in.Repeat
	if repeat == "" {
		repeat = "none"
	}
	stopType := in.StopType
	if stopType == "" {
		stopType = model.StopGraceful
	}

	// Step 5: ownership.
	ownership := model.Ownership{
		Managed:    in.Managed,
		Locked:     in.Locked,
		Controller: in.Controller,
	}

	// Step 6: correlation.
	correlation := model.Correlation{
		SourceUID:     in.SourceUID,
		ExternalIDs:   in.ExternalIDs,
		CalendarScope: in.CalendarScope,
	}

	// Step 7: identity canonicalization (fatal on forbidden field or
	// missing required field — identity.HashIdentity enforces this).
	ident := model.Identity{
		Type:   in.Type,
		Target: target,
		Timing: model.Timing{
			StartDate: in.StartDate,
			EndDate:   in.EndDate,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
			Days:      days,
		},
	}
	identityHash, _, err := identity.HashIdentity(ident)
	if err != nil {
		return Intent{}, err
	}

	payload := model.Payload{
		Args:              in.Args,
		ResolvedStartDate: resolvedStart,
		ResolvedEndDate:   resolvedEnd,
		ResolvedStartTime: resolvedStartTime,
		ResolvedEndTime:   resolvedEndTime,
		SymbolicStartDate: symbolicStart,
		SymbolicEndDate:   symbolicEnd,
		SymbolicStartTime: symbolicStartTime,
		SymbolicEndTime:   symbolicEndTime,
		IsOverride:        in.IsOverride,
		OriginalStart:     in.OriginalStart,
		AllDay:            in.AllDay,
	}

	subEvent := model.SubEvent{
		Timing: model.Timing{
			StartDate: model.HardDate(*resolvedStart),
			EndDate:   model.HardDate(*resolvedEnd),
			StartTime: model.HardTime(*resolvedStartTime),
			EndTime:   model.HardTime(*resolvedEndTime),
			Days:      days,
		},
		Behavior: model.Behavior{Enabled: enabled, Repeat: repeat, StopType: stopType},
		Payload:  payload,
	}

	// Step 8: hashing.
	stateHash, err := identity.SubEventStateHash(subEvent)
	if err != nil {
		return Intent{}, err
	}
	subEvent.StateHash = stateHash

	provenance := model.Provenance{
		UpdatedAtEpoch: in.UpdatedAtEpoch,
		CreatedAtEpoch: in.CreatedAtEpoch,
		DTStampEpoch:   in.DTStampEpoch,
	}

	return Intent{
		IdentityHash:   identityHash,
		Identity:       ident,
		Ownership:      ownership,
		Correlation:    correlation,
		Provenance:     provenance,
		SubEvents:      []model.SubEvent{subEvent},
		EventStateHash: identity.EventStateHash([]string{stateHash}),
	}, nil
}

func stripSequenceSuffix(target string) string {
	for _, suffix := range sequenceSuffixes {
		if len(target) > len(suffix) && strings.EqualFold(target[len(target)-len(suffix):], suffix) {
			return target[:len(target)-len(suffix)]
		}
	}
	return target
}

// resolveDate hard-resolves a DateSpec, returning the resolved date
// plus the symbolic companion to retain in the payload (nil if the
// spec was already hard).
func resolveDate(d model.DateSpec, year int, holiday HolidayResolver) (*civil.Date, *model.SymbolicDate, error) {
	if d.Hard != nil {
		hard := *d.Hard
		return &hard, nil, nil
	}
	if d.Symbolic == nil {
		return nil, nil, gcserr.New(gcserr.CodeIdentityMissingField, gcserr.KindInvariantViolation,
			"timing date must carry either a hard or symbolic value", gcserr.Context{})
	}
	resolveYear := year
	if d.Symbolic.Year != nil {
		resolveYear = *d.Symbolic.Year
	}
	if holiday == nil {
		return nil, nil, gcserr.New(gcserr.CodeSourceMalformed, gcserr.KindSourceMalformed,
			"symbolic date present but no holiday resolver configured", gcserr.Context{Field: d.Symbolic.Name})
	}
	resolved, err := holiday.Resolve(d.Symbolic.Name, resolveYear)
	if err != nil {
		return nil, nil, gcserr.Wrap(gcserr.CodeSourceMalformed, gcserr.KindSourceMalformed,
			"holiday resolver failed", gcserr.Context{Field: d.Symbolic.Name}, err)
	}
	return &resolved, d.Symbolic, nil
}

func resolveTime(t model.TimeSpec, onDate *civil.Date, loc Location, solar SolarOracle) (*civil.Time, *model.SymbolicTime, error) {
	if t.Hard != nil {
		hard := *t.Hard
		return &hard, nil, nil
	}
	if t.Symbolic == nil {
		return nil, nil, gcserr.New(gcserr.CodeIdentityMissingField, gcserr.KindInvariantViolation,
			"timing time must carry either a hard or symbolic value", gcserr.Context{})
	}
	if solar == nil {
		return nil, nil, gcserr.New(gcserr.CodeSourceMalformed, gcserr.KindSourceMalformed,
			"symbolic time present but no solar oracle configured", gcserr.Context{Field: string(t.Symbolic.Kind)})
	}
	if onDate == nil {
		return nil, nil, gcserr.New(gcserr.CodeIdentityMissingField, gcserr.KindInvariantViolation,
			"symbolic time requires a resolved date to anchor against", gcserr.Context{})
	}
	resolved, err := solar.Resolve(*onDate, loc.Lat, loc.Lon, t.Symbolic.Kind, t.Symbolic.OffsetMin)
	if err != nil {
		return nil, nil, gcserr.Wrap(gcserr.CodeSourceMalformed, gcserr.KindSourceMalformed,
			"solar oracle failed", gcserr.Context{Field: string(t.Symbolic.Kind)}, err)
	}
	return &resolved, t.Symbolic, nil
}
