package intent

import (
	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/gcssync/gcs/internal/core/recurrence"
	"github.com/gcssync/gcs/internal/core/snapshot"
)

// CalendarAdapterConfig is the per-bundle context the calendar side of
// IntentNormalizer needs beyond what the bundle itself carries.
type CalendarAdapterConfig struct {
	Type           model.EntityType
	Target         string
	CalendarScope  string
	ResolutionYear int
	Location       Location
}

// NormalizeBundle is the calendar adapter: it expands bundle's base
// row via RecurrenceExpander (folding in cancelled dates as EXDATEs),
// substitutes any occurrence an OverrideIntent retimes, and normalizes
// every resulting occurrence into a per-occurrence Intent.
func NormalizeBundle(bundle *snapshot.Bundle, horizonStart, horizonEnd civil.DateTime, cfg CalendarAdapterConfig, holiday HolidayResolver, solar SolarOracle) ([]Intent, error) {
	base := bundle.Base

	exdates := make([]civil.DateTime, 0, len(base.ExDates)+len(bundle.CancelledDates))
	exdates = append(exdates, base.ExDates...)
	for cancelled := range bundle.CancelledDates {
		exdates = append(exdates, cancelled)
	}

	baseRow := recurrence.BaseRow{
		UID:     bundle.UID,
		Start:   base.Start,
		End:     base.End,
		AllDay:  base.IsAllDay,
		Rule:    base.Rule,
		ExDates: exdates,
	}

	occs, err := recurrence.Expand(baseRow, horizonStart, horizonEnd)
	if err != nil {
		return nil, err
	}

	overridden := make(map[civil.DateTime]bool, len(bundle.Overrides))
	for _, ov := range bundle.Overrides {
		overridden[ov.OriginalStart] = true
	}

	intents := make([]Intent, 0, len(occs)+len(bundle.Overrides))
	for _, occ := range occs {
		if overridden[occ.Start] {
			continue // replaced by its override below
		}
		it, err := Normalize(baseOccurrenceInput(cfg, bundle, base.Provenance, occ), holiday, solar)
		if err != nil {
			return nil, err
		}
		intents = append(intents, it)
	}

	for _, ov := range bundle.Overrides {
		if ov.Start.Before(horizonStart) || horizonEnd.Before(ov.Start) {
			continue
		}
		it, err := Normalize(overrideInput(cfg, bundle, ov), holiday, solar)
		if err != nil {
			return nil, err
		}
		intents = append(intents, it)
	}

	return intents, nil
}

func baseOccurrenceInput(cfg CalendarAdapterConfig, bundle *snapshot.Bundle, prov snapshot.Provenance, occ recurrence.Occurrence) Input {
	return Input{
		Type:           cfg.Type,
		Target:         cfg.Target,
		StartDate:      model.HardDate(occ.Start.Date),
		EndDate:        model.HardDate(occ.End.Date),
		StartTime:      model.HardTime(occ.Start.Time),
		EndTime:        model.HardTime(occ.End.Time),
		AllDay:         occ.AllDay,
		Managed:        true,
		Controller:     "calendar",
		SourceUID:      bundle.UID,
		CalendarScope:  cfg.CalendarScope,
		ResolutionYear: cfg.ResolutionYear,
		Location:       cfg.Location,
		UpdatedAtEpoch: prov.UpdatedAtEpoch,
		CreatedAtEpoch: prov.CreatedAtEpoch,
		DTStampEpoch:   prov.DTStampEpoch,
	}
}

func overrideInput(cfg CalendarAdapterConfig, bundle *snapshot.Bundle, ov snapshot.OverrideIntent) Input {
	originalStart := ov.OriginalStart
	return Input{
		Type:           cfg.Type,
		Target:         cfg.Target,
		StartDate:      model.HardDate(ov.Start.Date),
		EndDate:        model.HardDate(ov.End.Date),
		StartTime:      model.HardTime(ov.Start.Time),
		EndTime:        model.HardTime(ov.End.Time),
		Enabled:        ov.Row.Enabled,
		StopType:       ov.Row.StopType,
		Args:           ov.Row.Args,
		IsOverride:     true,
		OriginalStart:  &originalStart,
		Managed:        true,
		Controller:     "calendar",
		SourceUID:      bundle.UID,
		CalendarScope:  cfg.CalendarScope,
		ResolutionYear: cfg.ResolutionYear,
		Location:       cfg.Location,
		UpdatedAtEpoch: ov.Row.Provenance.UpdatedAtEpoch,
		CreatedAtEpoch: ov.Row.Provenance.CreatedAtEpoch,
		DTStampEpoch:   ov.Row.Provenance.DTStampEpoch,
	}
}
