// Package reconcile implements the Reconciler: a three-way merge of
// calendar-derived, scheduler-derived, and last-applied Manifests that
// emits directional actions.
package reconcile

import (
	"sort"
	"strings"

	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/model"
)

// SyncMode controls which direction(s) the reconciler drives.
type SyncMode string

const (
	SyncBoth               SyncMode = "both"
	SyncCalendarToScheduler SyncMode = "calendar_to_scheduler"
	SyncSchedulerToCalendar SyncMode = "scheduler_to_calendar"
)

// ActionType is the kind of directional operation an Action represents.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
	ActionNoop   ActionType = "noop"
	ActionBlock  ActionType = "block"
)

// Action is one directional operation the reconciler has decided on
// for a single identity.
type Action struct {
	Type         ActionType
	Target       model.SourceKind
	Authority    model.SourceKind
	IdentityHash string
	Reason       string
	Event        *model.Event
}

// Input bundles everything the reconciler reads.
type Input struct {
	CalendarManifest  model.Manifest
	SchedulerManifest model.Manifest
	CurrentManifest   model.Manifest

	CalendarUpdatedAt  map[string]int64
	SchedulerUpdatedAt map[string]int64
	Tombstones         model.TombstoneTable

	CalendarSnapshotEpoch  int64
	SchedulerSnapshotEpoch int64
}

// Config is the reconciler's policy knobs.
type Config struct {
	SyncMode      SyncMode
	CalendarScope string
	// TieBreakWinner decides which source wins when both sides have
	// equal updated_at. Defaults to model.SourceScheduler.
	TieBreakWinner model.SourceKind
}

// Result is the reconciler's output: the merged target manifest plus
// the directional actions needed to converge both sides toward it.
type Result struct {
	TargetManifest    model.Manifest
	Actions           []Action
	InferredTombstones model.TombstoneTable
}

// Reconcile runs the per-identity decision tree over every identity
// hash appearing in any of the three input manifests.
func Reconcile(in Input, cfg Config) (Result, error) {
	if cfg.TieBreakWinner == "" {
		cfg.TieBreakWinner = model.SourceScheduler
	}
	if cfg.SyncMode == "" {
		cfg.SyncMode = SyncBoth
	}

	if err := checkSafetyStop(in); err != nil {
		return Result{}, err
	}

	inferred := inferReplacementTombstones(in)

	hashes := unionHashes(in.CalendarManifest.Events, in.SchedulerManifest.Events, in.CurrentManifest.Events)

	targetEvents := make(map[string]model.Event, len(hashes))
	var actions []Action

	for _, hash := range hashes {
		current, hasCurrent := in.CurrentManifest.Events[hash]
		cal, hasCal := in.CalendarManifest.Events[hash]
		sch, hasSch := in.SchedulerManifest.Events[hash]

		// Step 1: lock/unmanaged preservation.
		if hasCurrent && current.Ownership.Locked {
			targetEvents[hash] = current
			actions = append(actions, Action{Type: ActionBlock, IdentityHash: hash, Reason: "locked", Event: &current})
			continue
		}
		if hasCurrent && !current.Ownership.Managed {
			targetEvents[hash] = current
			actions = append(actions, Action{Type: ActionNoop, IdentityHash: hash, Reason: "unmanaged", Event: &current})
			continue
		}

		if cfg.SyncMode != SyncBoth {
			evt, acts := resolveOneWay(hash, cfg, cal, hasCal, sch, hasSch)
			if evt != nil {
				targetEvents[hash] = *evt
			}
			actions = append(actions, acts...)
			continue
		}

		evt, acts, err := resolveTwoWay(hash, in, cfg, inferred, cal, hasCal, sch, hasSch, current, hasCurrent)
		if err != nil {
			return Result{}, err
		}
		if evt != nil {
			targetEvents[hash] = *evt
		}
		actions = append(actions, acts...)
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].IdentityHash != actions[j].IdentityHash {
			return actions[i].IdentityHash < actions[j].IdentityHash
		}
		if actions[i].Target != actions[j].Target {
			return actions[i].Target < actions[j].Target
		}
		return actions[i].Type < actions[j].Type
	})

	return Result{
		TargetManifest: model.Manifest{
			Version:     in.CurrentManifest.Version,
			GeneratedAt: in.CurrentManifest.GeneratedAt,
			Events:      targetEvents,
		},
		Actions:            actions,
		InferredTombstones: inferred,
	}, nil
}

func checkSafetyStop(in Input) error {
	if len(in.CalendarManifest.Events) == 0 || len(in.SchedulerManifest.Events) == 0 {
		return nil
	}
	for hash := range in.CalendarManifest.Events {
		if _, ok := in.SchedulerManifest.Events[hash]; ok {
			return nil
		}
	}
	return gcserr.New(gcserr.CodeSafetyStopNoSharedIdentities, gcserr.KindSafetyStop,
		"calendar and scheduler manifests are both non-empty but share no identities", gcserr.Context{})
}

func resolveOneWay(hash string, cfg Config, cal model.Event, hasCal bool, sch model.Event, hasSch bool) (*model.Event, []Action) {
	authority := model.SourceCalendar
	other := model.SourceScheduler
	winner, hasWinner := cal, hasCal
	loserExists := hasSch
	if cfg.SyncMode == SyncSchedulerToCalendar {
		authority = model.SourceScheduler
		other = model.SourceCalendar
		winner, hasWinner = sch, hasSch
		loserExists = hasCal
	}

	var actions []Action
	actions = append(actions, Action{Type: ActionNoop, Target: authority, Authority: authority, IdentityHash: hash, Reason: "authoritative-source"})

	if !hasWinner {
		if loserExists {
			actions = append(actions, Action{Type: ActionDelete, Target: other, Authority: authority, IdentityHash: hash, Reason: "mirrored-delete"})
		}
		return nil, actions
	}

	evt := winner
	actionType := ActionUpdate
	if !loserExists {
		actionType = ActionCreate
	}
	actions = append(actions, Action{Type: actionType, Target: other, Authority: authority, IdentityHash: hash, Reason: "mirrored-" + string(actionType), Event: &evt})
	return &evt, actions
}

func resolveTwoWay(hash string, in Input, cfg Config, inferred model.TombstoneTable,
	cal model.Event, hasCal bool, sch model.Event, hasSch bool, current model.Event, hasCurrent bool) (*model.Event, []Action, error) {

	// Step 4: state equality — both present, same state hash.
	if hasCal && hasSch && cal.StateHash == sch.StateHash {
		evt := cal
		return &evt, []Action{
			{Type: ActionNoop, Target: model.SourceCalendar, Authority: model.SourceCalendar, IdentityHash: hash, Reason: "converged"},
			{Type: ActionNoop, Target: model.SourceScheduler, Authority: model.SourceCalendar, IdentityHash: hash, Reason: "converged"},
		}, nil
	}

	// Step 5: presence vs absence.
	if hasCal != hasSch {
		return resolvePresenceVsAbsence(hash, in, inferred, cal, hasCal, sch, hasSch, current, hasCurrent)
	}

	if !hasCal && !hasSch {
		// Neither source nor current carries it (stale hash from a
		// prior run's union); nothing to target.
		return nil, nil, nil
	}

	// Step 6: both present, different state — later updated_at wins,
	// ties favor the configured TieBreakWinner (default: scheduler).
	calUA := in.CalendarUpdatedAt[hash]
	schUA := in.SchedulerUpdatedAt[hash]

	winnerSide := model.SourceScheduler
	switch {
	case calUA > schUA:
		winnerSide = model.SourceCalendar
	case schUA > calUA:
		winnerSide = model.SourceScheduler
	default:
		winnerSide = cfg.TieBreakWinner
	}

	winner := sch
	loser := cal
	loserSide := model.SourceCalendar
	if winnerSide == model.SourceCalendar {
		winner = cal
		loser = sch
		loserSide = model.SourceScheduler
	}

	winner = mergeCorrelation(winner, loser, cal, current, hasCurrent)
	evt := winner
	return &evt, []Action{
		{Type: ActionNoop, Target: winnerSide, Authority: winnerSide, IdentityHash: hash, Reason: "updated-at"},
		{Type: ActionUpdate, Target: loserSide, Authority: winnerSide, IdentityHash: hash, Reason: "updated-at", Event: &evt},
	}, nil
}

func resolvePresenceVsAbsence(hash string, in Input, inferred model.TombstoneTable,
	cal model.Event, hasCal bool, sch model.Event, hasSch bool, current model.Event, hasCurrent bool) (*model.Event, []Action, error) {

	present, presentSide, presentUpdatedAt := sch, model.SourceScheduler, in.SchedulerUpdatedAt[hash]
	missingSide := model.SourceCalendar
	if hasCal {
		present, presentSide, presentUpdatedAt = cal, model.SourceCalendar, in.CalendarUpdatedAt[hash]
		missingSide = model.SourceScheduler
	}

	tombstoneEpoch, hasTombstone := in.Tombstones.Get(model.SourceKind(missingSide), hash)
	if !hasTombstone {
		if epoch, ok := inferred.Get(model.SourceKind(missingSide), hash); ok {
			tombstoneEpoch, hasTombstone = epoch, true
		}
	}

	// A calendar tombstone is only trusted when current's correlation
	// still targets the active scope.
	if missingSide == model.SourceCalendar && hasTombstone && hasCurrent {
		if current.Correlation.CalendarScope != in.CalendarScope {
			hasTombstone = false
		}
	}

	if hasTombstone && tombstoneEpoch >= presentUpdatedAt {
		// Missing side wins: the identity is gone.
		return nil, []Action{
			{Type: ActionNoop, Target: missingSide, Authority: missingSide, IdentityHash: hash, Reason: "tombstoned"},
			{Type: ActionDelete, Target: presentSide, Authority: missingSide, IdentityHash: hash, Reason: "tombstoned"},
		}, nil
	}

	// No trusted tombstone: present side is preserved, never
	// destructively dropped.
	evt := mergeCorrelation(present, model.Event{}, cal, current, hasCurrent)
	actionType := ActionCreate
	if hasCurrent {
		actionType = ActionUpdate
	}
	return &evt, []Action{
		{Type: ActionNoop, Target: presentSide, Authority: presentSide, IdentityHash: hash, Reason: "preserved"},
		{Type: actionType, Target: missingSide, Authority: presentSide, IdentityHash: hash, Reason: "preserved", Event: &evt},
	}, nil
}

// mergeCorrelation folds correlation lineage (external ids, source
// uid, calendar scope) from current and the calendar side into the
// winning event when the winner is missing them, so lineage survives
// an authority change.
func mergeCorrelation(winner model.Event, loser model.Event, cal model.Event, current model.Event, hasCurrent bool) model.Event {
	if winner.Correlation.SourceUID == "" {
		if cal.Correlation.SourceUID != "" {
			winner.Correlation.SourceUID = cal.Correlation.SourceUID
		} else if hasCurrent {
			winner.Correlation.SourceUID = current.Correlation.SourceUID
		}
	}
	if winner.Correlation.CalendarScope == "" {
		if cal.Correlation.CalendarScope != "" {
			winner.Correlation.CalendarScope = cal.Correlation.CalendarScope
		} else if hasCurrent {
			winner.Correlation.CalendarScope = current.Correlation.CalendarScope
		}
	}
	if len(winner.Correlation.ExternalIDs) == 0 {
		if len(cal.Correlation.ExternalIDs) > 0 {
			winner.Correlation.ExternalIDs = cal.Correlation.ExternalIDs
		} else if hasCurrent && len(current.Correlation.ExternalIDs) > 0 {
			winner.Correlation.ExternalIDs = current.Correlation.ExternalIDs
		}
	}
	return winner
}

// replacementSignature groups identities that plausibly denote "the
// same logical show," so an edit that changes Timing enough to shift
// the identity hash doesn't read as delete+create across sources.
// Every field but the date range participates: two events differing
// only in which dates they cover are the same show moved; two events
// that share a target but run at a different time of day or on a
// different weekday mask are different shows and must never be
// paired as a replacement.
type replacementSignature struct {
	Type        model.EntityType
	Target      string
	AllDay      bool
	StartHard   string
	StartKind   string
	StartOffset int
	EndHard     string
	EndKind     string
	EndOffset   int
	DaysWeekly  string
	DaysParity  string
}

func signatureOf(e model.Event) replacementSignature {
	var allDay bool
	if len(e.SubEvents) > 0 {
		allDay = e.SubEvents[0].Payload.AllDay
	}
	t := e.Identity.Timing
	return replacementSignature{
		Type:        e.Identity.Type,
		Target:      e.Identity.Target,
		AllDay:      allDay,
		StartHard:   timeSpecHard(t.StartTime),
		StartKind:   timeSpecKind(t.StartTime),
		StartOffset: timeSpecOffset(t.StartTime),
		EndHard:     timeSpecHard(t.EndTime),
		EndKind:     timeSpecKind(t.EndTime),
		EndOffset:   timeSpecOffset(t.EndTime),
		DaysWeekly:  daysWeeklySignature(t.Days),
		DaysParity:  daysParitySignature(t.Days),
	}
}

func timeSpecHard(t model.TimeSpec) string {
	if t.Hard == nil {
		return ""
	}
	return t.Hard.String()
}

func timeSpecKind(t model.TimeSpec) string {
	if t.Symbolic == nil {
		return ""
	}
	return string(t.Symbolic.Kind)
}

func timeSpecOffset(t model.TimeSpec) int {
	if t.Symbolic == nil {
		return 0
	}
	return t.Symbolic.OffsetMin
}

func daysWeeklySignature(d model.Days) string {
	if len(d.Weekly) == 0 {
		return ""
	}
	sorted := d.Weekly.Sorted()
	strs := make([]string, len(sorted))
	for i, w := range sorted {
		strs[i] = string(w)
	}
	return strings.Join(strs, ",")
}

func daysParitySignature(d model.Days) string {
	if d.Parity == nil {
		return ""
	}
	return string(*d.Parity)
}

// inferReplacementTombstones implements cross-identity replacement
// inference. When an identity present in
// the last-applied manifest vanishes from one side's new manifest
// while a different, previously-unseen identity with the same
// replacementSignature (every identity field except the date range)
// appears on that same side, the vanished
// identity is treated as replaced rather than as an ambiguous
// disappearance — it is assigned a synthetic tombstone on that side,
// dated to that side's snapshot epoch, so step 5 does not re-create it
// defensively on the other side.
func inferReplacementTombstones(in Input) model.TombstoneTable {
	out := model.TombstoneTable{
		model.SourceCalendar:  {},
		model.SourceScheduler: {},
	}

	infer := func(side model.SourceKind, newManifest model.Manifest, snapshotEpoch int64) {
		vanished := map[string]model.Event{}
		for hash, evt := range in.CurrentManifest.Events {
			if _, stillPresent := newManifest.Events[hash]; stillPresent {
				continue
			}
			if _, alreadyTombstoned := in.Tombstones.Get(side, hash); alreadyTombstoned {
				continue
			}
			vanished[hash] = evt
		}
		if len(vanished) == 0 {
			return
		}

		appeared := map[replacementSignature][]string{}
		for hash, evt := range newManifest.Events {
			if _, existedBefore := in.CurrentManifest.Events[hash]; existedBefore {
				continue
			}
			sig := signatureOf(evt)
			appeared[sig] = append(appeared[sig], hash)
		}

		for hash, evt := range vanished {
			sig := signatureOf(evt)
			candidates, ok := appeared[sig]
			if !ok || len(candidates) == 0 {
				continue
			}
			out[side][hash] = snapshotEpoch
		}
	}

	infer(model.SourceCalendar, in.CalendarManifest, in.CalendarSnapshotEpoch)
	infer(model.SourceScheduler, in.SchedulerManifest, in.SchedulerSnapshotEpoch)

	return out
}

func unionHashes(maps ...map[string]model.Event) []string {
	seen := make(map[string]bool)
	for _, m := range maps {
		for k := range m {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
