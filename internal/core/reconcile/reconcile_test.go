package reconcile

import (
	"testing"
	"time"

	"github.com/gcssync/gcs/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evt(hash, stateHash string, managed, locked bool) model.Event {
	return model.Event{
		ID:           hash,
		IdentityHash: hash,
		StateHash:    stateHash,
		Identity:     model.Identity{Type: model.EntityPlaylist, Target: "show-" + hash},
		Ownership:    model.Ownership{Managed: managed, Locked: locked},
	}
}

func manifestOf(events ...model.Event) model.Manifest {
	m := model.Manifest{Events: map[string]model.Event{}}
	for _, e := range events {
		m.Events[e.IdentityHash] = e
	}
	return m
}

// TestReconcile_SchedulerWinsOnTie covers both sides carrying identity X
// with different state, equal updated_at — the scheduler wins (default
// tie-break), calendar receives the update.
func TestReconcile_SchedulerWinsOnTie(t *testing.T) {
	cal := evt("X", "cal-state", true, false)
	sch := evt("X", "sch-state", true, false)

	in := Input{
		CalendarManifest:   manifestOf(cal),
		SchedulerManifest:  manifestOf(sch),
		CurrentManifest:    manifestOf(evt("X", "old-state", true, false)),
		CalendarUpdatedAt:  map[string]int64{"X": 1000},
		SchedulerUpdatedAt: map[string]int64{"X": 1000},
	}

	result, err := Reconcile(in, Config{})
	require.NoError(t, err)

	target := result.TargetManifest.Events["X"]
	assert.Equal(t, "sch-state", target.StateHash)

	var sawCalUpdate, sawSchNoop bool
	for _, a := range result.Actions {
		if a.Target == model.SourceCalendar && a.Type == ActionUpdate {
			sawCalUpdate = true
		}
		if a.Target == model.SourceScheduler && a.Type == ActionNoop {
			sawSchNoop = true
		}
	}
	assert.True(t, sawCalUpdate, "expected calendar update action")
	assert.True(t, sawSchNoop, "expected scheduler noop action")
}

// TestReconcile_UnmanagedPreservation covers an identity the current
// manifest holds as unmanaged while the calendar carries it as managed:
// the current event is carried through untouched.
func TestReconcile_UnmanagedPreservation(t *testing.T) {
	current := evt("X", "state", false, false)
	cal := evt("X", "new-state", true, false)

	in := Input{
		CalendarManifest:  manifestOf(cal),
		SchedulerManifest: manifestOf(),
		CurrentManifest:   manifestOf(current),
	}

	result, err := Reconcile(in, Config{})
	require.NoError(t, err)

	assert.Equal(t, current, result.TargetManifest.Events["X"])
	require.Len(t, result.Actions, 1)
	assert.Equal(t, ActionNoop, result.Actions[0].Type)
	assert.Equal(t, "unmanaged", result.Actions[0].Reason)
}

// TestReconcile_SafetyStop covers a calendar and a scheduler manifest
// that are both non-empty but share no identity, with no prior manifest.
func TestReconcile_SafetyStop(t *testing.T) {
	in := Input{
		CalendarManifest:  manifestOf(evt("A", "s", true, false)),
		SchedulerManifest: manifestOf(evt("B", "s", true, false)),
		CurrentManifest:   model.Manifest{},
	}

	result, err := Reconcile(in, Config{})
	require.Error(t, err)
	assert.Empty(t, result.Actions)
	assert.Nil(t, result.TargetManifest.Events)
}

// TestReconcile_LockedNeverMutated covers: for every identity where
// current.locked, the target equals current and the action is block.
func TestReconcile_LockedNeverMutated(t *testing.T) {
	current := evt("X", "state", true, true)
	cal := evt("X", "different-state", true, false)

	in := Input{
		CalendarManifest:  manifestOf(cal),
		SchedulerManifest: manifestOf(),
		CurrentManifest:   manifestOf(current),
	}

	result, err := Reconcile(in, Config{})
	require.NoError(t, err)
	assert.Equal(t, current, result.TargetManifest.Events["X"])
	require.Len(t, result.Actions, 1)
	assert.Equal(t, ActionBlock, result.Actions[0].Type)
}

// TestReconcile_Idempotence covers: applying the result and
// re-reconciling with current == target and both sides already
// converged yields only noop actions.
func TestReconcile_Idempotence(t *testing.T) {
	cal := evt("X", "state", true, false)
	sch := evt("X", "state", true, false)

	in := Input{
		CalendarManifest:  manifestOf(cal),
		SchedulerManifest: manifestOf(sch),
		CurrentManifest:   manifestOf(evt("X", "state", true, false)),
	}

	result, err := Reconcile(in, Config{})
	require.NoError(t, err)
	for _, a := range result.Actions {
		assert.Equal(t, ActionNoop, a.Type, "converged state must produce only noop actions")
	}

	in2 := in
	in2.CurrentManifest = result.TargetManifest
	result2, err := Reconcile(in2, Config{})
	require.NoError(t, err)
	for _, a := range result2.Actions {
		assert.Equal(t, ActionNoop, a.Type)
	}
}

// TestReconcile_Monotonicity covers: if only the calendar side's
// updated_at increases and no tombstone flips, the winner cannot
// switch away from the calendar on a later run.
func TestReconcile_Monotonicity(t *testing.T) {
	cal := evt("X", "cal-state", true, false)
	sch := evt("X", "sch-state", true, false)

	in := Input{
		CalendarManifest:   manifestOf(cal),
		SchedulerManifest:  manifestOf(sch),
		CurrentManifest:    manifestOf(evt("X", "old", true, false)),
		CalendarUpdatedAt:  map[string]int64{"X": 2000},
		SchedulerUpdatedAt: map[string]int64{"X": 1000},
	}

	result, err := Reconcile(in, Config{})
	require.NoError(t, err)
	assert.Equal(t, "cal-state", result.TargetManifest.Events["X"].StateHash)

	in.CalendarUpdatedAt["X"] = 3000
	result2, err := Reconcile(in, Config{})
	require.NoError(t, err)
	assert.Equal(t, "cal-state", result2.TargetManifest.Events["X"].StateHash)
}

func TestReconcile_OneWayCalendarToScheduler_MirrorsCreate(t *testing.T) {
	cal := evt("X", "state", true, false)
	in := Input{
		CalendarManifest:  manifestOf(cal),
		SchedulerManifest: manifestOf(),
		CurrentManifest:   model.Manifest{},
	}
	result, err := Reconcile(in, Config{SyncMode: SyncCalendarToScheduler})
	require.NoError(t, err)
	assert.Equal(t, cal, result.TargetManifest.Events["X"])

	var sawCreate bool
	for _, a := range result.Actions {
		if a.Target == model.SourceScheduler && a.Type == ActionCreate {
			sawCreate = true
		}
	}
	assert.True(t, sawCreate)
}

func TestReconcile_GeneratedAtCarriedFromCurrent(t *testing.T) {
	now := time.Now()
	in := Input{
		CalendarManifest:  manifestOf(evt("X", "s", true, false)),
		SchedulerManifest: manifestOf(evt("X", "s", true, false)),
		CurrentManifest:   model.Manifest{Version: 3, GeneratedAt: now, Events: map[string]model.Event{}},
	}
	result, err := Reconcile(in, Config{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TargetManifest.Version)
	assert.Equal(t, now, result.TargetManifest.GeneratedAt)
}
