package store

import (
	"testing"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/identity"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent(t *testing.T, target string) model.Event {
	t.Helper()
	id := model.Identity{
		Type:   model.EntityPlaylist,
		Target: target,
		Timing: model.Timing{
			StartDate: model.HardDate(civil.NewDate(2025, 1, 1)),
			EndDate:   model.HardDate(civil.NewDate(2025, 1, 1)),
			StartTime: model.HardTime(civil.NewTime(9, 0, 0)),
			EndTime:   model.HardTime(civil.NewTime(10, 0, 0)),
		},
	}
	hash, _, err := identity.HashIdentity(id)
	require.NoError(t, err)

	subStateHash, err := identity.SubEventStateHash(model.SubEvent{Timing: id.Timing})
	require.NoError(t, err)

	return model.Event{
		ID:           hash,
		IdentityHash: hash,
		StateHash:    identity.EventStateHash([]string{subStateHash}),
		Identity:     id,
		Ownership:    model.Ownership{Managed: true, Controller: "calendar"},
		SubEvents:    []model.SubEvent{{Timing: id.Timing, StateHash: subStateHash}},
	}
}

func TestUpsertEvent_RejectsIdentityMutation(t *testing.T) {
	original := sampleEvent(t, "show-a")
	m := model.Manifest{Events: map[string]model.Event{original.ID: original}}

	mutated := original
	mutated.Identity.Target = "show-b" // changes what the identity hash should be, but ID/IdentityHash left stale

	_, err := UpsertEvent(m, mutated)
	require.Error(t, err)
}

func TestUpsertEvent_InsertsNewEvent(t *testing.T) {
	evt := sampleEvent(t, "show-a")

	updated, err := UpsertEvent(model.Manifest{}, evt)
	require.NoError(t, err)
	require.Len(t, updated.Events, 1)
	assert.Equal(t, evt.ID, updated.Events[evt.ID].ID)
}

func TestUpsertEvent_RejectsManagedEventWithNoSubEvents(t *testing.T) {
	evt := sampleEvent(t, "show-a")
	evt.StateHash = ""
	evt.SubEvents = nil

	_, err := UpsertEvent(model.Manifest{}, evt)
	require.Error(t, err)
}

func TestValidateEvent_RejectsKeyMismatch(t *testing.T) {
	evt := sampleEvent(t, "show-a")
	err := ValidateEvent("wrong-key", evt)
	require.Error(t, err)
}

func TestValidateEvent_AcceptsWellFormedEvent(t *testing.T) {
	evt := sampleEvent(t, "show-a")
	require.NoError(t, ValidateEvent(evt.ID, evt))
}
