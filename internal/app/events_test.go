package app

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcssync/gcs/internal/core/model"
	"github.com/gcssync/gcs/internal/core/reconcile"
)

func TestAggregateIDFor_StableAndDistinct(t *testing.T) {
	a := aggregateIDFor("hash-a")
	b := aggregateIDFor("hash-a")
	c := aggregateIDFor("hash-b")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNewActionsPlannedEvent(t *testing.T) {
	actions := []reconcile.Action{
		{Type: reconcile.ActionCreate, Target: model.SourceCalendar, IdentityHash: "h1"},
		{Type: reconcile.ActionDelete, Target: model.SourceScheduler, IdentityHash: "h2"},
	}
	runID := aggregateIDFor("run-fixture")

	evt := NewActionsPlannedEvent(runID, actions)

	require.NotNil(t, evt)
	assert.Equal(t, runID, evt.AggregateID())
	assert.Equal(t, 2, evt.ActionCount)
	assert.Equal(t, "gcs.actions.planned", evt.RoutingKey())
	assert.Equal(t, aggregateTypeReconcileAction, evt.AggregateType())
}

func TestNewActionAppliedEvent(t *testing.T) {
	action := reconcile.Action{Type: reconcile.ActionUpdate, Target: model.SourceCalendar, IdentityHash: "h3"}

	evt := NewActionAppliedEvent(action)

	assert.Equal(t, aggregateIDFor("h3"), evt.AggregateID())
	assert.Equal(t, "h3", evt.IdentityHash)
	assert.Equal(t, "gcs.action.applied", evt.RoutingKey())
	assert.False(t, evt.AppliedAt.IsZero())
}

func TestNewActionFailedEvent(t *testing.T) {
	action := reconcile.Action{Type: reconcile.ActionCreate, Target: model.SourceScheduler, IdentityHash: "h4"}
	cause := errors.New("caldav put: 503")

	evt := NewActionFailedEvent(action, cause)

	assert.Equal(t, aggregateIDFor("h4"), evt.AggregateID())
	assert.Equal(t, "caldav put: 503", evt.Reason)
	assert.Equal(t, "gcs.action.failed", evt.RoutingKey())
}
