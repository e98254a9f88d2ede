package app

import (
	"time"

	"github.com/google/uuid"

	"github.com/gcssync/gcs/internal/core/reconcile"
	"github.com/gcssync/gcs/internal/shared/domain"
)

// aggregateIDFor derives a stable uuid.UUID from an identity hash so
// the same logical event always maps to the same DomainEvent
// AggregateID, even though the core pipeline keys everything by the
// hex identity hash rather than a surrogate UUID.
func aggregateIDFor(identityHash string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(identityHash))
}

const aggregateTypeReconcileAction = "reconcile_action"

// ActionsPlannedEvent fires once per Reconcile call, carrying the full
// batch of Actions the run decided on, before anything is applied.
type ActionsPlannedEvent struct {
	domain.BaseEvent
	RunID       uuid.UUID
	ActionCount int
	Actions     []reconcile.Action
}

// NewActionsPlannedEvent builds the event for one reconcile run. runID
// doubles as the AggregateID since a planned batch has no single
// identity hash of its own.
func NewActionsPlannedEvent(runID uuid.UUID, actions []reconcile.Action) *ActionsPlannedEvent {
	return &ActionsPlannedEvent{
		BaseEvent:   domain.NewBaseEvent(runID, aggregateTypeReconcileAction, "gcs.actions.planned"),
		RunID:       runID,
		ActionCount: len(actions),
		Actions:     actions,
	}
}

// ActionAppliedEvent fires once per Action that Apply successfully
// writes to its target (scheduler file or CalDAV).
type ActionAppliedEvent struct {
	domain.BaseEvent
	IdentityHash string
	Action       reconcile.Action
	AppliedAt    time.Time
}

func NewActionAppliedEvent(action reconcile.Action) *ActionAppliedEvent {
	return &ActionAppliedEvent{
		BaseEvent:    domain.NewBaseEvent(aggregateIDFor(action.IdentityHash), aggregateTypeReconcileAction, "gcs.action.applied"),
		IdentityHash: action.IdentityHash,
		Action:       action,
		AppliedAt:    time.Now().UTC(),
	}
}

// ActionFailedEvent fires when Apply could not write an Action to its
// target, carrying the error string for the outbox's audit trail.
type ActionFailedEvent struct {
	domain.BaseEvent
	IdentityHash string
	Action       reconcile.Action
	Reason       string
}

func NewActionFailedEvent(action reconcile.Action, err error) *ActionFailedEvent {
	return &ActionFailedEvent{
		BaseEvent:    domain.NewBaseEvent(aggregateIDFor(action.IdentityHash), aggregateTypeReconcileAction, "gcs.action.failed"),
		IdentityHash: action.IdentityHash,
		Action:       action,
		Reason:       err.Error(),
	}
}
