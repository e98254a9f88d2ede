package app

import (
	"context"

	"github.com/google/uuid"

	"github.com/gcssync/gcs/internal/adapters/icslex"
	"github.com/gcssync/gcs/internal/adapters/schedulerfile"
	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/intent"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/gcssync/gcs/internal/core/reconcile"
	"github.com/gcssync/gcs/internal/shared/infrastructure/outbox"
)

// RunResult is what Plan and Apply both return: the reconciler's
// decision plus every warning collected along the way from either
// source's ingestion.
type RunResult struct {
	Reconcile reconcile.Result
	Warnings  []gcserr.Warning
}

// ingestBoth runs both sides of the pipeline and assembles the
// reconcile.Input every Plan/Apply/Adopt call starts from.
func (c *Container) ingestBoth(ctx context.Context) (reconcile.Input, []gcserr.Warning, error) {
	now := c.Now()
	horizon := HorizonFromConfig(c.Config.HorizonDays, now)

	calResult, err := c.IngestCalendar(ctx, horizon, now)
	if err != nil {
		return reconcile.Input{}, nil, err
	}
	schResult, err := c.IngestScheduler(now)
	if err != nil {
		return reconcile.Input{}, nil, err
	}

	current, err := c.Store.LoadManifest()
	if err != nil {
		return reconcile.Input{}, nil, err
	}
	updatedAt, err := c.Store.LoadUpdatedAt()
	if err != nil {
		return reconcile.Input{}, nil, err
	}
	tombstones, err := c.Store.LoadTombstones()
	if err != nil {
		return reconcile.Input{}, nil, err
	}

	warnings := append(append([]gcserr.Warning{}, calResult.Warnings...), schResult.Warnings...)

	input := reconcile.Input{
		CalendarManifest:       calResult.Manifest,
		SchedulerManifest:      schResult.Manifest,
		CurrentManifest:        current,
		CalendarUpdatedAt:      updatedAt[model.SourceCalendar],
		SchedulerUpdatedAt:     updatedAt[model.SourceScheduler],
		Tombstones:             tombstones,
		CalendarSnapshotEpoch:  now.Unix(),
		SchedulerSnapshotEpoch: now.Unix(),
	}
	return input, warnings, nil
}

func (c *Container) reconcileConfig() reconcile.Config {
	return reconcile.Config{
		SyncMode:       reconcile.SyncMode(c.Config.SyncMode),
		CalendarScope:  c.Config.SchedulerCalendarScope,
		TieBreakWinner: model.SourceKind(c.Config.TieBreakWinner),
	}
}

// Plan runs the full three-way reconcile and returns its decision
// without writing anything to either side or to the StateStore — the
// CLI's `plan` verb.
func (c *Container) Plan(ctx context.Context) (RunResult, error) {
	input, warnings, err := c.ingestBoth(ctx)
	if err != nil {
		return RunResult{}, err
	}
	result, err := reconcile.Reconcile(input, c.reconcileConfig())
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Reconcile: result, Warnings: warnings}, nil
}

// Apply runs Plan, then carries out every directional action it
// decided on (calendar writes via CalDAV, scheduler writes via the
// flat ndjson file), publishes a reconcile-event trail through the
// outbox, and persists the resulting manifest and tombstones —
// the CLI's `apply` verb.
func (c *Container) Apply(ctx context.Context) (RunResult, error) {
	input, warnings, err := c.ingestBoth(ctx)
	if err != nil {
		return RunResult{}, err
	}
	result, err := reconcile.Reconcile(input, c.reconcileConfig())
	if err != nil {
		return RunResult{}, err
	}

	c.publishPlanned(ctx, result.Actions)

	if err := c.applyCalendarActions(ctx, result.Actions); err != nil {
		return RunResult{}, err
	}
	if err := c.applySchedulerActions(result.TargetManifest); err != nil {
		return RunResult{}, err
	}

	if err := c.Store.SaveManifest(result.TargetManifest); err != nil {
		return RunResult{}, err
	}
	if err := c.Store.SaveTombstones(mergeTombstones(input.Tombstones, result.InferredTombstones)); err != nil {
		return RunResult{}, err
	}

	return RunResult{Reconcile: result, Warnings: warnings}, nil
}

func (c *Container) publishPlanned(ctx context.Context, actions []reconcile.Action) {
	if c.OutboxRepo == nil {
		return
	}
	msg, err := outbox.NewMessage(NewActionsPlannedEvent(uuid.New(), actions))
	if err != nil {
		c.Logger.Warn("encoding actions-planned event", "error", err)
		return
	}
	if err := c.OutboxRepo.Save(ctx, msg); err != nil {
		c.Logger.Warn("saving actions-planned event", "error", err)
	}
}

func (c *Container) publishOutcome(ctx context.Context, action reconcile.Action, applyErr error) {
	if c.OutboxRepo == nil {
		return
	}
	var msg *outbox.Message
	var err error
	if applyErr != nil {
		msg, err = outbox.NewMessage(NewActionFailedEvent(action, applyErr))
	} else {
		msg, err = outbox.NewMessage(NewActionAppliedEvent(action))
	}
	if err != nil {
		c.Logger.Warn("encoding action outcome event", "error", err)
		return
	}
	if err := c.OutboxRepo.Save(ctx, msg); err != nil {
		c.Logger.Warn("saving action outcome event", "error", err)
	}
}

// applyCalendarActions carries out every action targeting the
// calendar side over CalDAV. A single action's failure is reported
// through the outbox and returned, aborting the run rather than
// leaving the StateStore out of sync with a partially-applied plan.
func (c *Container) applyCalendarActions(ctx context.Context, actions []reconcile.Action) error {
	for _, action := range actions {
		if action.Target != model.SourceCalendar {
			continue
		}
		var err error
		switch action.Type {
		case reconcile.ActionCreate:
			if action.Event != nil {
				err = c.CalDAV.Create(ctx, *action.Event)
			}
		case reconcile.ActionUpdate:
			if action.Event != nil {
				err = c.CalDAV.Update(ctx, *action.Event, "")
			}
		case reconcile.ActionDelete:
			err = c.CalDAV.Delete(ctx, action.IdentityHash, "")
		default:
			continue
		}
		c.publishOutcome(ctx, action, err)
		if err != nil {
			return gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
				"applying calendar action", gcserr.Context{ID: action.IdentityHash}, err)
		}
	}
	return nil
}

// applySchedulerActions rewrites the scheduler's flat ndjson file: rows
// for target's managed events are authored by schedulerfile.FromEvent
// (which emits nothing for unmanaged events), and every row already in
// the file that carries no management tag is carried over verbatim, so
// scheduler-authored rows are never dropped.
func (c *Container) applySchedulerActions(target model.Manifest) error {
	if reconcile.SyncMode(c.Config.SyncMode) == reconcile.SyncSchedulerToCalendar {
		return nil
	}

	existing, err := c.Scheduler.Reader.ReadRows()
	if err != nil {
		return err
	}

	rows := make([]schedulerfile.Row, 0, len(target.Events)+len(existing))
	for _, evt := range target.SortedEvents() {
		evtRows, err := schedulerfile.FromEvent(evt)
		if err != nil {
			return err
		}
		rows = append(rows, evtRows...)
	}
	for _, row := range existing {
		if _, managed := intent.ParseManagementTag(row.Tag); !managed {
			rows = append(rows, row)
		}
	}
	return c.Scheduler.Writer.WriteRows(rows)
}

// mergeTombstones folds inferred into existing; an inferred entry
// replaces an existing one only when its epoch is later.
func mergeTombstones(existing, inferred model.TombstoneTable) model.TombstoneTable {
	merged := model.TombstoneTable{
		model.SourceCalendar:  map[string]int64{},
		model.SourceScheduler: map[string]int64{},
	}
	for source, table := range existing {
		for id, epoch := range table {
			merged[source][id] = epoch
		}
	}
	for source, table := range inferred {
		for id, epoch := range table {
			if cur, ok := merged[source][id]; !ok || epoch > cur {
				merged[source][id] = epoch
			}
		}
	}
	return merged
}

// Adopt reads the scheduler's current rows as-is and upserts each as
// an unmanaged event into the active Manifest, without deriving
// identity from any calendar bundle — the CLI's `adopt` verb: it lets
// an operator start using GCS against a scheduler that already has
// shows configured, without the first reconcile treating every
// existing row as an orphan to be deleted.
func (c *Container) Adopt(_ context.Context) (model.Manifest, error) {
	now := c.Now()
	schResult, err := c.IngestScheduler(now)
	if err != nil {
		return model.Manifest{}, err
	}

	current, err := c.Store.LoadManifest()
	if err != nil {
		return model.Manifest{}, err
	}

	for _, evt := range schResult.Manifest.SortedEvents() {
		evt.Ownership.Managed = false
		current = upsertAdopted(current, evt)
	}

	if err := c.Store.SaveManifest(current); err != nil {
		return model.Manifest{}, err
	}
	return current, nil
}

// upsertAdopted inserts evt directly, bypassing store.UpsertEvent's
// identity-hash/state-hash invariant checks: an adopted row is taken
// as-is from the scheduler rather than built through the normal
// intent pipeline, so those invariants don't apply to it the same way.
func upsertAdopted(m model.Manifest, evt model.Event) model.Manifest {
	events := make(map[string]model.Event, len(m.Events)+1)
	for k, v := range m.Events {
		events[k] = v
	}
	events[evt.IdentityHash] = evt
	return model.Manifest{Version: m.Version, GeneratedAt: m.GeneratedAt, Events: events}
}

// Export walks the active Manifest for unmanaged (scheduler-authored)
// events and serializes them back to ICS, one VEVENT per sub-event —
// the CLI's `export` verb, for operators migrating away from GCS.
func (c *Container) Export(ctx context.Context) ([]byte, error) {
	current, err := c.Store.LoadManifest()
	if err != nil {
		return nil, err
	}

	var unmanaged []model.Event
	for _, evt := range current.SortedEvents() {
		if !evt.Ownership.Managed {
			unmanaged = append(unmanaged, evt)
		}
	}

	return icslex.Encode(unmanaged)
}
