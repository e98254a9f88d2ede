// Package store defines the StateStore contract: the
// durable home of the Manifest, tombstones, and per-identity update
// timestamps. It owns the invariant-enforcing logic that is backend
// agnostic (identity/state hash validation on upsert) and leaves the
// actual bytes-on-disk-or-in-a-database concern to a Backend
// implementation — internal/adapters/statefile (flat JSON files) or
// internal/adapters/statesql (SQLite/Postgres), chosen at runtime via
// config's StateBackend knob.
package store

import (
	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/identity"
	"github.com/gcssync/gcs/internal/core/model"
)

// Backend is the seam a concrete StateStore implementation satisfies.
// Every method must be safe to call from a single process at a time;
// the core does not assume cross-process locking.
type Backend interface {
	// LoadManifest reads the active manifest, enforcing its invariants.
	// A missing manifest is an empty one, not an error.
	LoadManifest() (model.Manifest, error)
	// SaveManifest atomically replaces the active manifest. Invariants
	// are enforced before anything is persisted.
	SaveManifest(model.Manifest) error

	// LoadDraft reads the adopt-in-progress manifest without invariant
	// enforcement.
	LoadDraft() (model.Manifest, error)
	// SaveDraft atomically replaces the draft manifest.
	SaveDraft(model.Manifest) error

	// LoadTombstones reads the per-source deletion-epoch table. A
	// missing table is an empty one, not an error.
	LoadTombstones() (model.TombstoneTable, error)
	// SaveTombstones atomically replaces the tombstone table.
	SaveTombstones(model.TombstoneTable) error

	// LoadUpdatedAt reads the per-identity last-touched-epoch table
	// the Reconciler uses to break source-of-truth ties.
	LoadUpdatedAt() (model.UpdatedAtTable, error)
	// RebuildUpdatedAtFromScheduleMtime rewrites any tracked event's
	// updated-at to scheduleMtimeEpoch when that mtime is newer, the
	// fallback used when the scheduler source carries no per-row
	// timestamp of its own.
	RebuildUpdatedAtFromScheduleMtime(scheduleMtimeEpoch int64) error
}

// UpsertEvent recomputes and validates e's identity hash and aggregate
// state hash, rejects an attempt to change the Identity of an existing
// id (identity hashes are eternal for the life of an event), and
// returns the manifest with e inserted or replaced. m is left
// unmodified; the returned Manifest is a new value. This is pure
// domain logic, not I/O, so it lives here rather than on Backend.
// The statefile and statesql backends do not call it; they run
// ValidateEvent on each event they load or save.
func UpsertEvent(m model.Manifest, e model.Event) (model.Manifest, error) {
	computedHash, _, err := identity.HashIdentity(e.Identity)
	if err != nil {
		return model.Manifest{}, err
	}
	if computedHash != e.IdentityHash {
		return model.Manifest{}, gcserr.New(gcserr.CodeIdentityHashMismatch, gcserr.KindInvariantViolation,
			"event identity hash does not match its canonicalized identity",
			gcserr.Context{ID: e.ID, Stored: e.IdentityHash, Computed: computedHash})
	}
	if e.ID != e.IdentityHash {
		return model.Manifest{}, gcserr.New(gcserr.CodeIdentityHashMismatch, gcserr.KindInvariantViolation,
			"event id must equal its identity hash", gcserr.Context{ID: e.ID})
	}

	subHashes := make([]string, 0, len(e.SubEvents))
	for _, sub := range e.SubEvents {
		if sub.StateHash == "" {
			return model.Manifest{}, gcserr.New(gcserr.CodeSubEventMissingStateHash, gcserr.KindInvariantViolation,
				"sub-event is missing its state hash", gcserr.Context{ID: e.ID})
		}
		subHashes = append(subHashes, sub.StateHash)
	}
	if e.Ownership.Managed && len(e.SubEvents) == 0 {
		return model.Manifest{}, gcserr.New(gcserr.CodeManagedEventNoSubEvents, gcserr.KindInvariantViolation,
			"a managed event must have at least one sub-event", gcserr.Context{ID: e.ID})
	}
	computedState := identity.EventStateHash(subHashes)
	if e.StateHash != "" && e.StateHash != computedState {
		return model.Manifest{}, gcserr.New(gcserr.CodeIdentityHashMismatch, gcserr.KindInvariantViolation,
			"event state hash does not match its sub-events",
			gcserr.Context{ID: e.ID, Stored: e.StateHash, Computed: computedState})
	}
	e.StateHash = computedState

	if existing, ok := m.Events[e.ID]; ok {
		existingHash, _, err := identity.HashIdentity(existing.Identity)
		if err != nil {
			return model.Manifest{}, err
		}
		if existingHash != computedHash {
			return model.Manifest{}, gcserr.New(gcserr.CodeIdentityMutated, gcserr.KindInvariantViolation,
				"upsert would change the identity of an existing event", gcserr.Context{ID: e.ID})
		}
	}

	events := make(map[string]model.Event, len(m.Events)+1)
	for k, v := range m.Events {
		events[k] = v
	}
	events[e.ID] = e

	return model.Manifest{Version: m.Version, GeneratedAt: m.GeneratedAt, Events: events}, nil
}

// ValidateEvent checks the manifest-entry invariants both backends
// must enforce on load and on save: the map key equals the event's
// identity hash, a managed event has at least one sub-event, and every
// sub-event carries a state hash.
func ValidateEvent(id string, e model.Event) error {
	if e.IdentityHash != id {
		return gcserr.New(gcserr.CodeIdentityHashMismatch, gcserr.KindInvariantViolation,
			"manifest key does not match event identity hash",
			gcserr.Context{ID: id, Stored: id, Computed: e.IdentityHash})
	}
	if e.ID != e.IdentityHash {
		return gcserr.New(gcserr.CodeIdentityHashMismatch, gcserr.KindInvariantViolation,
			"event id must equal its identity hash", gcserr.Context{ID: id})
	}
	if e.Ownership.Managed && len(e.SubEvents) == 0 {
		return gcserr.New(gcserr.CodeManagedEventNoSubEvents, gcserr.KindInvariantViolation,
			"a managed event must have at least one sub-event", gcserr.Context{ID: id})
	}
	for _, sub := range e.SubEvents {
		if sub.StateHash == "" {
			return gcserr.New(gcserr.CodeSubEventMissingStateHash, gcserr.KindInvariantViolation,
				"sub-event is missing its state hash", gcserr.Context{ID: id})
		}
	}
	return nil
}

// EventTimestamp is one entry of the update-timestamps document,
// shared by both backends' on-disk/in-database row shape.
type EventTimestamp struct {
	UpdatedAtEpoch int64  `json:"updated_at_epoch"`
	LastSeenEpoch  int64  `json:"last_seen_epoch"`
	StateHash      string `json:"state_hash"`
}

// TimestampDoc is the decoded shape of the update-timestamps document.
type TimestampDoc struct {
	Version            int                       `json:"version"`
	ScheduleMtimeEpoch  int64                     `json:"schedule_mtime_epoch"`
	Events              map[string]EventTimestamp `json:"events"`
}

// ManifestSchemaVersion is the current manifest document schema
// version, shared by both backends.
const ManifestSchemaVersion = 2

// TimestampsSchemaVersion is the current timestamp document schema
// version, shared by both backends.
const TimestampsSchemaVersion = 1
