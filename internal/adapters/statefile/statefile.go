// Package statefile implements store.Backend as four flat JSON files
// under a state directory: manifest.json, manifest.draft.json,
// event-timestamps.json, and tombstones.json. It is the default
// StateBackend (config.StateBackend == "file"), chosen because a
// single-operator deployment doesn't need a database just to persist
// a few kilobytes of state.
package statefile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/gcssync/gcs/internal/core/store"
)

const (
	manifestFileName   = "manifest.json"
	draftFileName      = "manifest.draft.json"
	timestampsFileName = "event-timestamps.json"
	tombstonesFileName = "tombstones.json"
)

// Store is the flat-file StateStore backend. One Store owns one state
// directory; the core assumes exactly one process mutates it at a
// time — concurrent invocation from two processes is a deployment
// error, not something this package defends against. The mutex here
// only serializes writes within this process.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ store.Backend = (*Store)(nil)

// New returns a Store rooted at dir. dir is created on first write if
// it does not already exist.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// path resolves name against the state directory, rejecting any name
// that would escape it once cleaned and joined, narrowed here to the
// fixed set of document names this package ever opens (so there is no
// untrusted path input to sanitize beyond a programmer error in this
// package itself).
func (s *Store) path(name string) (string, error) {
	base, err := filepath.Abs(s.dir)
	if err != nil {
		return "", gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			"cannot resolve state directory", gcserr.Context{}, err)
	}
	candidate := filepath.Join(base, filepath.Clean(string(filepath.Separator)+name))
	rel, err := filepath.Rel(base, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", gcserr.New(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"state file path escapes state directory", gcserr.Context{ID: name})
	}
	return candidate, nil
}

type manifestDoc struct {
	Version     int                    `json:"version"`
	GeneratedAt time.Time              `json:"generated_at"`
	Events      map[string]model.Event `json:"events"`
}

type tombstoneDoc struct {
	Calendar  map[string]int64 `json:"calendar"`
	Scheduler map[string]int64 `json:"scheduler"`
}

// LoadManifest reads manifest.json, enforcing its invariants: every
// event's id equals its identity hash, every managed event has at
// least one sub-event, and every sub-event carries a state hash. A
// missing file is an empty Manifest, not an error.
func (s *Store) LoadManifest() (model.Manifest, error) {
	doc, err := s.loadManifestDoc(manifestFileName)
	if err != nil {
		return model.Manifest{}, err
	}
	for id, evt := range doc.Events {
		if err := store.ValidateEvent(id, evt); err != nil {
			return model.Manifest{}, err
		}
	}
	return model.Manifest{Version: doc.Version, GeneratedAt: doc.GeneratedAt, Events: doc.Events}, nil
}

// SaveManifest atomically replaces manifest.json. Invariants are
// enforced before anything is written, so a failed save never leaves
// a document that would fail a subsequent LoadManifest.
func (s *Store) SaveManifest(m model.Manifest) error {
	for id, evt := range m.Events {
		if err := store.ValidateEvent(id, evt); err != nil {
			return err
		}
	}
	doc := manifestDoc{Version: store.ManifestSchemaVersion, GeneratedAt: m.GeneratedAt, Events: m.Events}
	if doc.Events == nil {
		doc.Events = map[string]model.Event{}
	}
	return s.writeJSON(manifestFileName, doc)
}

// LoadDraft reads manifest.draft.json without enforcing invariants —
// the relaxed variant used during `adopt`, where unmanaged rows may
// not yet carry a complete identity.
func (s *Store) LoadDraft() (model.Manifest, error) {
	doc, err := s.loadManifestDoc(draftFileName)
	if err != nil {
		return model.Manifest{}, err
	}
	return model.Manifest{Version: doc.Version, GeneratedAt: doc.GeneratedAt, Events: doc.Events}, nil
}

// SaveDraft atomically replaces manifest.draft.json without invariant
// enforcement.
func (s *Store) SaveDraft(m model.Manifest) error {
	doc := manifestDoc{Version: store.ManifestSchemaVersion, GeneratedAt: m.GeneratedAt, Events: m.Events}
	if doc.Events == nil {
		doc.Events = map[string]model.Event{}
	}
	return s.writeJSON(draftFileName, doc)
}

// LoadTombstones reads tombstones.json. A missing file is an empty
// table, not an error.
func (s *Store) LoadTombstones() (model.TombstoneTable, error) {
	var doc tombstoneDoc
	ok, err := s.readJSON(tombstonesFileName, &doc)
	if err != nil {
		return nil, err
	}
	table := model.TombstoneTable{
		model.SourceCalendar:  {},
		model.SourceScheduler: {},
	}
	if !ok {
		return table, nil
	}
	for id, epoch := range doc.Calendar {
		table[model.SourceCalendar][id] = epoch
	}
	for id, epoch := range doc.Scheduler {
		table[model.SourceScheduler][id] = epoch
	}
	return table, nil
}

// SaveTombstones atomically replaces tombstones.json.
func (s *Store) SaveTombstones(t model.TombstoneTable) error {
	doc := tombstoneDoc{
		Calendar:  t[model.SourceCalendar],
		Scheduler: t[model.SourceScheduler],
	}
	if doc.Calendar == nil {
		doc.Calendar = map[string]int64{}
	}
	if doc.Scheduler == nil {
		doc.Scheduler = map[string]int64{}
	}
	return s.writeJSON(tombstonesFileName, doc)
}

// LoadUpdatedAt reads event-timestamps.json and projects it down to
// the identity_hash → updated_at_epoch view the Reconciler consumes.
// A missing file is an empty table, not an error.
func (s *Store) LoadUpdatedAt() (model.UpdatedAtTable, error) {
	doc, err := s.loadTimestampDoc()
	if err != nil {
		return nil, err
	}
	table := model.UpdatedAtTable{
		model.SourceCalendar:  {},
		model.SourceScheduler: {},
	}
	for id, ts := range doc.Events {
		table[model.SourceScheduler][id] = ts.UpdatedAtEpoch
		table[model.SourceCalendar][id] = ts.UpdatedAtEpoch
	}
	return table, nil
}

// RebuildUpdatedAtFromScheduleMtime rewrites every tracked event's
// updated_at_epoch to the scheduler file's modification time when that
// mtime is newer than the event's own recorded timestamp — the
// fallback used when the scheduler-side source of truth doesn't carry
// a finer-grained per-row timestamp of its own.
func (s *Store) RebuildUpdatedAtFromScheduleMtime(scheduleMtimeEpoch int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadTimestampDoc()
	if err != nil {
		return err
	}
	doc.ScheduleMtimeEpoch = scheduleMtimeEpoch
	for id, ts := range doc.Events {
		if scheduleMtimeEpoch > ts.UpdatedAtEpoch {
			ts.UpdatedAtEpoch = scheduleMtimeEpoch
			doc.Events[id] = ts
		}
	}
	return s.writeJSONLocked(timestampsFileName, doc)
}

func (s *Store) loadTimestampDoc() (store.TimestampDoc, error) {
	doc := store.TimestampDoc{Version: store.TimestampsSchemaVersion, Events: map[string]store.EventTimestamp{}}
	ok, err := s.readJSONLocked(timestampsFileName, &doc)
	if err != nil {
		return store.TimestampDoc{}, err
	}
	if !ok {
		return doc, nil
	}
	if doc.Events == nil {
		doc.Events = map[string]store.EventTimestamp{}
	}
	return doc, nil
}

func (s *Store) loadManifestDoc(name string) (manifestDoc, error) {
	doc := manifestDoc{Version: store.ManifestSchemaVersion, Events: map[string]model.Event{}}
	ok, err := s.readJSONLocked(name, &doc)
	if err != nil {
		return manifestDoc{}, err
	}
	if !ok {
		return doc, nil
	}
	if doc.Events == nil {
		doc.Events = map[string]model.Event{}
	}
	return doc, nil
}

// readJSON acquires the store's write-serializing mutex for the
// duration of the read, so a reader never observes a half-written
// temp file mid-rename.
func (s *Store) readJSON(name string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readJSONLocked(name, v)
}

func (s *Store) readJSONLocked(name string, v any) (bool, error) {
	target, err := s.path(name)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			fmt.Sprintf("cannot read %s", name), gcserr.Context{}, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
			fmt.Sprintf("cannot decode %s", name), gcserr.Context{}, err)
	}
	return true, nil
}

// writeJSON serializes v as sorted-key, 2-space-indented JSON with a
// trailing newline and atomically replaces the named file via a
// temp-write-then-rename, so a crash mid-write never corrupts prior
// state.
func (s *Store) writeJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSONLocked(name, v)
}

func (s *Store) writeJSONLocked(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot create state directory", gcserr.Context{}, err)
	}

	target, err := s.path(name)
	if err != nil {
		return err
	}

	// Round-trip through a generic value so struct fields are emitted as
	// sorted map keys rather than in declaration order.
	raw, err := json.Marshal(v)
	if err != nil {
		return gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
			fmt.Sprintf("cannot encode %s", name), gcserr.Context{}, err)
	}
	var generic any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
			fmt.Sprintf("cannot encode %s", name), gcserr.Context{}, err)
	}
	data, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
			fmt.Sprintf("cannot encode %s", name), gcserr.Context{}, err)
	}
	data = append(data, '\n')

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			fmt.Sprintf("cannot write temp file for %s", name), gcserr.Context{}, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			fmt.Sprintf("cannot rename temp file into place for %s", name), gcserr.Context{}, err)
	}
	return nil
}
