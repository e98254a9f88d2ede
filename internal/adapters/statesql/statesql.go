// Package statesql implements store.Backend over database/sql, for
// deployments that want StateStore queries instead of whole-file
// reads (config.StateBackend == "sqlite"). It speaks two drivers off
// one DSN:
//   - no scheme / a *.db, *.sqlite, *.sqlite3 path, or "file:" / "sqlite://"
//     prefix selects modernc.org/sqlite, WAL-mode, zero-config.
//   - "postgres://" / "postgresql://" selects jackc/pgx/v5's
//     database/sql driver, for multi-process deployments that need a
//     real server instead of a local file.
package statesql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/gcssync/gcs/internal/core/store"
)

// Driver identifies which SQL dialect a Store is speaking.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DetectDriver parses dsn and returns which driver it names. An empty
// dsn defaults to SQLite, a zero-config local mode.
func DetectDriver(dsn string) Driver {
	switch {
	case dsn == "":
		return DriverSQLite
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(dsn, "sqlite://"), strings.HasPrefix(dsn, "file:"),
		strings.HasSuffix(dsn, ".db"), strings.HasSuffix(dsn, ".sqlite"), strings.HasSuffix(dsn, ".sqlite3"):
		return DriverSQLite
	default:
		return DriverSQLite
	}
}

// Store is the database/sql-backed StateStore backend.
type Store struct {
	db     *sql.DB
	driver Driver
}

var _ store.Backend = (*Store)(nil)

// Open opens (and, on first use, migrates) the database named by dsn.
// An empty dsn opens the zero-config SQLite default. ctx bounds the
// initial connect/ping/migrate sequence only; it is not retained.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver := DetectDriver(dsn)

	var db *sql.DB
	var err error
	switch driver {
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		sqliteDSN := dsn
		if sqliteDSN == "" {
			sqliteDSN = "gcs-state.db"
		}
		if !strings.Contains(sqliteDSN, "?") {
			sqliteDSN += "?"
		} else {
			sqliteDSN += "&"
		}
		sqliteDSN += "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
		db, err = sql.Open("sqlite", sqliteDSN)
	}
	if err != nil {
		return nil, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			"cannot open state database", gcserr.Context{}, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			"cannot ping state database", gcserr.Context{}, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	arrayType := "TEXT"
	if s.driver == DriverPostgres {
		arrayType = "TEXT[]"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS manifest_events (
			scope TEXT NOT NULL,
			id TEXT NOT NULL,
			identity_hash TEXT NOT NULL,
			state_hash TEXT NOT NULL,
			payload TEXT NOT NULL,
			sub_state_hashes ` + arrayType + `,
			PRIMARY KEY (scope, id)
		)`,
		`CREATE TABLE IF NOT EXISTS manifest_meta (
			scope TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			generated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tombstones (
			source TEXT NOT NULL,
			identity_hash TEXT NOT NULL,
			epoch BIGINT NOT NULL,
			PRIMARY KEY (source, identity_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS event_timestamps (
			identity_hash TEXT PRIMARY KEY,
			updated_at_epoch BIGINT NOT NULL,
			last_seen_epoch BIGINT NOT NULL,
			state_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schedule_mtime (
			id INTEGER PRIMARY KEY,
			epoch BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
				"cannot migrate state database schema", gcserr.Context{}, err)
		}
	}
	return nil
}

// bind rewrites a `?`-templated query into the placeholder syntax the
// active driver expects ($1, $2, ... for Postgres; `?` for SQLite).
func (s *Store) bind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) loadManifestScope(ctx context.Context, scope string) (model.Manifest, error) {
	var version int
	var generatedAtRaw string
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT version, generated_at FROM manifest_meta WHERE scope = ?`), scope)
	if err := row.Scan(&version, &generatedAtRaw); err != nil {
		if err == sql.ErrNoRows {
			return model.Manifest{Events: map[string]model.Event{}}, nil
		}
		return model.Manifest{}, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			"cannot read manifest metadata", gcserr.Context{}, err)
	}
	generatedAt, err := time.Parse(time.RFC3339Nano, generatedAtRaw)
	if err != nil {
		return model.Manifest{}, gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
			"cannot decode manifest generated_at", gcserr.Context{}, err)
	}

	rows, err := s.db.QueryContext(ctx, s.bind(`SELECT id, payload FROM manifest_events WHERE scope = ?`), scope)
	if err != nil {
		return model.Manifest{}, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			"cannot read manifest events", gcserr.Context{}, err)
	}
	defer rows.Close()

	events := map[string]model.Event{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return model.Manifest{}, gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
				"cannot scan manifest event row", gcserr.Context{}, err)
		}
		var evt model.Event
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			return model.Manifest{}, gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
				fmt.Sprintf("cannot decode manifest event %s", id), gcserr.Context{ID: id}, err)
		}
		events[id] = evt
	}
	if err := rows.Err(); err != nil {
		return model.Manifest{}, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			"cannot iterate manifest events", gcserr.Context{}, err)
	}

	return model.Manifest{Version: version, GeneratedAt: generatedAt, Events: events}, nil
}

// saveManifestScope replaces every row belonging to scope in a single
// transaction: delete-then-insert, so a reader never observes a
// partially-replaced collection.
func (s *Store) saveManifestScope(ctx context.Context, scope string, m model.Manifest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot begin manifest save transaction", gcserr.Context{}, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.bind(`DELETE FROM manifest_events WHERE scope = ?`), scope); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot clear manifest events", gcserr.Context{}, err)
	}

	for id, evt := range m.Events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
				fmt.Sprintf("cannot encode manifest event %s", id), gcserr.Context{ID: id}, err)
		}
		subHashes := make([]string, 0, len(evt.SubEvents))
		for _, sub := range evt.SubEvents {
			subHashes = append(subHashes, sub.StateHash)
		}

		var subHashesArg any
		if s.driver == DriverPostgres {
			// pq.Array encodes the Go slice as a Postgres array
			// literal; it is accepted by the pgx stdlib driver too
			// since both only care about the wire text format. This
			// column is write-only from this package's perspective —
			// it exists so an operator can run `... WHERE $1 = ANY
			// (sub_state_hashes)` ad hoc queries against the database
			// directly, something the flat-file backend cannot offer.
			subHashesArg = pq.Array(subHashes)
		} else {
			encoded, err := json.Marshal(subHashes)
			if err != nil {
				return gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
					"cannot encode sub-event state hashes", gcserr.Context{ID: id}, err)
			}
			subHashesArg = string(encoded)
		}

		if _, err := tx.ExecContext(ctx,
			s.bind(`INSERT INTO manifest_events (scope, id, identity_hash, state_hash, payload, sub_state_hashes) VALUES (?, ?, ?, ?, ?, ?)`),
			scope, id, evt.IdentityHash, evt.StateHash, string(payload), subHashesArg,
		); err != nil {
			return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
				fmt.Sprintf("cannot insert manifest event %s", id), gcserr.Context{ID: id}, err)
		}
	}

	generatedAt := m.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		s.bind(`DELETE FROM manifest_meta WHERE scope = ?`), scope,
	); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot clear manifest metadata", gcserr.Context{}, err)
	}
	version := m.Version
	if version == 0 {
		version = store.ManifestSchemaVersion
	}
	if _, err := tx.ExecContext(ctx,
		s.bind(`INSERT INTO manifest_meta (scope, version, generated_at) VALUES (?, ?, ?)`),
		scope, version, generatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot insert manifest metadata", gcserr.Context{}, err)
	}

	if err := tx.Commit(); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot commit manifest save transaction", gcserr.Context{}, err)
	}
	return nil
}

const (
	scopeActive = "active"
	scopeDraft  = "draft"
)

// LoadManifest reads the active manifest, enforcing its invariants.
func (s *Store) LoadManifest() (model.Manifest, error) {
	m, err := s.loadManifestScope(context.Background(), scopeActive)
	if err != nil {
		return model.Manifest{}, err
	}
	for id, evt := range m.Events {
		if err := store.ValidateEvent(id, evt); err != nil {
			return model.Manifest{}, err
		}
	}
	return m, nil
}

// SaveManifest atomically replaces the active manifest's rows.
// Invariants are enforced before anything is persisted.
func (s *Store) SaveManifest(m model.Manifest) error {
	for id, evt := range m.Events {
		if err := store.ValidateEvent(id, evt); err != nil {
			return err
		}
	}
	return s.saveManifestScope(context.Background(), scopeActive, m)
}

// LoadDraft reads the draft manifest without invariant enforcement.
func (s *Store) LoadDraft() (model.Manifest, error) {
	return s.loadManifestScope(context.Background(), scopeDraft)
}

// SaveDraft atomically replaces the draft manifest's rows.
func (s *Store) SaveDraft(m model.Manifest) error {
	return s.saveManifestScope(context.Background(), scopeDraft, m)
}

// LoadTombstones reads the tombstones table.
func (s *Store) LoadTombstones() (model.TombstoneTable, error) {
	ctx := context.Background()
	table := model.TombstoneTable{
		model.SourceCalendar:  {},
		model.SourceScheduler: {},
	}
	rows, err := s.db.QueryContext(ctx, `SELECT source, identity_hash, epoch FROM tombstones`)
	if err != nil {
		return nil, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			"cannot read tombstones", gcserr.Context{}, err)
	}
	defer rows.Close()
	for rows.Next() {
		var source, id string
		var epoch int64
		if err := rows.Scan(&source, &id, &epoch); err != nil {
			return nil, gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
				"cannot scan tombstone row", gcserr.Context{}, err)
		}
		if table[model.SourceKind(source)] == nil {
			table[model.SourceKind(source)] = map[string]int64{}
		}
		table[model.SourceKind(source)][id] = epoch
	}
	return table, rows.Err()
}

// SaveTombstones atomically replaces the tombstones table.
func (s *Store) SaveTombstones(t model.TombstoneTable) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot begin tombstones save transaction", gcserr.Context{}, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tombstones`); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot clear tombstones", gcserr.Context{}, err)
	}
	for source, entries := range t {
		for id, epoch := range entries {
			if _, err := tx.ExecContext(ctx,
				s.bind(`INSERT INTO tombstones (source, identity_hash, epoch) VALUES (?, ?, ?)`),
				string(source), id, epoch,
			); err != nil {
				return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
					"cannot insert tombstone", gcserr.Context{ID: id}, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot commit tombstones save transaction", gcserr.Context{}, err)
	}
	return nil
}

// LoadUpdatedAt reads the per-identity update-timestamp table.
func (s *Store) LoadUpdatedAt() (model.UpdatedAtTable, error) {
	ctx := context.Background()
	table := model.UpdatedAtTable{
		model.SourceCalendar:  {},
		model.SourceScheduler: {},
	}
	rows, err := s.db.QueryContext(ctx, `SELECT identity_hash, updated_at_epoch FROM event_timestamps`)
	if err != nil {
		return nil, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			"cannot read event timestamps", gcserr.Context{}, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var epoch int64
		if err := rows.Scan(&id, &epoch); err != nil {
			return nil, gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError,
				"cannot scan event timestamp row", gcserr.Context{}, err)
		}
		table[model.SourceScheduler][id] = epoch
		table[model.SourceCalendar][id] = epoch
	}
	return table, rows.Err()
}

// RebuildUpdatedAtFromScheduleMtime rewrites any tracked event's
// updated-at to scheduleMtimeEpoch when that mtime is newer.
func (s *Store) RebuildUpdatedAtFromScheduleMtime(scheduleMtimeEpoch int64) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot begin timestamp rebuild transaction", gcserr.Context{}, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.bind(`UPDATE event_timestamps SET updated_at_epoch = ? WHERE ? > updated_at_epoch`),
		scheduleMtimeEpoch, scheduleMtimeEpoch,
	); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot bump stale event timestamps", gcserr.Context{}, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_mtime WHERE id = 1`); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot clear schedule mtime marker", gcserr.Context{}, err)
	}
	if _, err := tx.ExecContext(ctx,
		s.bind(`INSERT INTO schedule_mtime (id, epoch) VALUES (1, ?)`), scheduleMtimeEpoch,
	); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot record schedule mtime marker", gcserr.Context{}, err)
	}

	if err := tx.Commit(); err != nil {
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError,
			"cannot commit timestamp rebuild transaction", gcserr.Context{}, err)
	}
	return nil
}
