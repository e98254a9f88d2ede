// Package snapshot implements the CalendarSnapshotter: it groups a flat
// list of lexed calendar rows by UID into bundles carrying a base row,
// a cancelled-date set, and an ordered override list. No time zone
// normalization or symbolic-date resolution happens here — that is
// IntentNormalizer's job (internal/core/intent).
package snapshot

import (
	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/gcssync/gcs/internal/core/recurrence"
)

// Provenance carries the best-effort source timestamps a lexer row
// reports, mirroring model.Provenance but kept local to avoid this
// package depending on intent-normalized shapes.
type Provenance struct {
	UpdatedAtEpoch *int64
	CreatedAtEpoch *int64
	DTStampEpoch   *int64
}

// Row is one already-lexed calendar row, in the CalendarLexer's
// output contract.
type Row struct {
	UID           string
	Summary       string
	Description   string
	Start         civil.DateTime
	End           civil.DateTime
	Rule          *recurrence.Rule
	ExDates       []civil.DateTime
	RecurrenceID  *civil.DateTime // set on exception/override rows; nil on bases
	Status        string          // "cancelled" on a removed occurrence
	IsAllDay      bool
	IsOverride    bool
	Provenance    Provenance

	// Payload fields an override row may carry: original_start, start,
	// end, payload, enabled, stop_type. Unused on base rows.
	Args     map[string]string
	Enabled  *bool
	StopType model.StopType
}

// OverrideIntent is one retimed/repayload'd occurrence that replaces
// the base occurrence whose local start equals OriginalStart.
type OverrideIntent struct {
	OriginalStart civil.DateTime
	Start         civil.DateTime
	End           civil.DateTime
	Row           Row
}

// Bundle is a calendar UID's worth of rows after snapshotting.
type Bundle struct {
	UID            string
	Base           Row
	CancelledDates map[civil.DateTime]bool
	Overrides      []OverrideIntent
	SourceRows     []Row
}

// Warning is a recoverable per-row condition collected rather than
// aborting the snapshot.
type Warning struct {
	gcserr.Warning
}

// Result is the snapshotter's output: a bundle per UID plus any
// non-fatal per-row warnings.
type Result struct {
	Bundles  map[string]*Bundle
	Warnings []Warning
}

// Snapshot groups rows into bundles following three deterministic
// passes: base, cancellation, override.
func Snapshot(rows []Row) (Result, error) {
	result := Result{Bundles: make(map[string]*Bundle)}

	// Pass 1: bases.
	for _, row := range rows {
		if row.RecurrenceID != nil {
			continue
		}
		if row.UID == "" {
			result.Warnings = append(result.Warnings, Warning{gcserr.Warning{
				Code:    gcserr.CodeSourceMissingUID,
				Message: "calendar row has no uid and is not linked to a parent; skipped",
			}})
			continue
		}
		result.Bundles[row.UID] = &Bundle{
			UID:            row.UID,
			Base:           row,
			CancelledDates: make(map[civil.DateTime]bool),
			SourceRows:     []Row{row},
		}
	}

	// Pass 2: cancellations.
	for _, row := range rows {
		if row.RecurrenceID == nil || row.Status != "cancelled" {
			continue
		}
		bundle, ok := result.Bundles[row.UID]
		if !ok {
			return Result{}, gcserr.New(gcserr.CodeSourceUnknownParentUID, gcserr.KindSourceMalformed,
				"cancellation row refers to unknown parent uid", gcserr.Context{ID: row.UID})
		}
		bundle.CancelledDates[*row.RecurrenceID] = true
		bundle.SourceRows = append(bundle.SourceRows, row)
	}

	// Pass 3: overrides (everything parent-linked that wasn't a cancellation).
	for _, row := range rows {
		if row.RecurrenceID == nil || row.Status == "cancelled" {
			continue
		}
		bundle, ok := result.Bundles[row.UID]
		if !ok {
			return Result{}, gcserr.New(gcserr.CodeSourceUnknownParentUID, gcserr.KindSourceMalformed,
				"override row refers to unknown parent uid", gcserr.Context{ID: row.UID})
		}
		bundle.Overrides = append(bundle.Overrides, OverrideIntent{
			OriginalStart: *row.RecurrenceID,
			Start:         row.Start,
			End:           row.End,
			Row:           row,
		})
		bundle.SourceRows = append(bundle.SourceRows, row)
	}

	return result, nil
}
