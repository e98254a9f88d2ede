// Package schedulerfile is the SchedulerReader/SchedulerWriter
// collaborator: a flat, newline-delimited JSON file of
// ranged scheduler rows under the state directory, replaced atomically
// on write the same way internal/adapters/statefile persists its own
// files.
package schedulerfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/intent"
	"github.com/gcssync/gcs/internal/core/model"
)

// managementTagPrefix mirrors intent.ParseManagementTag's own prefix;
// kept local since this package is the one that authors the tag, while
// intent is the one that parses it back out during normalization.
const managementTagPrefix = "|GCS:v1|"

// DefaultFileName is the scheduler row file's conventional name under
// the scheduler state directory, mirroring fpp_manifest's own flat
// schedule file naming.
const DefaultFileName = "schedule.ndjson"

// Row is one on-disk scheduler entry in the SchedulerReader shape:
// `{type, target|command, enabled, startTime, endTime,
// startDate, endDate, day, stopType, repeat, args?, tag?}`.
type Row struct {
	Type      string            `json:"type"`
	Target    string            `json:"target"`
	Enabled   int               `json:"enabled"`
	StartTime string            `json:"startTime"`
	EndTime   string            `json:"endTime"`
	StartDate string            `json:"startDate"`
	EndDate   string            `json:"endDate"`
	Day       int               `json:"day"`
	StopType  int               `json:"stopType"`
	Repeat    int               `json:"repeat"`
	Args      map[string]string `json:"args,omitempty"`
	Tag       string            `json:"tag,omitempty"`
}

// Reader reads the flat scheduler file.
type Reader struct {
	path string
}

// NewReader returns a Reader for the scheduler file at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// ReadRows returns the raw rows stored on disk, one per line. A
// missing file is an empty slice, not an error, matching
// internal/core/store's own "missing file means empty state" rule.
func (r *Reader) ReadRows() ([]Row, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError, "open scheduler file", gcserr.Context{}, err)
	}
	defer f.Close()

	var rows []Row
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row Row
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError, "decode scheduler row", gcserr.Context{}, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, gcserr.Wrap(gcserr.CodeIOPartialRead, gcserr.KindIOError, "read scheduler file", gcserr.Context{}, err)
	}
	return rows, nil
}

// ReadInputs decodes every stored row into an
// intent.SchedulerRowInput, ready to pass to intent.NormalizeSchedulerRow.
// A row with an unparseable date/time is reported as a warning rather
// than aborting the whole read: per-row failures are recoverable, not
// fatal to the document.
func (r *Reader) ReadInputs() ([]intent.SchedulerRowInput, []error) {
	rows, err := r.ReadRows()
	if err != nil {
		return nil, []error{err}
	}

	var inputs []intent.SchedulerRowInput
	var warnings []error
	for _, row := range rows {
		in, err := toRowInput(row)
		if err != nil {
			warnings = append(warnings, err)
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, warnings
}

func toRowInput(row Row) (intent.SchedulerRowInput, error) {
	startTime, err := civil.ParseTime(row.StartTime)
	if err != nil {
		return intent.SchedulerRowInput{}, gcserr.Wrap(gcserr.CodeSourceMissingTarget, gcserr.KindSourceMalformed, "invalid startTime", gcserr.Context{Field: "startTime", Stored: row.StartTime}, err)
	}
	endTime, err := civil.ParseTime(row.EndTime)
	if err != nil {
		return intent.SchedulerRowInput{}, gcserr.Wrap(gcserr.CodeSourceMissingTarget, gcserr.KindSourceMalformed, "invalid endTime", gcserr.Context{Field: "endTime", Stored: row.EndTime}, err)
	}
	startDate, err := civil.ParseDate(row.StartDate)
	if err != nil {
		return intent.SchedulerRowInput{}, gcserr.Wrap(gcserr.CodeSourceMissingTarget, gcserr.KindSourceMalformed, "invalid startDate", gcserr.Context{Field: "startDate", Stored: row.StartDate}, err)
	}
	endDate, err := civil.ParseDate(row.EndDate)
	if err != nil {
		return intent.SchedulerRowInput{}, gcserr.Wrap(gcserr.CodeSourceMissingTarget, gcserr.KindSourceMalformed, "invalid endDate", gcserr.Context{Field: "endDate", Stored: row.EndDate}, err)
	}
	if row.Target == "" {
		return intent.SchedulerRowInput{}, gcserr.New(gcserr.CodeSourceMissingTarget, gcserr.KindSourceMalformed, "scheduler row missing target", gcserr.Context{Field: "target"})
	}

	return intent.SchedulerRowInput{
		Type:      model.EntityType(row.Type),
		Target:    row.Target,
		Enabled:   row.Enabled != 0,
		StartTime: startTime,
		EndTime:   endTime,
		StartDate: startDate,
		EndDate:   endDate,
		Day:       row.Day,
		StopTypeRaw: row.StopType,
		RepeatRaw:   row.Repeat,
		Args:        row.Args,
		Tag:         row.Tag,
	}, nil
}

// Writer replaces the flat scheduler file atomically.
type Writer struct {
	path string
}

// NewWriter returns a Writer for the scheduler file at path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// WriteRows performs an atomic replace (temp file + rename) of the
// scheduler file's full contents, one JSON row per line in the order
// given. The caller is responsible for ordering: the writer receives
// the final ordered list and writes it as-is.
func (w *Writer) WriteRows(rows []Row) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return gcserr.Wrap(gcserr.CodeIOPartialRead, gcserr.KindIOError, "create scheduler dir", gcserr.Context{}, err)
	}

	var buf bytes.Buffer
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return gcserr.Wrap(gcserr.CodeIOUndecodable, gcserr.KindIOError, "encode scheduler row", gcserr.Context{}, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return gcserr.Wrap(gcserr.CodeIOPartialRead, gcserr.KindIOError, "write temp scheduler file", gcserr.Context{}, err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return gcserr.Wrap(gcserr.CodeIORenameFailed, gcserr.KindIOError, "rename scheduler file", gcserr.Context{}, err)
	}
	return nil
}

// AuthorTag builds the management tag every managed row must carry:
// `|GCS:v1|uid=<uid>|range=<start..end>|days=<short-days>`.
func AuthorTag(uid string, start, end civil.Date, days model.Days) string {
	return fmt.Sprintf("%suid=%s|range=%s..%s|days=%s", managementTagPrefix, uid, start.String(), end.String(), shortDays(days))
}

// shortDays renders a Days value as the tag's free-text days segment:
// comma-joined weekday tokens in canonical order, or "odd"/"even" for
// a parity constraint.
func shortDays(days model.Days) string {
	if days.Parity != nil {
		return string(*days.Parity)
	}
	members := days.Weekly.Sorted()
	tokens := make([]string, 0, len(members))
	for _, d := range members {
		tokens = append(tokens, string(d))
	}
	return strings.Join(tokens, ",")
}

// FromEvent builds the rows for one Event's sub-events, ready to hand
// to Writer.WriteRows. Managed rows are authored with AuthorTag;
// unmanaged rows (ownership.managed == false) are never produced here —
// they are passed through verbatim from the previously-read Row slice
// by the caller.
func FromEvent(evt model.Event) ([]Row, error) {
	if !evt.Ownership.Managed {
		return nil, nil
	}

	rows := make([]Row, 0, len(evt.SubEvents))
	for _, sub := range evt.SubEvents {
		start := civil.Date{}
		if sub.Timing.StartDate.Hard != nil {
			start = *sub.Timing.StartDate.Hard
		}
		end := civil.Date{}
		if sub.Timing.EndDate.Hard != nil {
			end = *sub.Timing.EndDate.Hard
		}
		startTime := civil.Time{}
		if sub.Timing.StartTime.Hard != nil {
			startTime = *sub.Timing.StartTime.Hard
		}
		endTime := civil.Time{}
		if sub.Timing.EndTime.Hard != nil {
			endTime = *sub.Timing.EndTime.Hard
		}

		rows = append(rows, Row{
			Type:      string(evt.Identity.Type),
			Target:    evt.Identity.Target,
			Enabled:   boolToInt(sub.Behavior.Enabled),
			StartTime: startTime.String(),
			EndTime:   endTime.String(),
			StartDate: start.String(),
			EndDate:   end.String(),
			Day:       encodeDays(sub.Timing.Days),
			StopType:  encodeStopType(sub.Behavior.StopType),
			Repeat:    encodeRepeat(sub.Behavior.Repeat),
			Tag:       AuthorTag(evt.IdentityHash, start, end, sub.Timing.Days),
		})
	}
	return rows, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeDays is the inverse of intent.DecodeDayEnum. Weekday sets are
// always authored in bitmask form, which round-trips exactly regardless
// of which named enum (if any) the row originally used; a parity
// constraint is authored as the odd/even enum (14/15).
func encodeDays(days model.Days) int {
	const bitmaskMode = 0x10000
	if days.Parity != nil {
		if *days.Parity == model.ParityOdd {
			return 14
		}
		return 15
	}
	bits := map[model.Weekday]int{
		model.Sunday:    0x4000,
		model.Monday:    0x2000,
		model.Tuesday:   0x1000,
		model.Wednesday: 0x0800,
		model.Thursday:  0x0400,
		model.Friday:    0x0200,
		model.Saturday:  0x0100,
	}
	out := bitmaskMode
	for wd, bit := range bits {
		if days.Weekly.Contains(wd) {
			out |= bit
		}
	}
	return out
}

func encodeStopType(s model.StopType) int {
	switch s {
	case model.StopHard:
		return 1
	case model.StopNone:
		return 2
	default:
		return 0
	}
}

func encodeRepeat(repeat string) int {
	switch repeat {
	case "none":
		return 0
	case "once":
		return 1
	default:
		var n int
		if _, err := fmt.Sscanf(repeat, "%d", &n); err == nil {
			return n
		}
		return 0
	}
}
