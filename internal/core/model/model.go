// Package model defines the value objects shared across the core
// pipeline: Occurrence, Timing, Identity, SubEvent, Event, Manifest,
// tombstones, and the updated-at map. All types are immutable once
// constructed; "mutation" always means producing a new value.
package model

import (
	"sort"
	"time"

	"github.com/gcssync/gcs/internal/core/civil"
)

// EntityType names the kind of thing an Identity points at.
type EntityType string

const (
	EntityPlaylist EntityType = "playlist"
	EntitySequence EntityType = "sequence"
	EntityCommand  EntityType = "command"
)

// IsValid reports whether t is one of the known entity types.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityPlaylist, EntitySequence, EntityCommand:
		return true
	default:
		return false
	}
}

// SolarKind names a solar-relative symbolic time anchor.
type SolarKind string

const (
	SolarDawn    SolarKind = "Dawn"
	SolarSunrise SolarKind = "SunRise"
	SolarSunset  SolarKind = "SunSet"
	SolarDusk    SolarKind = "Dusk"
)

// DateSpec is a tagged union: either a hard calendar date or a symbolic
// date token (a named holiday). Exactly one of Hard/Symbolic is set.
type DateSpec struct {
	Hard     *civil.Date
	Symbolic *SymbolicDate
}

// SymbolicDate names a holiday, optionally already resolved to a year.
type SymbolicDate struct {
	Name string
	Year *int
}

// IsSymbolic reports whether d carries a symbolic (unresolved) token.
func (d DateSpec) IsSymbolic() bool { return d.Symbolic != nil }

// HardDate is a convenience constructor for a literal date spec.
func HardDate(d civil.Date) DateSpec {
	return DateSpec{Hard: &d}
}

// SymbolicDateSpec is a convenience constructor for a named-holiday date spec.
func SymbolicDateSpec(name string, year *int) DateSpec {
	return DateSpec{Symbolic: &SymbolicDate{Name: name, Year: year}}
}

// TimeSpec is a tagged union: either a hard time of day or a
// sun-relative symbolic time token with a minute offset.
type TimeSpec struct {
	Hard     *civil.Time
	Symbolic *SymbolicTime
}

// SymbolicTime names a solar anchor plus a signed minute offset.
type SymbolicTime struct {
	Kind      SolarKind
	OffsetMin int
}

// IsSymbolic reports whether t carries a symbolic (unresolved) token.
func (t TimeSpec) IsSymbolic() bool { return t.Symbolic != nil }

// HardTime is a convenience constructor for a literal time spec.
func HardTime(t civil.Time) TimeSpec {
	return TimeSpec{Hard: &t}
}

// SymbolicTimeSpec is a convenience constructor for a solar-relative time spec.
func SymbolicTimeSpec(kind SolarKind, offsetMin int) TimeSpec {
	return TimeSpec{Symbolic: &SymbolicTime{Kind: kind, OffsetMin: offsetMin}}
}

// Weekday is one of the seven ICS-style weekday tokens.
type Weekday string

const (
	Sunday    Weekday = "SU"
	Monday    Weekday = "MO"
	Tuesday   Weekday = "TU"
	Wednesday Weekday = "WE"
	Thursday  Weekday = "TH"
	Friday    Weekday = "FR"
	Saturday  Weekday = "SA"
)

// AllWeekdays lists the seven weekday tokens in canonical (ICS) order.
var AllWeekdays = []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// FromStdWeekday converts a time.Weekday to the matching token.
func FromStdWeekday(w time.Weekday) Weekday {
	return AllWeekdays[int(w)]
}

// WeekdaySet is an order-independent subset of the seven weekdays.
type WeekdaySet map[Weekday]bool

// NewWeekdaySet builds a set from a list of weekdays.
func NewWeekdaySet(days ...Weekday) WeekdaySet {
	s := make(WeekdaySet, len(days))
	for _, d := range days {
		s[d] = true
	}
	return s
}

// Contains reports whether d is a member of the set.
func (s WeekdaySet) Contains(d Weekday) bool {
	return s != nil && s[d]
}

// IsAllSeven reports whether the set contains every weekday.
func (s WeekdaySet) IsAllSeven() bool {
	for _, d := range AllWeekdays {
		if !s.Contains(d) {
			return false
		}
	}
	return true
}

// Equal reports whether two weekday sets have identical membership.
func (s WeekdaySet) Equal(other WeekdaySet) bool {
	if len(s) != len(other) {
		return false
	}
	for d := range s {
		if !other[d] {
			return false
		}
	}
	return true
}

// Sorted returns the set's members in canonical (ICS) order.
func (s WeekdaySet) Sorted() []Weekday {
	out := make([]Weekday, 0, len(s))
	for _, d := range AllWeekdays {
		if s.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

// ParityKind distinguishes odd-date from even-date recurrence.
type ParityKind string

const (
	ParityOdd  ParityKind = "odd"
	ParityEven ParityKind = "even"
)

// Days is a tagged union: nil (no day constraint), a weekly mask, or a
// date-parity token. Weekly and Parity are mutually exclusive —
// combining them is an InvariantViolation.
type Days struct {
	Weekly WeekdaySet
	Parity *ParityKind
}

// IsEmpty reports whether d carries no day constraint at all.
func (d Days) IsEmpty() bool {
	return len(d.Weekly) == 0 && d.Parity == nil
}

// Timing is the full date/time/days shape shared by Identity and SubEvent.
type Timing struct {
	StartDate DateSpec
	EndDate   DateSpec
	StartTime TimeSpec
	EndTime   TimeSpec
	Days      Days
}

// Identity is the minimum field set whose equality defines "the same
// scheduled intent." No date-resolution output, ownership,
// correlation, execution order, or payload may appear here — the
// IdentityKernel enforces that at canonicalization time.
type Identity struct {
	Type   EntityType
	Target string
	Timing Timing
}

// StopType is the behavior when a running SubEvent needs to stop.
type StopType string

const (
	StopGraceful StopType = "graceful"
	StopHard     StopType = "hard"
	StopNone     StopType = "none"
)

// Behavior is the execution behavior of one SubEvent.
type Behavior struct {
	Enabled  bool
	Repeat   string
	StopType StopType
}

// Payload carries provider-specific data plus the resolved/symbolic
// companion values the IdentityKernel forbids from Identity itself.
type Payload struct {
	Args              map[string]string
	ResolvedStartDate *civil.Date
	ResolvedEndDate   *civil.Date
	ResolvedStartTime *civil.Time
	ResolvedEndTime   *civil.Time
	SymbolicStartDate *SymbolicDate
	SymbolicEndDate   *SymbolicDate
	SymbolicStartTime *SymbolicTime
	SymbolicEndTime   *SymbolicTime
	IsOverride        bool
	OriginalStart     *civil.DateTime
	AllDay            bool
}

// SubEvent is one executable leaf: one scheduler row maps to one SubEvent.
type SubEvent struct {
	Timing    Timing
	Behavior  Behavior
	Payload   Payload
	StateHash string
}

// Ownership records who controls an Event and whether it is locked.
type Ownership struct {
	Managed    bool
	Locked     bool
	Controller string
}

// Correlation carries the lineage fields that tie an Event back to its
// sources without participating in identity.
type Correlation struct {
	SourceUID    string
	ExternalIDs  map[string]string
	CalendarScope string
}

// Provenance carries source timestamps, best-effort.
type Provenance struct {
	UpdatedAtEpoch  *int64
	CreatedAtEpoch  *int64
	DTStampEpoch    *int64
}

// Event is one Manifest entry: an identity, its ownership/correlation/
// provenance, and its ordered sub-events.
type Event struct {
	ID            string
	IdentityHash  string
	StateHash     string
	Identity      Identity
	Ownership     Ownership
	Correlation   Correlation
	Provenance    Provenance
	SubEvents     []SubEvent
}

// Manifest is the canonical, persisted document of events keyed by
// identity hash. Serialization is deterministic: events sorted by key,
// canonical scalar encoding (see internal/core/identity for the hasher
// this depends on).
type Manifest struct {
	Version     int
	GeneratedAt time.Time
	Events      map[string]Event // keyed by IdentityHash
}

// SortedEvents returns the Manifest's events in identity-hash-sorted order.
func (m Manifest) SortedEvents() []Event {
	keys := make([]string, 0, len(m.Events))
	for k := range m.Events {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.Events[k])
	}
	return out
}

// SourceKind names which side of the reconciler a tombstone or
// updated-at timestamp belongs to.
type SourceKind string

const (
	SourceCalendar  SourceKind = "calendar"
	SourceScheduler SourceKind = "scheduler"
)

// TombstoneTable records, per source, the epoch at which an identity
// was last observed absent.
type TombstoneTable map[SourceKind]map[string]int64

// Get returns the tombstone epoch for an identity on a source, and
// whether one exists.
func (t TombstoneTable) Get(source SourceKind, identityHash string) (int64, bool) {
	bySource, ok := t[source]
	if !ok {
		return 0, false
	}
	epoch, ok := bySource[identityHash]
	return epoch, ok
}

// UpdatedAtTable records, per source, the authoritative last-touched
// epoch for an identity.
type UpdatedAtTable map[SourceKind]map[string]int64

// Get returns the updated-at epoch for an identity on a source, and
// whether one is recorded.
func (t UpdatedAtTable) Get(source SourceKind, identityHash string) (int64, bool) {
	bySource, ok := t[source]
	if !ok {
		return 0, false
	}
	epoch, ok := bySource[identityHash]
	return epoch, ok
}
