// Package identity implements the IdentityKernel: canonicalization and
// hashing of Identity objects. This is the only place in the pipeline
// that decides what fields participate in "sameness" of a scheduled
// intent.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/model"
)

// canonical is the sorted-key, scalar-normalized JSON shape that
// Canonicalize produces. Using map[string]any with recursive sorting
// (via json.Marshal on an ordered structure) gives us deterministic
// byte output across runs without hand-rolling a serializer.
type canonical = map[string]any

// Canonicalize validates and normalizes an Identity into its canonical
// JSON form. It is fatal (InvariantViolation) if the identity is
// missing a required field or carries a forbidden one.
func Canonicalize(id model.Identity) (canonical, error) {
	if id.Type == "" || !id.Type.IsValid() {
		return nil, gcserr.New(gcserr.CodeIdentityMissingField, gcserr.KindInvariantViolation,
			"identity.type is required and must be one of playlist|command|sequence", gcserr.Context{Field: "type"})
	}
	if id.Target == "" {
		return nil, gcserr.New(gcserr.CodeIdentityMissingField, gcserr.KindInvariantViolation,
			"identity.target is required", gcserr.Context{Field: "target"})
	}

	timing, err := canonicalTiming(id.Timing)
	if err != nil {
		return nil, err
	}

	return canonical{
		"type":   string(id.Type),
		"target": id.Target,
		"timing": timing,
	}, nil
}

// forbiddenTimingKeys are never allowed inside identity.timing.
// Listed with common aliasing variants.
var forbiddenTimingKeys = []string{
	"start_date", "end_date", "startDate", "endDate",
	"date_pattern", "datePattern",
	"stop_type", "stopType",
	"repeat",
	"enabled",
	"status",
	"uid",
	"hash",
	"id",
}

func canonicalTiming(t model.Timing) (canonical, error) {
	if len(t.Days.Weekly) > 0 && t.Days.Parity != nil {
		return nil, gcserr.New(gcserr.CodeDaysConflict, gcserr.KindInvariantViolation,
			"timing.days cannot combine a weekday mask with a date-parity token", gcserr.Context{Field: "timing.days"})
	}

	startDateToken, err := canonicalDateToken(t.StartDate, "timing.start_date")
	if err != nil {
		return nil, err
	}
	endDateToken, err := canonicalDateToken(t.EndDate, "timing.end_date")
	if err != nil {
		return nil, err
	}
	startTime, err := canonicalTimeSpec(t.StartTime, "timing.start_time")
	if err != nil {
		return nil, err
	}
	endTime, err := canonicalTimeSpec(t.EndTime, "timing.end_time")
	if err != nil {
		return nil, err
	}

	out := canonical{
		"days":             canonicalDays(t.Days),
		"start_date_token": startDateToken,
		"end_date_token":   endDateToken,
		"start_time":       startTime,
		"end_time":         endTime,
	}

	if err := checkForbidden(out, "timing"); err != nil {
		return nil, err
	}

	return out, nil
}

// canonicalDateToken extracts the only part of a DateSpec that may
// participate in an identity: a resolved (hard) date is a date-
// resolution output, not part of "sameness", and contributes nothing
// here regardless of whether one is set. Only a symbolic date's name
// counts toward identity, never the year IntentNormalizer resolved it
// to, so a symbolic series keeps one identity hash across runs even as
// the resolved year moves forward.
func canonicalDateToken(d model.DateSpec, field string) (canonical, error) {
	if d.Hard != nil && d.Symbolic != nil {
		return nil, gcserr.New(gcserr.CodeIdentityForbiddenField, gcserr.KindInvariantViolation,
			field+": exactly one of hard or symbolic must be set, not both", gcserr.Context{Field: field})
	}
	if d.Symbolic != nil {
		return canonical{"symbolic": d.Symbolic.Name}, nil
	}
	return canonical{"symbolic": nil}, nil
}

func checkForbidden(m canonical, path string) error {
	for _, key := range forbiddenTimingKeys {
		if _, present := m[key]; present {
			return gcserr.New(gcserr.CodeIdentityForbiddenField, gcserr.KindInvariantViolation,
				fmt.Sprintf("%s contains forbidden field %q", path, key), gcserr.Context{Field: path + "." + key})
		}
	}
	return nil
}

func canonicalDateSpec(d model.DateSpec, field string) (canonical, error) {
	if d.Hard != nil && d.Symbolic != nil {
		return nil, gcserr.New(gcserr.CodeIdentityForbiddenField, gcserr.KindInvariantViolation,
			field+": exactly one of hard or symbolic must be set, not both", gcserr.Context{Field: field})
	}
	if d.Hard != nil {
		return canonical{"hard": d.Hard.String(), "symbolic": nil}, nil
	}
	if d.Symbolic != nil {
		sym := canonical{"name": d.Symbolic.Name}
		// year is deliberately excluded from identity — resolving a
		// symbolic date to a specific year is a per-run fact, not part
		// of "sameness": identity_hash must stay stable across
		// resolution years.
		return canonical{"hard": nil, "symbolic": sym}, nil
	}
	return canonical{"hard": nil, "symbolic": nil}, nil
}

func canonicalTimeSpec(t model.TimeSpec, field string) (canonical, error) {
	if t.Hard != nil && t.Symbolic != nil {
		return nil, gcserr.New(gcserr.CodeIdentityForbiddenField, gcserr.KindInvariantViolation,
			field+": exactly one of hard or symbolic must be set, not both", gcserr.Context{Field: field})
	}
	if t.Hard != nil {
		return canonical{"hard": t.Hard.String(), "symbolic": nil}, nil
	}
	if t.Symbolic != nil {
		sym := canonical{"kind": string(t.Symbolic.Kind), "offset_min": t.Symbolic.OffsetMin}
		return canonical{"hard": nil, "symbolic": sym}, nil
	}
	return canonical{"hard": nil, "symbolic": nil}, nil
}

func canonicalDays(d model.Days) canonical {
	if d.Parity != nil {
		return canonical{"weekly": nil, "parity": string(*d.Parity)}
	}
	if len(d.Weekly) > 0 {
		sorted := d.Weekly.Sorted()
		strs := make([]string, len(sorted))
		for i, w := range sorted {
			strs[i] = string(w)
		}
		return canonical{"weekly": strs, "parity": nil}
	}
	return canonical{"weekly": nil, "parity": nil}
}

// Hash computes the SHA-256 hex digest of a canonicalized identity,
// over deterministic JSON with keys sorted at every nesting level.
func Hash(c canonical) (string, error) {
	encoded, err := canonicalJSON(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// HashIdentity is the common-case entry point: canonicalize then hash.
func HashIdentity(id model.Identity) (string, canonical, error) {
	c, err := Canonicalize(id)
	if err != nil {
		return "", nil, err
	}
	h, err := Hash(c)
	if err != nil {
		return "", nil, err
	}
	return h, c, nil
}

// canonicalJSON serializes v with all object keys sorted recursively
// and no insignificant whitespace. encoding/json already sorts
// map[string]any keys on marshal; this wrapper exists so nested
// []any/map[string]any structures (including nil vs empty
// distinctions used above) round-trip deterministically.
func canonicalJSON(v any) ([]byte, error) {
	normalized := normalize(v)
	return json.Marshal(normalized)
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalize(vv)
		}
		return out
	case []string:
		return val
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalize(vv)
		}
		return out
	default:
		return val
	}
}

// SortedKeys is exposed for callers (e.g. ManifestPlanner) that need
// the same deterministic key order this package relies on internally.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
