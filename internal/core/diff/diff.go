// Package diff implements the Differ: compares two Manifests and
// produces the create/update/delete sets keyed by identity hash.
package diff

import (
	"sort"

	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/model"
)

// Result is the Differ's output: Events (not scheduler rows), sorted
// deterministically by identity hash.
type Result struct {
	Creates []model.Event
	Updates []model.Event
	Deletes []model.Event
}

// Diff compares next against current. Unmanaged events are never
// mutated or deleted; an attempt in next to mark an identity managed
// that current holds unmanaged is a fatal SafetyStop (no silent
// takeover).
func Diff(next, current model.Manifest) (Result, error) {
	var result Result

	for _, hash := range sortedHashes(next.Events) {
		ne := next.Events[hash]
		ce, existed := current.Events[hash]

		if !existed {
			if ne.Ownership.Managed {
				result.Creates = append(result.Creates, ne)
			}
			continue
		}

		if !ce.Ownership.Managed {
			if ne.Ownership.Managed {
				return Result{}, gcserr.New(gcserr.CodeSafetyStopUnmanagedTakeover, gcserr.KindSafetyStop,
					"next manifest marks an unmanaged identity as managed", gcserr.Context{ID: hash})
			}
			continue // unmanaged: ordering/content differences are never mutations
		}

		if ne.StateHash != ce.StateHash {
			result.Updates = append(result.Updates, ne)
		}
	}

	for _, hash := range sortedHashes(current.Events) {
		ce := current.Events[hash]
		if !ce.Ownership.Managed {
			continue
		}
		if _, stillPresent := next.Events[hash]; stillPresent {
			continue
		}
		result.Deletes = append(result.Deletes, ce)
	}

	return result, nil
}

func sortedHashes(events map[string]model.Event) []string {
	keys := make([]string, 0, len(events))
	for k := range events {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
