// Package manifest implements the ManifestPlanner: a pure function
// from a set of normalized (and, on the calendar side, consolidated)
// Intents to a canonical Manifest document.
package manifest

import (
	"time"

	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/intent"
	"github.com/gcssync/gcs/internal/core/model"
)

// Plan materializes intents into a Manifest keyed by identity hash.
// generatedAt is supplied by the caller rather than read from the
// clock here, so Plan stays a pure function of its inputs.
func Plan(intents []intent.Intent, version int, generatedAt time.Time) (model.Manifest, error) {
	events := make(map[string]model.Event, len(intents))

	for _, in := range intents {
		if _, exists := events[in.IdentityHash]; exists {
			return model.Manifest{}, gcserr.New(gcserr.CodeIdentityDuplicate, gcserr.KindInvariantViolation,
				"two events in one manifest share an identity hash", gcserr.Context{ID: in.IdentityHash})
		}
		if in.Ownership.Managed && len(in.SubEvents) == 0 {
			return model.Manifest{}, gcserr.New(gcserr.CodeManagedEventNoSubEvents, gcserr.KindInvariantViolation,
				"a managed event must have at least one sub-event", gcserr.Context{ID: in.IdentityHash})
		}
		for _, sub := range in.SubEvents {
			if sub.StateHash == "" {
				return model.Manifest{}, gcserr.New(gcserr.CodeSubEventMissingStateHash, gcserr.KindInvariantViolation,
					"sub-event is missing its state hash", gcserr.Context{ID: in.IdentityHash})
			}
		}

		events[in.IdentityHash] = model.Event{
			ID:           in.IdentityHash,
			IdentityHash: in.IdentityHash,
			StateHash:    in.EventStateHash,
			Identity:     in.Identity,
			Ownership:    in.Ownership,
			Correlation:  in.Correlation,
			Provenance:   in.Provenance,
			SubEvents:    in.SubEvents,
		}
	}

	return model.Manifest{
		Version:     version,
		GeneratedAt: generatedAt,
		Events:      events,
	}, nil
}
