package manifest

import (
	"testing"
	"time"

	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/intent"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managedIntent(t *testing.T, target string) intent.Intent {
	t.Helper()
	in := intent.Input{
		Type:       model.EntityPlaylist,
		Target:     target,
		StartDate:  model.HardDate(civil.NewDate(2025, 1, 1)),
		EndDate:    model.HardDate(civil.NewDate(2025, 1, 1)),
		StartTime:  model.HardTime(civil.NewTime(9, 0, 0)),
		EndTime:    model.HardTime(civil.NewTime(10, 0, 0)),
		Managed:    true,
		Controller: "calendar",
	}
	it, err := intent.Normalize(in, nil, nil)
	require.NoError(t, err)
	return it
}

func TestPlan_DeterministicSerialization(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	intents := []intent.Intent{managedIntent(t, "b-show"), managedIntent(t, "a-show")}

	m1, err := Plan(intents, 2, now)
	require.NoError(t, err)
	m2, err := Plan(intents, 2, now)
	require.NoError(t, err)

	assert.Equal(t, m1.SortedEvents(), m2.SortedEvents())
}

func TestPlan_DuplicateIdentityHashIsFatal(t *testing.T) {
	dup := managedIntent(t, "same-show")
	_, err := Plan([]intent.Intent{dup, dup}, 2, time.Now())
	require.Error(t, err)
}

func TestPlan_EventsKeyedByIdentityHash(t *testing.T) {
	a := managedIntent(t, "a-show")
	m, err := Plan([]intent.Intent{a}, 2, time.Now())
	require.NoError(t, err)
	evt, ok := m.Events[a.IdentityHash]
	require.True(t, ok)
	assert.Equal(t, a.IdentityHash, evt.ID)
}
