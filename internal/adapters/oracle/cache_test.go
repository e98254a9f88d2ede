package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gcssync/gcs/internal/core/civil"
)

func TestCacheKey_NormalizesNameCase(t *testing.T) {
	assert.Equal(t, cacheKey("Christmas", 2026), cacheKey("CHRISTMAS", 2026))
	assert.Equal(t, "gcs:oracle:holiday:christmas:2026", cacheKey("Christmas", 2026))
}

func TestFormatAndParseCacheValue_RoundTrips(t *testing.T) {
	d := civil.NewDate(2026, 12, 25)
	v := formatCacheValue(d)
	assert.Equal(t, "2026-12-25", v)

	parsed, err := parseCacheValue(v)
	require.NoError(t, err)
	assert.Equal(t, d, parsed)
}

func TestParseCacheValue_RejectsMalformed(t *testing.T) {
	_, err := parseCacheValue("not-a-date")
	require.Error(t, err)
}
