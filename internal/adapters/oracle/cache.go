package oracle

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/gcssync/gcs/internal/core/civil"
)

// cacheKeyPrefix namespaces holiday cache entries under a single
// colon-delimited prefix so this package's keys never collide with
// another consumer of the same Redis instance.
const cacheKeyPrefix = "gcs:oracle:holiday:"

// CachedHolidayResolver wraps a HolidayResolver with a Redis-backed
// cache of resolved (name, year) -> date pairs, avoiding recomputation
// across the hundreds of intents a single reconcile run can normalize
// for a recurring holiday-anchored rule.
type CachedHolidayResolver struct {
	inner  holidayResolver
	client *redis.Client
	ctx    context.Context
}

// holidayResolver mirrors intent.HolidayResolver without importing
// that package, keeping this adapter's dependency graph one-directional.
type holidayResolver interface {
	Resolve(name string, year int) (civil.Date, error)
}

// NewCachedHolidayResolver returns a resolver that checks client before
// falling back to inner, and writes inner's result back to client on a
// cache miss. ctx bounds every Redis round trip.
func NewCachedHolidayResolver(ctx context.Context, client *redis.Client, inner holidayResolver) *CachedHolidayResolver {
	return &CachedHolidayResolver{inner: inner, client: client, ctx: ctx}
}

// Resolve implements intent.HolidayResolver.
func (r *CachedHolidayResolver) Resolve(name string, year int) (civil.Date, error) {
	key := cacheKey(name, year)

	if cached, err := r.client.Get(r.ctx, key).Result(); err == nil {
		if d, err := parseCacheValue(cached); err == nil {
			return d, nil
		}
	} else if err != redis.Nil {
		// Redis unavailable: fall through to inner rather than failing
		// a reconcile run over a cache outage.
	}

	d, err := r.inner.Resolve(name, year)
	if err != nil {
		return civil.Date{}, err
	}

	_ = r.client.Set(r.ctx, key, formatCacheValue(d), 0).Err()
	return d, nil
}

func cacheKey(name string, year int) string {
	return cacheKeyPrefix + strings.ToLower(strings.TrimSpace(name)) + ":" + strconv.Itoa(year)
}

func formatCacheValue(d civil.Date) string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func parseCacheValue(v string) (civil.Date, error) {
	var y, m, day int
	if _, err := fmt.Sscanf(v, "%04d-%02d-%02d", &y, &m, &day); err != nil {
		return civil.Date{}, err
	}
	return civil.NewDate(y, m, day), nil
}
