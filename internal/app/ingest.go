package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gcssync/gcs/internal/adapters/icslex"
	"github.com/gcssync/gcs/internal/core/civil"
	"github.com/gcssync/gcs/internal/core/consolidate"
	"github.com/gcssync/gcs/internal/core/gcserr"
	"github.com/gcssync/gcs/internal/core/intent"
	"github.com/gcssync/gcs/internal/core/manifest"
	"github.com/gcssync/gcs/internal/core/model"
	"github.com/gcssync/gcs/internal/core/snapshot"
)

// Horizon bounds the recurrence expansion window a pipeline run
// operates over: [today, today+HorizonDays].
type Horizon struct {
	Start civil.DateTime
	End   civil.DateTime
}

// HorizonFromConfig derives a Horizon from cfg.HorizonDays anchored at
// now: an "expand from today forward N days" lookahead window.
func HorizonFromConfig(horizonDays int, now time.Time) Horizon {
	start := civil.DateTimeFromTime(now)
	end := civil.DateTime{Date: start.Date.AddDays(horizonDays), Time: start.Time}
	return Horizon{Start: start, End: end}
}

// IngestResult bundles a source-side Manifest with any recoverable
// per-row warnings collected along the way: recoverable per-row,
// fatal per-document only when the document itself is indecipherable.
type IngestResult struct {
	Manifest model.Manifest
	Warnings []gcserr.Warning
}

// IngestCalendar runs the full calendar-side pipeline: fetch -> lex ->
// snapshot -> per-bundle normalize -> consolidate -> plan. horizon
// bounds recurrence expansion; generatedAt stamps the resulting
// Manifest.
func (c *Container) IngestCalendar(ctx context.Context, horizon Horizon, generatedAt time.Time) (IngestResult, error) {
	body, err := c.ICSFetch.Fetch(ctx, c.Config.ICSFeedURL)
	if err != nil {
		return IngestResult{}, gcserr.Wrap(gcserr.CodeIOUnreadable, gcserr.KindIOError,
			"fetching ics feed", gcserr.Context{}, err)
	}

	rows, err := icslex.Lex(body)
	if err != nil {
		return IngestResult{}, err
	}

	snap, err := snapshot.Snapshot(rows)
	if err != nil {
		return IngestResult{}, err
	}

	warnings := make([]gcserr.Warning, 0, len(snap.Warnings))
	for _, w := range snap.Warnings {
		warnings = append(warnings, w.Warning)
	}

	// Each bundle's recurrence expansion is independent of every other
	// bundle's, so a feed with hundreds of recurring series fans out
	// across goroutines.
	uids := make([]string, 0, len(snap.Bundles))
	for uid := range snap.Bundles {
		uids = append(uids, uid)
	}

	results := make([][]intent.Intent, len(uids))
	g, _ := errgroup.WithContext(ctx)
	for i, uid := range uids {
		i, uid := i, uid
		g.Go(func() error {
			bundle := snap.Bundles[uid]
			cfg, ok := parseCalendarSummary(bundle.Base.Summary)
			if !ok {
				warnings = append(warnings, gcserr.Warning{
					Code:    gcserr.CodeSourceMissingTarget,
					Message: "calendar event summary does not encode a type/target, skipped",
					Context: gcserr.Context{ID: uid},
				})
				return nil
			}
			cfg.CalendarScope = c.Config.SchedulerCalendarScope
			cfg.ResolutionYear = horizon.Start.Date.Year

			occs, err := intent.NormalizeBundle(bundle, horizon.Start, horizon.End, cfg, c.Holiday, c.Solar)
			if err != nil {
				return err
			}
			results[i] = occs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return IngestResult{}, err
	}

	occIntents := make([]consolidate.OccurrenceIntent, 0)
	for i, uid := range uids {
		bundle := snap.Bundles[uid]
		var seriesStart *civil.Date
		if bundle.Base.Rule != nil {
			d := bundle.Base.Start.Date
			seriesStart = &d
		}
		for _, it := range results[i] {
			occIntents = append(occIntents, consolidate.OccurrenceIntent{
				Intent:      it,
				SeriesStart: seriesStart,
			})
		}
	}

	ranged, err := consolidate.Consolidate(occIntents)
	if err != nil {
		return IngestResult{}, err
	}

	intents := make([]intent.Intent, 0, len(ranged))
	for _, r := range ranged {
		intents = append(intents, r.Template)
	}

	m, err := manifest.Plan(intents, 1, generatedAt)
	if err != nil {
		return IngestResult{}, err
	}

	return IngestResult{Manifest: m, Warnings: warnings}, nil
}

// IngestScheduler runs the scheduler-side pipeline: read flat ndjson
// rows -> normalize each -> plan. Scheduler rows already arrive as
// ranges, so no consolidation pass runs on this side.
func (c *Container) IngestScheduler(generatedAt time.Time) (IngestResult, error) {
	inputs, readErrs := c.Scheduler.Reader.ReadInputs()

	warnings := make([]gcserr.Warning, 0, len(readErrs))
	for _, e := range readErrs {
		warnings = append(warnings, gcserr.Warning{
			Code:    gcserr.CodeSourceMissingUID,
			Message: e.Error(),
		})
	}

	intents := make([]intent.Intent, 0, len(inputs))
	for _, in := range inputs {
		in.CalendarScope = c.Config.SchedulerCalendarScope
		it, err := intent.NormalizeSchedulerRow(in)
		if err != nil {
			var gerr *gcserr.Error
			if errors.As(err, &gerr) && gerr.Kind == gcserr.KindSourceMalformed {
				warnings = append(warnings, gcserr.Warning{Code: gerr.Code, Message: gerr.Message, Context: gerr.Context})
				continue
			}
			return IngestResult{}, err
		}
		intents = append(intents, it)
	}

	m, err := manifest.Plan(intents, 1, generatedAt)
	if err != nil {
		return IngestResult{}, err
	}

	return IngestResult{Manifest: m, Warnings: warnings}, nil
}

// parseCalendarSummary derives the Type/Target an ICS event's free-text
// Summary encodes. No pack repo specifies an exact wire convention for
// this (the scheduler side carries Type/Target as structured ndjson
// fields instead), so this module picks the simplest legible one: a
// "<type>: <target>" prefix, e.g. "playlist: Halloween Show". A
// Summary lacking the colon-delimited prefix normalizes to
// (CalendarAdapterConfig{}, false).
func parseCalendarSummary(summary string) (intent.CalendarAdapterConfig, bool) {
	idx := strings.Index(summary, ":")
	if idx < 0 {
		return intent.CalendarAdapterConfig{}, false
	}
	typ := model.EntityType(strings.ToLower(strings.TrimSpace(summary[:idx])))
	target := strings.TrimSpace(summary[idx+1:])
	if !typ.IsValid() || target == "" {
		return intent.CalendarAdapterConfig{}, false
	}
	return intent.CalendarAdapterConfig{Type: typ, Target: target}, true
}

