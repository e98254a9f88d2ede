// Package caldavclient is the outbound CalendarClient collaborator:
// create/update/delete of calendar-side events over CalDAV. It is
// only ever called with actions whose target is the calendar side.
package caldavclient

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/sony/gobreaker/v2"

	"github.com/gcssync/gcs/internal/core/model"
)

// managedProp marks a VEVENT as authored by this system.
const managedProp = "X-GCS-MANAGED"

// BreakerConfig tunes the circuit breaker wrapping outbound CalDAV
// calls. A zero value disables the breaker entirely.
type BreakerConfig struct {
	Enabled      bool
	MaxRequests  uint32
	OpenTimeout  time.Duration
	FailureRatio float64
}

// Client creates, updates, and deletes calendar-side events over
// CalDAV (Apple Calendar, Fastmail, Nextcloud, and similar).
type Client struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker[any]
}

// New returns a Client authenticated with HTTP basic auth.
func New(baseURL, username, password string) *Client {
	return &Client{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second, Transport: &basicAuthTransport{username: username, password: password, base: http.DefaultTransport}},
	}
}

// WithCalendarPath pins the client to a specific calendar collection
// instead of discovering the user's first calendar.
func (c *Client) WithCalendarPath(path string) *Client {
	c.calendarPath = path
	return c
}

// WithBreaker wraps every subsequent Create/Update/Delete call in a
// circuit breaker, same Settings shape as icsfetch.NewWithBreaker and
// grounded on the same internal/engine/runtime.Executor pattern.
func (c *Client) WithBreaker(bc BreakerConfig) *Client {
	if !bc.Enabled {
		return c
	}
	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "caldavclient",
		MaxRequests: bc.MaxRequests,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
		},
	})
	return c
}

func (c *Client) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func (c *Client) client() (*caldav.Client, error) {
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(c.httpClient, c.username, c.password), c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("caldavclient: create client: %w", err)
	}
	return client, nil
}

func (c *Client) resolveCalendarPath(ctx context.Context, client *caldav.Client) (string, error) {
	if c.calendarPath != "" {
		return c.calendarPath, nil
	}
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("caldavclient: find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("caldavclient: find calendar home set: %w", err)
	}
	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("caldavclient: find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("caldavclient: no calendars found")
	}
	return cals[0].Path, nil
}

// Create publishes a new calendar-side event.
func (c *Client) Create(ctx context.Context, evt model.Event) error {
	return c.guard(func() error { return c.put(ctx, evt) })
}

// Update replaces an existing calendar-side event. go-webdav's
// PutCalendarObject sends no If-Match header, so etag is accepted as
// part of the signature but unused: the PUT is never conditioned on an
// ETag.
func (c *Client) Update(ctx context.Context, evt model.Event, etag string) error {
	return c.guard(func() error { return c.put(ctx, evt) })
}

func (c *Client) put(ctx context.Context, evt model.Event) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	calPath, err := c.resolveCalendarPath(ctx, client)
	if err != nil {
		return err
	}

	eventPath := fmt.Sprintf("%s%s.ics", calPath, evt.IdentityHash)
	cal := toICalendar(evt)

	if _, err := client.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return fmt.Errorf("caldavclient: put %s: %w", eventPath, err)
	}
	return nil
}

// Delete removes a calendar-side event by identity hash. etag is
// accepted as part of the signature but unused: the DELETE is never
// conditioned on an ETag.
func (c *Client) Delete(ctx context.Context, identityHash string, etag string) error {
	return c.guard(func() error {
		client, err := c.client()
		if err != nil {
			return err
		}
		calPath, err := c.resolveCalendarPath(ctx, client)
		if err != nil {
			return err
		}
		eventPath := fmt.Sprintf("%s%s.ics", calPath, identityHash)
		if err := client.RemoveAll(ctx, eventPath); err != nil {
			return fmt.Errorf("caldavclient: delete %s: %w", eventPath, err)
		}
		return nil
	})
}

// toICalendar renders a Manifest Event as a VCALENDAR/VEVENT pair, one
// event per sub-event's timing span collapsed onto the Identity's own
// bounds — the calendar side only ever sees the authored range, not
// the scheduler's per-sub-event breakdown.
func toICalendar(evt model.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//gcs//calendar sync//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, evt.IdentityHash)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetText(ical.PropSummary, evt.Identity.Target)

	if evt.Identity.Timing.StartDate.Hard != nil {
		d := *evt.Identity.Timing.StartDate.Hard
		event.Props.SetDateTime(ical.PropDateTimeStart, time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC))
	}
	if evt.Identity.Timing.EndDate.Hard != nil {
		d := *evt.Identity.Timing.EndDate.Hard
		event.Props.SetDateTime(ical.PropDateTimeEnd, time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC))
	}

	managed := ical.NewProp(managedProp)
	managed.Value = "1"
	event.Props[managedProp] = []ical.Prop{*managed}

	cal.Children = append(cal.Children, event.Component)
	return cal
}

// calendarToString renders a calendar for debug logging.
func calendarToString(cal *ical.Calendar) string {
	var buf bytes.Buffer
	enc := ical.NewEncoder(&buf)
	if err := enc.Encode(cal); err != nil {
		return ""
	}
	return buf.String()
}

type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}
