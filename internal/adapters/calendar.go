package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"

	"github.com/trevor-commits/proactive-outreach-crm/internal/identity"
	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

const untitledEvent = "Untitled Event"

// CalendarSource finds primary-calendar events involving a target address.
type CalendarSource struct {
	svc     *calendar.Service
	opts    CalendarOptions
	limiter *rate.Limiter
}

type CalendarOptions struct {
	CalendarID string
	MaxResults int64
	QPS        float64
	Retry      RetryPolicy
	Now        func() time.Time
}

func (o CalendarOptions) withDefaults() CalendarOptions {
	if o.CalendarID == "" {
		o.CalendarID = "primary"
	}
	if o.MaxResults <= 0 {
		o.MaxResults = 100
	}
	if o.QPS <= 0 {
		o.QPS = 5
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

func NewCalendarSource(ctx context.Context, session *GoogleSession, opts CalendarOptions) (*CalendarSource, error) {
	svc, err := calendar.NewService(ctx, session.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	opts = opts.withDefaults()
	return &CalendarSource{svc: svc, opts: opts, limiter: newLimiter(opts.QPS)}, nil
}

func (c *CalendarSource) Name() string { return "google_calendar" }

// Fetch lists events from the window start onward and keeps those whose
// attendees include target or whose title contains it.
func (c *CalendarSource) Fetch(ctx context.Context, target string, window Window) (FetchResult, error) {
	start := time.Now()
	target = identity.NormalizeEmail(target)
	if target == "" {
		return FetchResult{}, fmt.Errorf("target address is required")
	}

	events, err := callWithRetry(ctx, c.limiter, c.opts.Retry, func() (*calendar.Events, error) {
		return c.svc.Events.List(c.opts.CalendarID).
			TimeMin(window.Start.Format(time.RFC3339)).
			MaxResults(c.opts.MaxResults).
			SingleEvents(true).
			OrderBy("startTime").
			Q(target).
			Context(ctx).
			Do()
	})
	if err != nil {
		return FetchResult{}, classifyGoogleErr("list calendar events", err)
	}

	var result FetchResult
	for _, ev := range events.Items {
		if ev == nil || ev.Status == "cancelled" || !involves(ev, target) {
			continue
		}
		rec, err := c.toRecord(target, ev)
		if err != nil {
			logging.From(ctx).Warn("skipping calendar event", "id", ev.Id, "error", err)
			result.skip(ev.Id, err)
			continue
		}
		result.Records = append(result.Records, rec)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func involves(ev *calendar.Event, target string) bool {
	for _, a := range ev.Attendees {
		if a != nil && strings.EqualFold(strings.TrimSpace(a.Email), target) {
			return true
		}
	}
	return strings.Contains(ev.Summary, target)
}

func (c *CalendarSource) toRecord(target string, ev *calendar.Event) (model.RawRecord, error) {
	ts, known := c.opts.Now(), false
	if ev.Start != nil {
		switch {
		case ev.Start.DateTime != "":
			t, err := time.Parse(time.RFC3339, ev.Start.DateTime)
			if err != nil {
				return model.RawRecord{}, fmt.Errorf("bad start time %q: %w", ev.Start.DateTime, err)
			}
			ts, known = t, true
		case ev.Start.Date != "":
			t, err := time.Parse(time.DateOnly, ev.Start.Date)
			if err != nil {
				return model.RawRecord{}, fmt.Errorf("bad start date %q: %w", ev.Start.Date, err)
			}
			ts, known = t, true
		}
	}

	title := ev.Summary
	if strings.TrimSpace(title) == "" {
		title = untitledEvent
	}
	meta := map[string]any{"event_id": ev.Id}
	if ev.Location != "" {
		meta["location"] = ev.Location
	}
	return model.RawRecord{
		Source:         model.SourceCalendar,
		Identity:       target,
		Timestamp:      ts.UTC(),
		TimestampKnown: known,
		Subject:        title,
		Text:           ev.Description,
		Direction:      model.DirectionBidirectional,
		Metadata:       meta,
	}, nil
}
