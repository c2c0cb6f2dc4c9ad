// Package sync pulls mail and calendar history for every customer with an
// email address and records it as interactions.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trevor-commits/proactive-outreach-crm/internal/adapters"
	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// Connector authenticates an owner and returns the sources to read from.
type Connector interface {
	Connect(ctx context.Context, ownerID string) (adapters.RemoteSources, error)
}

// CustomerLister lists the owner's address book.
type CustomerLister interface {
	ListAll(ctx context.Context, ownerID string) ([]model.CustomerIdentity, error)
}

// Recorder persists a record for a customer that is already resolved.
type Recorder interface {
	Record(ctx context.Context, ownerID string, customerID int64, rec model.RawRecord) error
}

// RunRecorder tracks sync runs.
type RunRecorder interface {
	Create(ctx context.Context, ds *model.DataSource) error
	Update(ctx context.Context, ds *model.DataSource) error
}

// TimeMarker stores the time of the last completed sync.
type TimeMarker interface {
	MarkTime(ctx context.Context, key string, ts time.Time) error
}

const LastSyncKey = "last_sync"

// SyncResult contains the aggregate of one sync run. Counts reflect what was
// persisted even when the run ends early.
type SyncResult struct {
	OK                 bool                `json:"ok"`
	Message            string              `json:"message,omitempty"`
	TotalEmails        int                 `json:"total_emails"`
	TotalEvents        int                 `json:"total_events"`
	CustomersProcessed int                 `json:"customers_processed"`
	Failures           []model.ItemFailure `json:"failures,omitempty"`
	Duration           time.Duration       `json:"-"`
	// Perf is an optional breakdown of phase timings (human-readable durations).
	Perf map[string]string `json:"perf,omitempty"`
}

type Options struct {
	Workers int
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Syncer struct {
	connector Connector
	customers CustomerLister
	recorder  Recorder
	runs      RunRecorder
	marker    TimeMarker
	opts      Options
}

// NewSyncer wires a Syncer. runs and marker may be nil.
func NewSyncer(connector Connector, customers CustomerLister, recorder Recorder, runs RunRecorder, marker TimeMarker, opts Options) *Syncer {
	return &Syncer{
		connector: connector,
		customers: customers,
		recorder:  recorder,
		runs:      runs,
		marker:    marker,
		opts:      opts.withDefaults(),
	}
}

// customerOutcome is written by exactly one worker.
type customerOutcome struct {
	emails   int
	events   int
	done     bool
	failures []model.ItemFailure
}

// SyncRemoteForAllCustomers connects once for ownerID, then fetches mail and
// calendar records for every customer with an email over the trailing
// lookbackDays. A customer whose fetch fails is reported in Failures and the
// rest continue. Expired credentials and storage outages stop the run. On
// cancellation the partial aggregate is returned with the context error.
func (s *Syncer) SyncRemoteForAllCustomers(ctx context.Context, ownerID string, lookbackDays int) (SyncResult, error) {
	start := time.Now()
	log := logging.From(ctx).With("owner", ownerID)
	result := SyncResult{Perf: map[string]string{}}

	sources, err := s.connector.Connect(ctx, ownerID)
	if err != nil {
		return result, fmt.Errorf("failed to connect remote sources: %w", err)
	}
	result.Perf["connect"] = time.Since(start).String()

	customers, err := s.customers.ListAll(ctx, ownerID)
	if err != nil {
		return result, err
	}
	var targets []model.CustomerIdentity
	for _, c := range customers {
		if strings.TrimSpace(c.Email) != "" {
			targets = append(targets, c)
		}
	}

	runs := s.startRuns(ctx, ownerID, sources)
	window := adapters.LookbackWindow(s.opts.Now(), lookbackDays)
	outcomes := make([]customerOutcome, len(targets))

	phase := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, c := range targets {
		g.Go(func() error {
			return s.syncCustomer(gctx, ownerID, c, sources, window, &outcomes[i])
		})
	}
	runErr := g.Wait()
	result.Perf["customers"] = time.Since(phase).String()

	for _, o := range outcomes {
		result.TotalEmails += o.emails
		result.TotalEvents += o.events
		result.Failures = append(result.Failures, o.failures...)
		if o.done {
			result.CustomersProcessed++
		}
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	result.Duration = time.Since(start)
	result.Perf["total"] = result.Duration.String()
	s.finishRuns(ctx, runs, result, runErr)

	if runErr != nil {
		log.Error("sync stopped early", "error", runErr, "processed", result.CustomersProcessed)
		result.Message = runErr.Error()
		return result, runErr
	}
	result.OK = true
	if s.marker != nil {
		if err := s.marker.MarkTime(ctx, LastSyncKey, s.opts.Now()); err != nil {
			log.Warn("failed to record last sync time", "error", err)
		}
	}
	log.Info("sync complete", "customers", result.CustomersProcessed, "emails", result.TotalEmails,
		"events", result.TotalEvents, "failed", len(result.Failures), "duration", result.Duration)
	return result, nil
}

// syncCustomer returns an error only when the whole run must stop.
func (s *Syncer) syncCustomer(ctx context.Context, ownerID string, c model.CustomerIdentity, sources adapters.RemoteSources, window adapters.Window, out *customerOutcome) error {
	log := logging.From(ctx).With("customer", c.ID)
	key := "customer:" + strconv.FormatInt(c.ID, 10)
	ok := true

	for _, src := range []adapters.RemoteSource{sources.Mail, sources.Calendar} {
		if src == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetched, err := src.Fetch(ctx, c.Email, window)
		if err != nil {
			if isFatal(err) || ctx.Err() != nil {
				return err
			}
			log.Warn("remote fetch failed", "source", src.Name(), "error", err)
			out.failures = append(out.failures, model.ItemFailure{Key: key + "/" + src.Name(), Reason: err.Error()})
			ok = false
			continue
		}
		for _, rec := range fetched.Records {
			if err := s.recorder.Record(ctx, ownerID, c.ID, rec); err != nil {
				if isFatal(err) {
					return err
				}
				log.Warn("skipping remote record", "source", src.Name(), "error", err)
				out.failures = append(out.failures, model.ItemFailure{Key: key + "/" + src.Name(), Reason: err.Error()})
				continue
			}
			if rec.Source == model.SourceMailbox {
				out.emails++
			} else {
				out.events++
			}
		}
	}
	out.done = ok
	return nil
}

func isFatal(err error) bool {
	return errors.Is(err, model.ErrAuthExpired) || errors.Is(err, model.ErrStorageUnavailable)
}

func (s *Syncer) startRuns(ctx context.Context, ownerID string, sources adapters.RemoteSources) map[string]*model.DataSource {
	runs := map[string]*model.DataSource{}
	if s.runs == nil {
		return runs
	}
	kinds := []struct {
		src adapters.RemoteSource
		typ model.DataSourceType
	}{
		{sources.Mail, model.DataSourceGmail},
		{sources.Calendar, model.DataSourceCalendar},
	}
	for _, k := range kinds {
		if k.src == nil {
			continue
		}
		typ := k.typ
		run := &model.DataSource{OwnerID: ownerID, SourceType: typ, Status: model.StatusInProgress}
		if err := s.runs.Create(ctx, run); err != nil {
			logging.From(ctx).Warn("failed to record sync run", "source", typ, "error", err)
			continue
		}
		runs[string(typ)] = run
	}
	return runs
}

func (s *Syncer) finishRuns(ctx context.Context, runs map[string]*model.DataSource, result SyncResult, runErr error) {
	ctx = context.WithoutCancel(ctx)
	now := s.opts.Now().UTC()
	for typ, run := range runs {
		run.Status = model.StatusCompleted
		run.LastSyncDate = &now
		if runErr != nil {
			run.Status = model.StatusFailed
			run.ErrorMessage = runErr.Error()
		}
		count := result.TotalEmails
		if typ == string(model.DataSourceCalendar) {
			count = result.TotalEvents
		}
		run.Metadata = map[string]any{
			"records":   count,
			"customers": result.CustomersProcessed,
			"failed":    len(result.Failures),
		}
		if err := s.runs.Update(ctx, run); err != nil {
			logging.From(ctx).Warn("failed to update sync run", "source", typ, "error", err)
		}
	}
}
