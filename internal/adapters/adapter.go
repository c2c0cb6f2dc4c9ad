package adapters

import (
	"context"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// DefaultLookbackDays bounds remote queries when the caller gives no window.
const DefaultLookbackDays = 365

// RemoteSource fetches candidate records for one target address from a
// remote service. Implementations skip items they cannot fetch and report
// them in FetchResult.Failures; an error return means nothing usable came
// back (or the context ended, in which case the partial result is returned
// alongside the error).
type RemoteSource interface {
	// Name returns the source name (e.g., "gmail", "google_calendar")
	Name() string

	Fetch(ctx context.Context, target string, window Window) (FetchResult, error)
}

// Window is the time span a remote query covers.
type Window struct {
	Start time.Time
	End   time.Time
}

// LookbackWindow returns the window of the trailing days ending at now.
func LookbackWindow(now time.Time, days int) Window {
	if days <= 0 {
		days = DefaultLookbackDays
	}
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

// FetchResult contains the records of one fetch plus the items skipped.
type FetchResult struct {
	Records  []model.RawRecord
	Failures []model.ItemFailure
	Duration time.Duration
}

func (r *FetchResult) skip(key string, err error) {
	r.Failures = append(r.Failures, model.ItemFailure{Key: key, Reason: err.Error()})
}

// RemoteSources is the pair of sources a sync run reads from.
type RemoteSources struct {
	Mail     RemoteSource
	Calendar RemoteSource
}
