package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/adapters"
	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// Extractor reads raw message and call records out of device archives.
type Extractor interface {
	Extract(ctx context.Context, primaryPath, secondaryPath string) (adapters.Extraction, error)
}

// RunRecorder tracks import and sync runs.
type RunRecorder interface {
	Create(ctx context.Context, ds *model.DataSource) error
	Update(ctx context.Context, ds *model.DataSource) error
}

// ImportResult summarizes one archive import.
type ImportResult struct {
	DataSourceID string              `json:"data_source_id"`
	Messages     int                 `json:"messages"`
	Calls        int                 `json:"calls"`
	Matched      int                 `json:"matched"`
	Unmatched    int                 `json:"unmatched"`
	Failures     []model.ItemFailure `json:"failures,omitempty"`
	Duration     time.Duration       `json:"-"`
	// Perf is an optional breakdown of phase timings (human-readable durations).
	Perf map[string]string `json:"perf,omitempty"`
}

// Importer extracts a device backup and ingests its records, recording the
// run as a data source.
type Importer struct {
	extractor Extractor
	pipeline  *Pipeline
	runs      RunRecorder
	now       func() time.Time
}

func NewImporter(extractor Extractor, pipeline *Pipeline, runs RunRecorder) *Importer {
	return &Importer{extractor: extractor, pipeline: pipeline, runs: runs, now: time.Now}
}

// Import reads primaryPath (message store) and the optional secondaryPath
// (call history) and ingests everything found. The run is marked completed
// with its counts, or failed with the error that stopped it.
func (im *Importer) Import(ctx context.Context, ownerID, primaryPath, secondaryPath string) (ImportResult, error) {
	start := time.Now()
	log := logging.From(ctx).With("owner", ownerID, "archive", primaryPath)

	run := &model.DataSource{OwnerID: ownerID, SourceType: model.DataSourceBackup, Status: model.StatusInProgress}
	if err := im.runs.Create(ctx, run); err != nil {
		return ImportResult{}, fmt.Errorf("failed to record import run: %w", err)
	}
	res := ImportResult{DataSourceID: run.ID, Perf: map[string]string{}}

	fail := func(err error) (ImportResult, error) {
		run.Status = model.StatusFailed
		run.ErrorMessage = err.Error()
		if uerr := im.runs.Update(context.WithoutCancel(ctx), run); uerr != nil {
			log.Error("failed to record import failure", "error", uerr)
		}
		res.Duration = time.Since(start)
		return res, err
	}

	ext, err := im.extractor.Extract(ctx, primaryPath, secondaryPath)
	if err != nil {
		log.Error("extraction failed", "error", err)
		return fail(err)
	}
	res.Messages, res.Calls = len(ext.Messages), len(ext.Calls)
	res.Perf["extract"] = ext.Duration.String()

	ing, err := im.pipeline.IngestRecords(ctx, ownerID, ext.Messages, ext.Calls)
	res.Matched, res.Unmatched, res.Failures = ing.Matched, ing.Unmatched, ing.Failures
	res.Perf["ingest"] = ing.Duration.String()
	if err != nil {
		if !errors.Is(err, model.ErrStorageUnavailable) {
			err = fmt.Errorf("import interrupted: %w", err)
		}
		return fail(err)
	}

	now := im.now().UTC()
	run.Status = model.StatusCompleted
	run.LastSyncDate = &now
	run.Metadata = map[string]any{
		"messages":  res.Messages,
		"calls":     res.Calls,
		"matched":   res.Matched,
		"unmatched": res.Unmatched,
		"failed":    len(res.Failures),
	}
	if err := im.runs.Update(ctx, run); err != nil {
		return fail(err)
	}

	res.Duration = time.Since(start)
	res.Perf["total"] = res.Duration.String()
	log.Info("import complete", "messages", res.Messages, "calls", res.Calls,
		"matched", res.Matched, "unmatched", res.Unmatched, "duration", res.Duration)
	return res, nil
}
