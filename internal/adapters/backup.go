package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/db"
	"github.com/trevor-commits/proactive-outreach-crm/internal/logging"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// Extraction is the result of reading a device backup.
type Extraction struct {
	Messages []model.RawRecord
	Calls    []model.RawRecord
	Duration time.Duration
	// Perf is an optional breakdown of phase timings (human-readable durations).
	Perf map[string]string `json:"perf,omitempty"`
}

// BackupExtractor reads message and call records out of device backup stores.
// It holds no open handles between calls and is safe for concurrent use.
type BackupExtractor struct {
	schemas []BackupSchema
}

// NewBackupExtractor returns an extractor trying schemas in order, or
// DefaultSchemas when none are given.
func NewBackupExtractor(schemas ...BackupSchema) *BackupExtractor {
	if len(schemas) == 0 {
		schemas = DefaultSchemas()
	}
	return &BackupExtractor{schemas: schemas}
}

// Extract reads the primary archive (message store) and the optional
// secondary archive (call history). An unreadable archive or one matching no
// schema fails the whole call with model.ErrExtraction. An empty or missing
// secondary path yields no calls.
func (e *BackupExtractor) Extract(ctx context.Context, primaryPath, secondaryPath string) (Extraction, error) {
	start := time.Now()
	out := Extraction{Perf: map[string]string{}}

	if strings.TrimSpace(primaryPath) == "" {
		return Extraction{}, fmt.Errorf("%w: primary archive path is required", model.ErrExtraction)
	}
	msgs, calls, err := e.extractFile(ctx, primaryPath)
	if err != nil {
		return Extraction{}, err
	}
	out.Messages = append(out.Messages, msgs...)
	out.Calls = append(out.Calls, calls...)
	out.Perf["primary"] = time.Since(start).String()

	if secondaryPath != "" {
		if _, statErr := os.Stat(secondaryPath); errors.Is(statErr, fs.ErrNotExist) {
			logging.From(ctx).Info("no call history archive supplied", "path", secondaryPath)
		} else {
			phase := time.Now()
			msgs, calls, err := e.extractFile(ctx, secondaryPath)
			if err != nil {
				return Extraction{}, err
			}
			out.Messages = append(out.Messages, msgs...)
			out.Calls = append(out.Calls, calls...)
			out.Perf["secondary"] = time.Since(phase).String()
		}
	}

	out.Duration = time.Since(start)
	out.Perf["total"] = out.Duration.String()
	return out, nil
}

func (e *BackupExtractor) extractFile(ctx context.Context, path string) (msgs, calls []model.RawRecord, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", model.ErrExtraction, path, err)
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is a directory", model.ErrExtraction, path)
	}

	archive, err := db.OpenArchive(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", model.ErrExtraction, path, err)
	}
	defer archive.Close()

	tables, err := tableNames(ctx, archive.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s is not a readable sqlite store: %w", model.ErrExtraction, path, err)
	}

	schema := e.detect(tables)
	if schema == nil {
		return nil, nil, fmt.Errorf("%w: %s matches no known backup schema", model.ErrExtraction, path)
	}

	msgs, err = schema.ExtractMessages(ctx, archive.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s (%s): %w", model.ErrExtraction, path, schema.Name(), err)
	}
	calls, err = schema.ExtractCalls(ctx, archive.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s (%s): %w", model.ErrExtraction, path, schema.Name(), err)
	}
	logging.From(ctx).Debug("extracted archive", "path", path, "schema", schema.Name(),
		"messages", len(msgs), "calls", len(calls))
	return msgs, calls, nil
}

func (e *BackupExtractor) detect(tables map[string]bool) BackupSchema {
	for _, s := range e.schemas {
		if s.Detect(tables) {
			return s
		}
	}
	return nil
}

func tableNames(ctx context.Context, archive *sql.DB) (map[string]bool, error) {
	rows, err := archive.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[name] = true
	}
	return tables, rows.Err()
}
