package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// DataSourceStore tracks import and sync runs.
type DataSourceStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewDataSourceStore(db *sql.DB) *DataSourceStore {
	return &DataSourceStore{db: db, now: time.Now}
}

// Create inserts ds, filling ID, timestamps and a pending status when unset.
func (s *DataSourceStore) Create(ctx context.Context, ds *model.DataSource) error {
	if ds.ID == "" {
		ds.ID = uuid.New().String()
	}
	if ds.Status == "" {
		ds.Status = model.StatusPending
	}
	now := s.now().UTC().Truncate(time.Second)
	ds.CreatedAt, ds.UpdatedAt = now, now
	meta, err := encodeMetadata(ds.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO data_sources (id, owner_id, source_type, status, last_sync_date, metadata_json, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ds.ID, ds.OwnerID, string(ds.SourceType), string(ds.Status), nullTime(ds.LastSyncDate), meta,
		nullString(ds.ErrorMessage), now.Unix(), now.Unix())
	return wrapErr("insert data source", err)
}

// Update writes status, last sync date, metadata and error of ds.
func (s *DataSourceStore) Update(ctx context.Context, ds *model.DataSource) error {
	ds.UpdatedAt = s.now().UTC().Truncate(time.Second)
	meta, err := encodeMetadata(ds.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE data_sources
		SET status = ?, last_sync_date = ?, metadata_json = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`, string(ds.Status), nullTime(ds.LastSyncDate), meta, nullString(ds.ErrorMessage), ds.UpdatedAt.Unix(), ds.ID)
	return wrapErr("update data source", err)
}

// List returns the owner's most recent runs, newest first.
func (s *DataSourceStore) List(ctx context.Context, ownerID string, limit int) ([]model.DataSource, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, source_type, status, last_sync_date, metadata_json, error_message, created_at, updated_at
		FROM data_sources WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, wrapErr("list data sources", err)
	}
	defer rows.Close()

	var out []model.DataSource
	for rows.Next() {
		var (
			ds               model.DataSource
			typ, status      string
			lastSync         sql.NullInt64
			meta, errMsg     sql.NullString
			created, updated int64
		)
		if err := rows.Scan(&ds.ID, &ds.OwnerID, &typ, &status, &lastSync, &meta, &errMsg, &created, &updated); err != nil {
			return nil, wrapErr("scan data source", err)
		}
		ds.SourceType = model.DataSourceType(typ)
		ds.Status = model.DataSourceStatus(status)
		ds.LastSyncDate = unixOrNil(lastSync)
		ds.Metadata = decodeMetadata(meta)
		ds.ErrorMessage = errMsg.String
		ds.CreatedAt = time.Unix(created, 0).UTC()
		ds.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list data sources", err)
	}
	return out, nil
}
