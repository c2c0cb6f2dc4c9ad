package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// InteractionStore persists interaction events. Rows are never updated.
type InteractionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewInteractionStore(db *sql.DB) *InteractionStore {
	return &InteractionStore{db: db, now: time.Now}
}

// Create inserts ev, assigning an ID and CreatedAt when unset.
func (s *InteractionStore) Create(ctx context.Context, ev *model.InteractionEvent) error {
	if ev.CustomerID == 0 {
		return fmt.Errorf("%w: interaction without customer", model.ErrInvalidRecord)
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	if ev.Direction == "" {
		ev.Direction = model.DirectionUnknown
	}
	meta, err := encodeMetadata(ev.Metadata)
	if err != nil {
		return err
	}
	known := 0
	if ev.TimestampKnown {
		known = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interactions (
			id, owner_id, customer_id, type, direction, timestamp_ms, timestamp_known,
			subject, body, source, metadata_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.OwnerID, ev.CustomerID, string(ev.Type), string(ev.Direction), ev.Timestamp.UnixMilli(), known,
		nullString(ev.Subject), nullString(ev.Body), string(ev.Source), meta, ev.CreatedAt.Unix())
	return wrapErr("insert interaction", err)
}

// ListByCustomer returns a customer's interactions, newest first.
func (s *InteractionStore) ListByCustomer(ctx context.Context, customerID int64) ([]model.InteractionEvent, error) {
	return s.ListRecent(ctx, customerID, 0)
}

// ListRecent returns at most limit of a customer's newest interactions. A
// limit of zero or less returns all of them.
func (s *InteractionStore) ListRecent(ctx context.Context, customerID int64, limit int) ([]model.InteractionEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, customer_id, type, direction, timestamp_ms, timestamp_known,
			subject, body, source, metadata_json, created_at
		FROM interactions
		WHERE customer_id = ?
		ORDER BY timestamp_ms DESC, created_at DESC
		LIMIT ?
	`, customerID, limit)
	if err != nil {
		return nil, wrapErr("list interactions", err)
	}
	defer rows.Close()

	var out []model.InteractionEvent
	for rows.Next() {
		var (
			ev                  model.InteractionEvent
			typ, dir, src       string
			tsMS, createdAt     int64
			known               int
			subject, body, meta sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.OwnerID, &ev.CustomerID, &typ, &dir, &tsMS, &known,
			&subject, &body, &src, &meta, &createdAt); err != nil {
			return nil, wrapErr("scan interaction", err)
		}
		ev.Type = model.EventType(typ)
		ev.Direction = model.Direction(dir)
		ev.Source = model.EventSource(src)
		ev.Timestamp = time.UnixMilli(tsMS).UTC()
		ev.TimestampKnown = known == 1
		ev.Subject = subject.String
		ev.Body = body.String
		ev.Metadata = decodeMetadata(meta)
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list interactions", err)
	}
	return out, nil
}

// MostRecentTimestamp returns the newest known interaction time. Events whose
// source timestamp was unknown are ignored.
func (s *InteractionStore) MostRecentTimestamp(ctx context.Context, customerID int64) (time.Time, bool, error) {
	var ms sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp_ms) FROM interactions
		WHERE customer_id = ? AND timestamp_known = 1
	`, customerID).Scan(&ms)
	if err != nil {
		return time.Time{}, false, wrapErr("read latest interaction", err)
	}
	if !ms.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), true, nil
}

// CountByOwner returns the number of stored interactions per type.
func (s *InteractionStore) CountByOwner(ctx context.Context, ownerID string) (map[model.EventType]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*) FROM interactions WHERE owner_id = ? GROUP BY type
	`, ownerID)
	if err != nil {
		return nil, wrapErr("count interactions", err)
	}
	defer rows.Close()

	out := map[model.EventType]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, wrapErr("scan interaction count", err)
		}
		out[model.EventType(typ)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("count interactions", err)
	}
	return out, nil
}
