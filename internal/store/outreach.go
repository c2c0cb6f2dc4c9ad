package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// OutreachStore is the outreach log.
type OutreachStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewOutreachStore(db *sql.DB) *OutreachStore {
	return &OutreachStore{db: db, now: time.Now}
}

func (s *OutreachStore) Create(ctx context.Context, rec *model.OutreachRecord) error {
	if rec.ContactedDate.IsZero() {
		return fmt.Errorf("%w: contacted date is required", model.ErrInvalidRecord)
	}
	var month any
	if rec.NextContactMonth != nil {
		month = int(*rec.NextContactMonth)
	}
	responded := 0
	if rec.ResponseReceived {
		responded = 1
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_logs (
			owner_id, customer_id, contacted_date, response_received, response_type,
			notes, next_contact_date, next_contact_month, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.OwnerID, rec.CustomerID, rec.ContactedDate.Unix(), responded, nullString(rec.ResponseType),
		nullString(rec.Notes), nullTime(rec.NextContactDate), month, s.now().Unix())
	if err != nil {
		return wrapErr("insert outreach", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapErr("read outreach id", err)
	}
	rec.ID = id
	return nil
}

// MostRecent returns the customer's latest outreach by contacted date.
func (s *OutreachStore) MostRecent(ctx context.Context, customerID int64) (model.OutreachRecord, bool, error) {
	var (
		rec                 model.OutreachRecord
		contacted           int64
		responded           int
		respType, notes     sql.NullString
		nextDate, nextMonth sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, customer_id, contacted_date, response_received, response_type,
			notes, next_contact_date, next_contact_month
		FROM outreach_logs
		WHERE customer_id = ?
		ORDER BY contacted_date DESC, id DESC
		LIMIT 1
	`, customerID).Scan(&rec.ID, &rec.OwnerID, &rec.CustomerID, &contacted, &responded, &respType,
		&notes, &nextDate, &nextMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OutreachRecord{}, false, nil
	}
	if err != nil {
		return model.OutreachRecord{}, false, wrapErr("read latest outreach", err)
	}
	rec.ContactedDate = time.Unix(contacted, 0).UTC()
	rec.ResponseReceived = responded != 0
	rec.ResponseType = respType.String
	rec.Notes = notes.String
	rec.NextContactDate = unixOrNil(nextDate)
	if nextMonth.Valid {
		m := time.Month(nextMonth.Int64)
		rec.NextContactMonth = &m
	}
	return rec, true, nil
}
