package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// ServiceStore records the services performed for customers.
type ServiceStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewServiceStore(db *sql.DB) *ServiceStore {
	return &ServiceStore{db: db, now: time.Now}
}

func (s *ServiceStore) Create(ctx context.Context, rec *model.ServiceRecord) error {
	if strings.TrimSpace(rec.ServiceName) == "" {
		return fmt.Errorf("%w: service name is required", model.ErrInvalidRecord)
	}
	if rec.ServiceDate.IsZero() {
		return fmt.Errorf("%w: service date is required", model.ErrInvalidRecord)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO services (owner_id, customer_id, service_name, service_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.OwnerID, rec.CustomerID, rec.ServiceName, rec.ServiceDate.Unix(), nullString(rec.Notes), s.now().Unix())
	if err != nil {
		return wrapErr("insert service", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapErr("read service id", err)
	}
	rec.ID = id
	return nil
}

// ListAll returns every service record of the owner, grouped by customer
// and newest first within a customer.
func (s *ServiceStore) ListAll(ctx context.Context, ownerID string) ([]model.ServiceRecord, error) {
	return s.list(ctx, `
		SELECT id, owner_id, customer_id, service_name, service_date, notes
		FROM services WHERE owner_id = ?
		ORDER BY customer_id, service_date DESC, id
	`, ownerID)
}

func (s *ServiceStore) ListByCustomer(ctx context.Context, customerID int64) ([]model.ServiceRecord, error) {
	return s.list(ctx, `
		SELECT id, owner_id, customer_id, service_name, service_date, notes
		FROM services WHERE customer_id = ?
		ORDER BY service_date DESC, id
	`, customerID)
}

func (s *ServiceStore) list(ctx context.Context, query string, args ...any) ([]model.ServiceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list services", err)
	}
	defer rows.Close()

	var out []model.ServiceRecord
	for rows.Next() {
		var (
			rec   model.ServiceRecord
			date  int64
			notes sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.CustomerID, &rec.ServiceName, &date, &notes); err != nil {
			return nil, wrapErr("scan service", err)
		}
		rec.ServiceDate = time.Unix(date, 0).UTC()
		rec.Notes = notes.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list services", err)
	}
	return out, nil
}
