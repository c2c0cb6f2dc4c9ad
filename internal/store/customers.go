package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/identity"
	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// CustomerStore is the address book.
type CustomerStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewCustomerStore(db *sql.DB) *CustomerStore {
	return &CustomerStore{db: db, now: time.Now}
}

const customerColumns = `id, owner_id, name, phone, email, address, notes, created_at`

// Create inserts c with canonical phone and email and sets c.ID. A phone or
// email already owned by another customer of the same owner is rejected with
// model.ErrDuplicateIdentity.
func (s *CustomerStore) Create(ctx context.Context, c *model.CustomerIdentity) error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return fmt.Errorf("%w: customer owner is required", model.ErrInvalidRecord)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: customer name is required", model.ErrInvalidRecord)
	}
	if strings.TrimSpace(c.Phone) != "" {
		if !identity.IsPhoneLike(c.Phone) {
			return fmt.Errorf("%w: phone %q has no digits", model.ErrInvalidRecord, c.Phone)
		}
		c.Phone = identity.NormalizePhone(c.Phone)
	} else {
		c.Phone = ""
	}
	c.Email = identity.NormalizeEmail(c.Email)
	c.CreatedAt = s.now().UTC().Truncate(time.Second)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (owner_id, name, phone, email, address, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.OwnerID, c.Name, nullString(c.Phone), nullString(c.Email), nullString(c.Address), nullString(c.Notes),
		c.CreatedAt.Unix(), c.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", model.ErrDuplicateIdentity, err)
		}
		return wrapErr("insert customer", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapErr("read customer id", err)
	}
	c.ID = id
	return nil
}

// FindByPhone looks up a canonical phone. Lowest id wins if duplicates
// predate the unique index.
func (s *CustomerStore) FindByPhone(ctx context.Context, ownerID, phone string) (model.CustomerIdentity, bool, error) {
	if phone == "" {
		return model.CustomerIdentity{}, false, nil
	}
	return s.findOne(ctx, "find customer by phone", `
		SELECT `+customerColumns+` FROM customers
		WHERE owner_id = ? AND phone = ?
		ORDER BY id LIMIT 1
	`, ownerID, phone)
}

// FindByEmail looks up a canonical email. Lowest id wins if duplicates
// predate the unique index.
func (s *CustomerStore) FindByEmail(ctx context.Context, ownerID, email string) (model.CustomerIdentity, bool, error) {
	if email == "" {
		return model.CustomerIdentity{}, false, nil
	}
	return s.findOne(ctx, "find customer by email", `
		SELECT `+customerColumns+` FROM customers
		WHERE owner_id = ? AND email = ?
		ORDER BY id LIMIT 1
	`, ownerID, email)
}

func (s *CustomerStore) Get(ctx context.Context, ownerID string, id int64) (model.CustomerIdentity, bool, error) {
	return s.findOne(ctx, "get customer", `
		SELECT `+customerColumns+` FROM customers WHERE owner_id = ? AND id = ?
	`, ownerID, id)
}

// ListAll returns the owner's customers in insertion order.
func (s *CustomerStore) ListAll(ctx context.Context, ownerID string) ([]model.CustomerIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE owner_id = ? ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, wrapErr("list customers", err)
	}
	defer rows.Close()

	var out []model.CustomerIdentity
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, wrapErr("scan customer", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list customers", err)
	}
	return out, nil
}

func (s *CustomerStore) findOne(ctx context.Context, op, query string, args ...any) (model.CustomerIdentity, bool, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CustomerIdentity{}, false, nil
	}
	if err != nil {
		return model.CustomerIdentity{}, false, wrapErr(op, err)
	}
	return c, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(r rowScanner) (model.CustomerIdentity, error) {
	var (
		c                             model.CustomerIdentity
		phone, email, address, notes sql.NullString
		createdAt                     int64
	)
	if err := r.Scan(&c.ID, &c.OwnerID, &c.Name, &phone, &email, &address, &notes, &createdAt); err != nil {
		return model.CustomerIdentity{}, err
	}
	c.Phone = phone.String
	c.Email = email.String
	c.Address = address.String
	c.Notes = notes.String
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return c, nil
}
