// Package store implements the address book, interaction history, service,
// outreach, credential and data source stores on top of the sqlite database.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// Stores bundles every store over one database handle.
type Stores struct {
	Customers    *CustomerStore
	Interactions *InteractionStore
	Services     *ServiceStore
	Outreach     *OutreachStore
	Credentials  *CredentialStore
	DataSources  *DataSourceStore
}

func New(db *sql.DB) Stores {
	return Stores{
		Customers:    NewCustomerStore(db),
		Interactions: NewInteractionStore(db),
		Services:     NewServiceStore(db),
		Outreach:     NewOutreachStore(db),
		Credentials:  NewCredentialStore(db),
		DataSources:  NewDataSourceStore(db),
	}
}

// wrapErr classifies a driver error. Constraint violations reject only the
// record being written; anything else means the store itself failed.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConstraint(err) {
		return fmt.Errorf("%w: failed to %s: %w", model.ErrInvalidRecord, op, err)
	}
	return fmt.Errorf("%w: failed to %s: %w", model.ErrStorageUnavailable, op, err)
}

func isConstraint(err error) bool {
	return strings.Contains(err.Error(), "constraint failed")
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode metadata: %w", model.ErrInvalidRecord, err)
	}
	return string(b), nil
}

func decodeMetadata(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return map[string]any{"raw": s.String}
	}
	return m
}

func unixOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
