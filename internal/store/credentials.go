package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/trevor-commits/proactive-outreach-crm/internal/model"
)

// CredentialStore keeps one Google token pair per owner.
type CredentialStore struct {
	db *sql.DB
}

func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) Get(ctx context.Context, ownerID string) (model.Credential, bool, error) {
	var (
		cred           model.Credential
		refresh, scope sql.NullString
		expires        sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, access_token, refresh_token, expires_at, scope
		FROM google_credentials WHERE owner_id = ?
	`, ownerID).Scan(&cred.OwnerID, &cred.AccessToken, &refresh, &expires, &scope)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, false, nil
	}
	if err != nil {
		return model.Credential{}, false, wrapErr("read credential", err)
	}
	cred.RefreshToken = refresh.String
	cred.Scope = scope.String
	if expires.Valid {
		cred.Expiry = time.Unix(expires.Int64, 0).UTC()
	}
	return cred, true, nil
}

// Upsert replaces the owner's credential.
func (s *CredentialStore) Upsert(ctx context.Context, cred model.Credential) error {
	var expires any
	if !cred.Expiry.IsZero() {
		expires = cred.Expiry.Unix()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO google_credentials (owner_id, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`, cred.OwnerID, cred.AccessToken, nullString(cred.RefreshToken), expires, nullString(cred.Scope), time.Now().Unix())
	return wrapErr("upsert credential", err)
}
