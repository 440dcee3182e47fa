package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/jfellner/trailgate/auth"
)

// Schema is the migration applied at startup.
const Schema = `CREATE TABLE IF NOT EXISTS principals (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'standard',
    secret_digest TEXT NOT NULL,
    secret_changed_at TIMESTAMPTZ,
    reset_digest TEXT,
    reset_expires_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CONSTRAINT principals_reset_pair CHECK ((reset_digest IS NULL) = (reset_expires_at IS NULL))
);
CREATE UNIQUE INDEX IF NOT EXISTS principals_email_key ON principals (lower(email));`

const principalColumns = `id, name, email, role, secret_digest, secret_changed_at, reset_digest, reset_expires_at, created_at, updated_at`

// PrincipalRepository persists auth.Principal records inside PostgreSQL. It
// implements auth.PrincipalStore.
type PrincipalRepository struct {
	db *sql.DB
}

// NewPrincipalRepository wraps an existing *sql.DB connection.
func NewPrincipalRepository(db *sql.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

func (r *PrincipalRepository) Create(ctx context.Context, p auth.Principal) error {
	const query = `INSERT INTO principals (` + principalColumns + `)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Email, string(p.Role), p.SecretDigest,
		nullTime(p.SecretChangedAt), nullString(p.ResetDigest), nullTime(p.ResetExpiresAt),
		p.CreatedAt, p.UpdatedAt,
	)
	return translatePrincipalError(err)
}

func (r *PrincipalRepository) FindByEmail(ctx context.Context, email string) (auth.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE lower(email) = lower($1)`
	return r.scanPrincipal(r.db.QueryRowContext(ctx, query, email))
}

func (r *PrincipalRepository) FindByID(ctx context.Context, id string) (auth.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return r.scanPrincipal(r.db.QueryRowContext(ctx, query, id))
}

func (r *PrincipalRepository) UpdateSecret(ctx context.Context, id, digest string, changedAt time.Time) error {
	const query = `UPDATE principals SET secret_digest = $2, secret_changed_at = $3, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, digest, changedAt)
	if err != nil {
		return translatePrincipalError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (r *PrincipalRepository) SetReset(ctx context.Context, id, digest string, expiresAt time.Time) error {
	const query = `UPDATE principals SET reset_digest = $2, reset_expires_at = $3, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, digest, expiresAt)
	if err != nil {
		return translatePrincipalError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (r *PrincipalRepository) ClearReset(ctx context.Context, id string) error {
	const query = `UPDATE principals SET reset_digest = NULL, reset_expires_at = NULL, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return translatePrincipalError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// ConsumeReset installs the new digest and clears the reset state in a
// single UPDATE guarded by the digest match and the expiry. The row lock
// taken by UPDATE makes concurrent redemptions of the same token serialize;
// whichever runs second matches nothing.
func (r *PrincipalRepository) ConsumeReset(ctx context.Context, digest, newDigest string, changedAt, now time.Time) (auth.Principal, error) {
	const query = `UPDATE principals
                   SET secret_digest = $2, secret_changed_at = $3,
                       reset_digest = NULL, reset_expires_at = NULL, updated_at = $4
                   WHERE reset_digest = $1 AND reset_expires_at > $4
                   RETURNING ` + principalColumns
	p, err := r.scanPrincipal(r.db.QueryRowContext(ctx, query, digest, newDigest, changedAt, now))
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return auth.Principal{}, auth.ErrInvalidResetToken
		}
		return auth.Principal{}, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PrincipalRepository) scanPrincipal(row rowScanner) (auth.Principal, error) {
	var (
		p               auth.Principal
		role            string
		secretChangedAt sql.NullTime
		resetDigest     sql.NullString
		resetExpiresAt  sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&role,
		&p.SecretDigest,
		&secretChangedAt,
		&resetDigest,
		&resetExpiresAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Principal{}, auth.ErrNotFound
		}
		return auth.Principal{}, translatePrincipalError(err)
	}
	p.Role = auth.Role(role)
	if secretChangedAt.Valid {
		t := secretChangedAt.Time
		p.SecretChangedAt = &t
	}
	if resetDigest.Valid {
		p.ResetDigest = resetDigest.String
	}
	if resetExpiresAt.Valid {
		t := resetExpiresAt.Time
		p.ResetExpiresAt = &t
	}
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func translatePrincipalError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return auth.ErrEmailInUse
		case "22P02":
			return auth.ErrNotFound
		}
	}
	return err
}
