package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no profile document exists for a uid.
var ErrNotFound = errors.New("profile not found")

// Repository stores profile documents in PostgreSQL, one JSONB document per
// uid in the users table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new profile Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Get retrieves the profile document for a uid.
func (r *Repository) Get(ctx context.Context, uid string) (*Profile, error) {
	var doc []byte
	q := `SELECT doc FROM users WHERE uid = $1`
	if err := r.db.QueryRow(ctx, q, uid).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode profile doc: %w", err)
	}
	p.UID = uid
	return &p, nil
}

// Create writes a new profile document unconditionally. A concurrent create
// for the same uid is resolved last-write-wins, matching the single-writer-
// per-login-attempt model.
func (r *Repository) Create(ctx context.Context, p *Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile doc: %w", err)
	}
	q := `
		INSERT INTO users (uid, doc, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`
	if _, err := r.db.Exec(ctx, q, p.UID, doc, time.Now().UTC()); err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// Put replaces an existing profile document. Last-write-wins; no
// compare-and-swap is performed.
func (r *Repository) Put(ctx context.Context, p *Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile doc: %w", err)
	}
	q := `UPDATE users SET doc = $2, updated_at = $3 WHERE uid = $1`
	tag, err := r.db.Exec(ctx, q, p.UID, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns profiles ordered by most recent login, for the admin CLI.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]*Profile, error) {
	q := `SELECT uid, doc FROM users ORDER BY doc->>'lastLoginAt' DESC NULLS LAST LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		var uid string
		var doc []byte
		if err := rows.Scan(&uid, &doc); err != nil {
			return nil, fmt.Errorf("scan profile row: %w", err)
		}
		var p Profile
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode profile doc for %s: %w", uid, err)
		}
		p.UID = uid
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SetRole updates only the role field of a stored document. Reserved for the
// out-of-band admin path; the login reconciliation never calls it.
func (r *Repository) SetRole(ctx context.Context, uid string, role Role) error {
	q := `UPDATE users SET doc = jsonb_set(doc, '{role}', to_jsonb($2::text)), updated_at = $3 WHERE uid = $1`
	tag, err := r.db.Exec(ctx, q, uid, string(role), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
