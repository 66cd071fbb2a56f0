package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an account lookup finds no matching record.
var ErrNotFound = errors.New("account not found")

// ErrDuplicateEmail is returned when a signup attempts to use an already-registered email.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository provides CRUD operations for accounts against PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new account. Sets ID, CreatedAt, UpdatedAt on the account.
func (r *Repository) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	q := `
		INSERT INTO accounts (id, email, password_hash, display_name, photo_url, email_verified, tokens_valid_after, created_at, last_login_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, q,
		a.ID, a.Email, a.PasswordHash, a.DisplayName, a.PhotoURL,
		a.EmailVerified, a.TokensValidAfter, a.CreatedAt, a.LastLoginAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by its UUID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.scanOne(ctx, `SELECT * FROM accounts WHERE id = $1`, id)
}

// GetByEmail retrieves an account by its email address.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.scanOne(ctx, `SELECT * FROM accounts WHERE email = $1`, email)
}

// GetByOAuth retrieves an account linked to the given OAuth provider identity.
func (r *Repository) GetByOAuth(ctx context.Context, provider, providerID string) (*Account, error) {
	q := `
		SELECT a.* FROM accounts a
		JOIN account_oauth o ON o.account_id = a.id
		WHERE o.provider = $1 AND o.provider_id = $2`
	return r.scanOne(ctx, q, provider, providerID)
}

// LinkOAuth adds an OAuth provider link to an existing account.
// Silently ignores duplicate links.
func (r *Repository) LinkOAuth(ctx context.Context, accountID uuid.UUID, provider, providerID string) error {
	q := `
		INSERT INTO account_oauth (id, account_id, provider, provider_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider, provider_id) DO NOTHING`
	_, err := r.db.Exec(ctx, q, uuid.New(), accountID, provider, providerID, time.Now().UTC())
	return err
}

// Providers returns the sign-in providers available to the account:
// "password" if a password hash is set, plus any linked OAuth providers.
func (r *Repository) Providers(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	a, err := r.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var providers []string
	if a.PasswordHash != "" {
		providers = append(providers, "password")
	}
	rows, err := r.db.Query(ctx,
		`SELECT provider FROM account_oauth WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list oauth links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan oauth link: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// SetEmailVerified marks the account's email as verified.
func (r *Repository) SetEmailVerified(ctx context.Context, accountID uuid.UUID) error {
	q := `UPDATE accounts SET email_verified = true, updated_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, accountID, time.Now().UTC())
	return err
}

// SetPasswordHash updates an account's password hash.
func (r *Repository) SetPasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error {
	q := `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, accountID, hash, time.Now().UTC())
	return err
}

// TouchLogin records a successful sign-in time.
func (r *Repository) TouchLogin(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	q := `UPDATE accounts SET last_login_at = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, accountID, at.UTC())
	return err
}

// RevokeTokens moves the account's revocation stamp forward so that ID tokens
// issued before the stamp fail verification with checkRevoked enabled.
func (r *Repository) RevokeTokens(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	q := `UPDATE accounts SET tokens_valid_after = $2, updated_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, accountID, at.UTC())
	return err
}

// TokensValidAfter returns the revocation stamp for the given token subject.
// Unknown or malformed uids return the zero time and no error, so tokens for
// subjects this provider never issued are not treated as revoked.
func (r *Repository) TokensValidAfter(ctx context.Context, uid string) (time.Time, error) {
	id, err := uuid.Parse(uid)
	if err != nil {
		return time.Time{}, nil
	}
	var stamp time.Time
	err = r.db.QueryRow(ctx,
		`SELECT tokens_valid_after FROM accounts WHERE id = $1`, id).Scan(&stamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("lookup revocation stamp: %w", err)
	}
	return stamp, nil
}

// CreateVerificationToken stores a new email-verification token for the account.
func (r *Repository) CreateVerificationToken(ctx context.Context, accountID uuid.UUID, token string, expires time.Time) error {
	return r.createToken(ctx, accountID, token, "email_verification", expires)
}

// CreatePasswordResetToken stores a new password-reset token for the account.
func (r *Repository) CreatePasswordResetToken(ctx context.Context, accountID uuid.UUID, token string, expires time.Time) error {
	return r.createToken(ctx, accountID, token, "password_reset", expires)
}

func (r *Repository) createToken(ctx context.Context, accountID uuid.UUID, token, tokenType string, expires time.Time) error {
	q := `
		INSERT INTO account_tokens (id, account_id, token, token_type, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, q, uuid.New(), accountID, token, tokenType, expires, time.Now().UTC())
	return err
}

// UseVerificationToken atomically marks an email-verification token as used,
// sets email_verified = true on the account, and returns the verified account.
// Returns ErrNotFound for unknown or wrong-type tokens.
func (r *Repository) UseVerificationToken(ctx context.Context, token string) (*Account, error) {
	accountID, err := r.consumeToken(ctx, token, "email_verification", true)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, accountID)
}

// UsePasswordResetToken atomically marks a password-reset token as used and
// returns the owning account. It does not touch email_verified.
// Returns ErrNotFound for unknown or wrong-type tokens.
func (r *Repository) UsePasswordResetToken(ctx context.Context, token string) (*Account, error) {
	accountID, err := r.consumeToken(ctx, token, "password_reset", false)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, accountID)
}

// consumeToken is the shared single-use token path for both token types.
func (r *Repository) consumeToken(ctx context.Context, token, tokenType string, markVerified bool) (uuid.UUID, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var accountID uuid.UUID
	var expiresAt time.Time
	var usedAt *time.Time
	q := `SELECT account_id, expires_at, used_at FROM account_tokens WHERE token = $1 AND token_type = $2`
	if err := tx.QueryRow(ctx, q, token, tokenType).Scan(&accountID, &expiresAt, &usedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("query token: %w", err)
	}

	if usedAt != nil {
		return uuid.Nil, fmt.Errorf("token already used")
	}
	if time.Now().After(expiresAt) {
		return uuid.Nil, fmt.Errorf("token expired")
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE account_tokens SET used_at = $2 WHERE token = $1`, token, now,
	); err != nil {
		return uuid.Nil, fmt.Errorf("mark token used: %w", err)
	}
	if markVerified {
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET email_verified = true, updated_at = $2 WHERE id = $1`, accountID, now,
		); err != nil {
			return uuid.Nil, fmt.Errorf("set email verified: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return accountID, nil
}

// DeleteExpiredTokens prunes tokens that expired before the cutoff.
// Returns the number of rows removed.
func (r *Repository) DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM account_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanOne executes a single-row query and scans the result into an Account.
// Column order: id, email, password_hash, display_name, photo_url,
// email_verified, tokens_valid_after, created_at, last_login_at, updated_at
// (matches the schema definition order).
func (r *Repository) scanOne(ctx context.Context, q string, args ...any) (*Account, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	var a Account
	if err := rows.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.PhotoURL,
		&a.EmailVerified, &a.TokensValidAfter, &a.CreatedAt, &a.LastLoginAt, &a.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, rows.Err()
}
