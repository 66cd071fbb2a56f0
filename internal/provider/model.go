// Package provider implements the built-in identity provider: password and
// Google accounts, email verification, password reset, and token revocation
// stamps. It is the development stand-in for a hosted identity service; the
// session layer only depends on the ID tokens it mints.
package provider

import (
	"time"

	"github.com/google/uuid"
)

// Account is a credential record owned by the identity provider. It is
// distinct from the profile document: the account holds secrets and
// provider-side state, the profile holds application data.
type Account struct {
	ID               uuid.UUID `json:"id"                 db:"id"`
	Email            string    `json:"email"              db:"email"`
	PasswordHash     string    `json:"-"                  db:"password_hash"`
	DisplayName      string    `json:"display_name"       db:"display_name"`
	PhotoURL         string    `json:"photo_url"          db:"photo_url"`
	EmailVerified    bool      `json:"email_verified"     db:"email_verified"`
	TokensValidAfter time.Time `json:"tokens_valid_after" db:"tokens_valid_after"`
	CreatedAt        time.Time `json:"created_at"         db:"created_at"`
	LastLoginAt      time.Time `json:"last_login_at"      db:"last_login_at"`
	UpdatedAt        time.Time `json:"updated_at"         db:"updated_at"`
}

// UID returns the account identifier as used in token subjects.
func (a *Account) UID() string {
	return a.ID.String()
}

// OAuthLink ties an account to an external OAuth provider identity.
type OAuthLink struct {
	ID         uuid.UUID `json:"id"          db:"id"`
	AccountID  uuid.UUID `json:"account_id"  db:"account_id"`
	Provider   string    `json:"provider"    db:"provider"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}
