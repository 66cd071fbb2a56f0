// Package profile implements the user profile document and the login
// reconciliation that keeps it in sync with identity-provider claims.
package profile

import "time"

// Role is the authorization role stored on a profile. It is owned by the
// server: the login reconciliation path never changes it.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AuthProvider records which sign-in method first created the profile.
type AuthProvider string

const (
	ProviderPassword AuthProvider = "password"
	ProviderGoogle   AuthProvider = "google"
)

// Profile is the denormalized per-user document stored in the users
// collection, keyed by the immutable provider uid. Field names mirror the
// stored document.
type Profile struct {
	UID                 string       `json:"-"`
	Email               string       `json:"email,omitempty"`
	DisplayName         string       `json:"displayName,omitempty"`
	PhotoURL            string       `json:"photoURL,omitempty"`
	Role                Role         `json:"role"`
	EmailVerified       bool         `json:"emailVerified"`
	AuthProvider        AuthProvider `json:"authProvider,omitempty"`
	OnboardingCompleted bool         `json:"onboardingCompleted"`
	CreatedAt           Timestamp    `json:"createdAt,omitempty"`
	LastLoginAt         Timestamp    `json:"lastLoginAt,omitempty"`
}

// Identity is the authenticated identity a successful login asserts, as
// supplied by the identity provider. Input to the reconciliation.
type Identity struct {
	UID           string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
	Providers     []string
	CreatedAt     time.Time
	LastSignInAt  time.Time
}

// DeriveProvider picks the profile's authProvider from the credential's
/// provider list: google wins when present, password otherwise.
func DeriveProvider(providers []string) AuthProvider {
	for _, p := range providers {
		if p == string(ProviderGoogle) || p == "google.com" {
			return ProviderGoogle
		}
	}
	return ProviderPassword
}

// SettingsUpdate carries the user-owned fields editable from the settings
// page. Nil fields are left untouched.
type SettingsUpdate struct {
	DisplayName         *string
	PhotoURL            *string
	OnboardingCompleted *bool
}
