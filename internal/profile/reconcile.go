package profile

import "time"

// FieldPolicy describes how one profile field is merged on login.
type FieldPolicy int

const (
	// PreferStored keeps the stored value when present and falls back to the
	// fresh identity claim. Used for fields the user may edit in settings.
	PreferStored FieldPolicy = iota
	// AlwaysOverwrite takes the fresh identity claim unconditionally. Used
	// for fields that must reflect the most recent login.
	AlwaysOverwrite
	// Immutable keeps the stored value unconditionally once set; the login
	// path never derives it from claims again.
	Immutable
)

// fieldRule binds one profile field to its merge policy and the merge itself.
// The merge policy is bespoke per field, so it lives in one explicit table
// instead of branching scattered through the merge code.
type fieldRule struct {
	name   string
	policy FieldPolicy
	apply  func(dst, stored, fresh *Profile)
}

var reconcileTable = []fieldRule{
	{"email", PreferStored, func(dst, stored, fresh *Profile) {
		dst.Email = firstNonEmpty(stored.Email, fresh.Email)
	}},
	{"displayName", PreferStored, func(dst, stored, fresh *Profile) {
		dst.DisplayName = firstNonEmpty(stored.DisplayName, fresh.DisplayName)
	}},
	{"photoURL", PreferStored, func(dst, stored, fresh *Profile) {
		dst.PhotoURL = firstNonEmpty(stored.PhotoURL, fresh.PhotoURL)
	}},
	{"role", Immutable, func(dst, stored, fresh *Profile) {
		dst.Role = stored.Role
		if dst.Role == "" {
			dst.Role = RoleUser
		}
	}},
	{"onboardingCompleted", Immutable, func(dst, stored, fresh *Profile) {
		dst.OnboardingCompleted = stored.OnboardingCompleted
	}},
	{"emailVerified", AlwaysOverwrite, func(dst, stored, fresh *Profile) {
		dst.EmailVerified = fresh.EmailVerified
	}},
	{"lastLoginAt", AlwaysOverwrite, func(dst, stored, fresh *Profile) {
		dst.LastLoginAt = fresh.LastLoginAt
	}},
	{"authProvider", PreferStored, func(dst, stored, fresh *Profile) {
		dst.AuthProvider = stored.AuthProvider
		if dst.AuthProvider == "" {
			dst.AuthProvider = fresh.AuthProvider
		}
	}},
	{"createdAt", Immutable, func(dst, stored, fresh *Profile) {
		dst.CreatedAt = stored.CreatedAt
		if dst.CreatedAt.IsZero() {
			dst.CreatedAt = fresh.CreatedAt
		}
	}},
}

// PolicyFor reports the merge policy for a profile field name.
func PolicyFor(field string) (FieldPolicy, bool) {
	for _, rule := range reconcileTable {
		if rule.name == field {
			return rule.policy, true
		}
	}
	return 0, false
}

// NewFromIdentity builds the profile written on first login of a previously
// unseen uid. Identity fields are copied verbatim; provider timestamps fall
// back to now when the provider did not report them.
func NewFromIdentity(id Identity, now time.Time) *Profile {
	return &Profile{
		UID:                 id.UID,
		Email:               id.Email,
		DisplayName:         id.DisplayName,
		PhotoURL:            id.PhotoURL,
		Role:                RoleUser,
		EmailVerified:       id.EmailVerified,
		AuthProvider:        DeriveProvider(id.Providers),
		OnboardingCompleted: false,
		CreatedAt:           NewTimestamp(id.CreatedAt).Or(now),
		LastLoginAt:         NewTimestamp(id.LastSignInAt).Or(now),
	}
}

// Merge reconciles a stored profile with a fresh identity assertion,
// applying each field's policy from the reconciliation table. The stored
// profile is not mutated.
func Merge(stored *Profile, id Identity, now time.Time) *Profile {
	fresh := NewFromIdentity(id, now)
	dst := &Profile{UID: stored.UID}
	if dst.UID == "" {
		dst.UID = fresh.UID
	}
	for _, rule := range reconcileTable {
		rule.apply(dst, stored, fresh)
	}
	return dst
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
