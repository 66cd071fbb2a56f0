package profile_test

import (
	"testing"
	"time"

	"github.com/scaffoldhq/scaffold/internal/profile"
)

var (
	created   = time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	lastLogin = time.Date(2024, 6, 7, 8, 9, 10, 0, time.UTC)
	now       = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
)

func freshIdentity() profile.Identity {
	return profile.Identity{
		UID:           "uid-1",
		Email:         "alice@example.com",
		DisplayName:   "Alice",
		PhotoURL:      "https://img.example/alice.png",
		EmailVerified: true,
		Providers:     []string{"password"},
		CreatedAt:     created,
		LastSignInAt:  lastLogin,
	}
}

func storedProfile() *profile.Profile {
	return &profile.Profile{
		UID:                 "uid-1",
		Email:               "edited@example.com",
		DisplayName:         "Edited Name",
		PhotoURL:            "https://img.example/edited.png",
		Role:                profile.RoleAdmin,
		EmailVerified:       false,
		AuthProvider:        profile.ProviderGoogle,
		OnboardingCompleted: true,
		CreatedAt:           profile.NewTimestamp(created),
		LastLoginAt:         profile.NewTimestamp(created),
	}
}

func TestNewFromIdentity_defaults(t *testing.T) {
	p := profile.NewFromIdentity(freshIdentity(), now)

	if p.Role != profile.RoleUser {
		t.Errorf("role: got %s, want user", p.Role)
	}
	if p.OnboardingCompleted {
		t.Error("onboardingCompleted should default to false")
	}
	if p.AuthProvider != profile.ProviderPassword {
		t.Errorf("authProvider: got %s, want password", p.AuthProvider)
	}
	if !p.CreatedAt.Time().Equal(created) {
		t.Errorf("createdAt: got %v, want provider-reported %v", p.CreatedAt.Time(), created)
	}
	if !p.LastLoginAt.Time().Equal(lastLogin) {
		t.Errorf("lastLoginAt: got %v, want %v", p.LastLoginAt.Time(), lastLogin)
	}
}

func TestNewFromIdentity_missingProviderTimestamps(t *testing.T) {
	id := freshIdentity()
	id.CreatedAt = time.Time{}
	id.LastSignInAt = time.Time{}

	p := profile.NewFromIdentity(id, now)
	if !p.CreatedAt.Time().Equal(now) {
		t.Errorf("createdAt fallback: got %v, want %v", p.CreatedAt.Time(), now)
	}
	if !p.LastLoginAt.Time().Equal(now) {
		t.Errorf("lastLoginAt fallback: got %v, want %v", p.LastLoginAt.Time(), now)
	}
}

func TestDeriveProvider(t *testing.T) {
	cases := []struct {
		providers []string
		want      profile.AuthProvider
	}{
		{[]string{"password"}, profile.ProviderPassword},
		{[]string{"google"}, profile.ProviderGoogle},
		{[]string{"google.com"}, profile.ProviderGoogle},
		{[]string{"password", "google"}, profile.ProviderGoogle},
		{nil, profile.ProviderPassword},
	}
	for _, tc := range cases {
		if got := profile.DeriveProvider(tc.providers); got != tc.want {
			t.Errorf("DeriveProvider(%v) = %s, want %s", tc.providers, got, tc.want)
		}
	}
}

// Each field's policy, tested independently against the table.

func TestMerge_preferStoredFields(t *testing.T) {
	merged := profile.Merge(storedProfile(), freshIdentity(), now)

	if merged.Email != "edited@example.com" {
		t.Errorf("email: stored value must win, got %s", merged.Email)
	}
	if merged.DisplayName != "Edited Name" {
		t.Errorf("displayName: stored value must win, got %s", merged.DisplayName)
	}
	if merged.PhotoURL != "https://img.example/edited.png" {
		t.Errorf("photoURL: stored value must win, got %s", merged.PhotoURL)
	}
}

func TestMerge_preferStoredFallsBackToClaims(t *testing.T) {
	stored := storedProfile()
	stored.Email = ""
	stored.DisplayName = ""
	stored.PhotoURL = ""

	merged := profile.Merge(stored, freshIdentity(), now)
	if merged.Email != "alice@example.com" {
		t.Errorf("email: expected fresh claim fallback, got %s", merged.Email)
	}
	if merged.DisplayName != "Alice" {
		t.Errorf("displayName: expected fresh claim fallback, got %s", merged.DisplayName)
	}
	if merged.PhotoURL != "https://img.example/alice.png" {
		t.Errorf("photoURL: expected fresh claim fallback, got %s", merged.PhotoURL)
	}
}

func TestMerge_roleNeverDowngraded(t *testing.T) {
	merged := profile.Merge(storedProfile(), freshIdentity(), now)
	if merged.Role != profile.RoleAdmin {
		t.Errorf("role: login reconciliation must not touch it, got %s", merged.Role)
	}
}

func TestMerge_onboardingOwnedByUser(t *testing.T) {
	merged := profile.Merge(storedProfile(), freshIdentity(), now)
	if !merged.OnboardingCompleted {
		t.Error("onboardingCompleted: stored value must win unconditionally")
	}
}

func TestMerge_emailVerifiedAlwaysOverwritten(t *testing.T) {
	// Stored says unverified, the fresh assertion says verified: claims win.
	merged := profile.Merge(storedProfile(), freshIdentity(), now)
	if !merged.EmailVerified {
		t.Error("emailVerified must always come from the fresh assertion")
	}

	// And the other direction: never trusted from stored state.
	id := freshIdentity()
	id.EmailVerified = false
	stored := storedProfile()
	stored.EmailVerified = true
	merged = profile.Merge(stored, id, now)
	if merged.EmailVerified {
		t.Error("emailVerified must be overwritten even when stored says verified")
	}
}

func TestMerge_lastLoginAlwaysOverwritten(t *testing.T) {
	merged := profile.Merge(storedProfile(), freshIdentity(), now)
	if !merged.LastLoginAt.Time().Equal(lastLogin) {
		t.Errorf("lastLoginAt: got %v, want fresh %v", merged.LastLoginAt.Time(), lastLogin)
	}
}

func TestMerge_authProviderSetOnce(t *testing.T) {
	merged := profile.Merge(storedProfile(), freshIdentity(), now)
	if merged.AuthProvider != profile.ProviderGoogle {
		t.Errorf("authProvider: stored value must win, got %s", merged.AuthProvider)
	}

	stored := storedProfile()
	stored.AuthProvider = ""
	merged = profile.Merge(stored, freshIdentity(), now)
	if merged.AuthProvider != profile.ProviderPassword {
		t.Errorf("authProvider: expected derived fallback, got %s", merged.AuthProvider)
	}
}

func TestMerge_createdAtImmutable(t *testing.T) {
	id := freshIdentity()
	id.CreatedAt = now // provider reports something else entirely
	merged := profile.Merge(storedProfile(), id, now)
	if !merged.CreatedAt.Time().Equal(created) {
		t.Errorf("createdAt: got %v, want stored %v", merged.CreatedAt.Time(), created)
	}
}

func TestMerge_createdAtFallsBackWhenUnparseable(t *testing.T) {
	stored := storedProfile()
	stored.CreatedAt = profile.Timestamp{} // unparseable stored value
	merged := profile.Merge(stored, freshIdentity(), now)
	if !merged.CreatedAt.Time().Equal(created) {
		t.Errorf("createdAt: got %v, want freshly derived %v", merged.CreatedAt.Time(), created)
	}
}

func TestMerge_doesNotMutateStored(t *testing.T) {
	stored := storedProfile()
	_ = profile.Merge(stored, freshIdentity(), now)
	if stored.EmailVerified {
		t.Error("Merge must not mutate the stored profile")
	}
}

func TestPolicyFor_coversEveryField(t *testing.T) {
	want := map[string]profile.FieldPolicy{
		"email":               profile.PreferStored,
		"displayName":         profile.PreferStored,
		"photoURL":            profile.PreferStored,
		"role":                profile.Immutable,
		"onboardingCompleted": profile.Immutable,
		"emailVerified":       profile.AlwaysOverwrite,
		"lastLoginAt":         profile.AlwaysOverwrite,
		"authProvider":        profile.PreferStored,
		"createdAt":           profile.Immutable,
	}
	for field, policy := range want {
		got, ok := profile.PolicyFor(field)
		if !ok {
			t.Errorf("no policy registered for %s", field)
			continue
		}
		if got != policy {
			t.Errorf("%s: got policy %d, want %d", field, got, policy)
		}
	}
}
