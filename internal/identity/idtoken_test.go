package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scaffoldhq/scaffold/internal/identity"
)

type stubRevocations struct {
	validAfter map[string]time.Time
	err        error
}

func (s *stubRevocations) TokensValidAfter(_ context.Context, uid string) (time.Time, error) {
	if s.err != nil {
		return time.Time{}, s.err
	}
	return s.validAfter[uid], nil
}

func newVerifier(t *testing.T, key *identity.SigningKey) *identity.TokenVerifier {
	t.Helper()
	return identity.NewTokenVerifier("http://test", "scaffold", key, nil)
}

func TestIDTokenIssueVerify(t *testing.T) {
	key := testKey(t)
	issuer := identity.NewIDTokenIssuer(key, "http://test", "scaffold", time.Hour)
	verifier := newVerifier(t, key)

	authTime := time.Now().Add(-time.Minute)
	tok, err := issuer.Issue("uid-1", "alice@example.com", false, "Alice", "http://img/a.png", []string{"password"}, authTime)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := verifier.Verify(context.Background(), tok, true)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UID() != "uid-1" {
		t.Errorf("uid mismatch: %s", claims.UID())
	}
	if claims.EmailVerified {
		t.Error("expected email_verified = false")
	}
	if len(claims.Providers) != 1 || claims.Providers[0] != "password" {
		t.Errorf("providers mismatch: %v", claims.Providers)
	}
}

func TestIDTokenVerify_expired(t *testing.T) {
	key := testKey(t)
	issuer := identity.NewIDTokenIssuer(key, "http://test", "scaffold", -time.Minute)
	verifier := newVerifier(t, key)

	tok, _ := issuer.Issue("uid-1", "alice@example.com", true, "", "", nil, time.Now())
	if _, err := verifier.Verify(context.Background(), tok, true); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestIDTokenVerify_wrongAudience(t *testing.T) {
	key := testKey(t)
	issuer := identity.NewIDTokenIssuer(key, "http://test", "other-app", time.Hour)
	verifier := newVerifier(t, key)

	tok, _ := issuer.Issue("uid-1", "alice@example.com", true, "", "", nil, time.Now())
	if _, err := verifier.Verify(context.Background(), tok, true); err == nil {
		t.Error("expected error for audience mismatch")
	}
}

func TestIDTokenVerify_revoked(t *testing.T) {
	key := testKey(t)
	issuer := identity.NewIDTokenIssuer(key, "http://test", "scaffold", time.Hour)
	verifier := newVerifier(t, key)

	tok, _ := issuer.Issue("uid-1", "alice@example.com", true, "", "", nil, time.Now())

	// Revocation stamp in the future of the token's iat: revoked but unexpired.
	verifier.SetRevocationChecker(&stubRevocations{validAfter: map[string]time.Time{
		"uid-1": time.Now().Add(time.Minute),
	}})

	_, err := verifier.Verify(context.Background(), tok, true)
	if !errors.Is(err, identity.ErrTokenRevoked) {
		t.Errorf("expected ErrTokenRevoked, got %v", err)
	}

	// Without the revocation mode the same token passes.
	if _, err := verifier.Verify(context.Background(), tok, false); err != nil {
		t.Errorf("Verify without revocation check: %v", err)
	}
}

func TestIDTokenVerify_revocationLookupFailure(t *testing.T) {
	key := testKey(t)
	issuer := identity.NewIDTokenIssuer(key, "http://test", "scaffold", time.Hour)
	verifier := newVerifier(t, key)
	verifier.SetRevocationChecker(&stubRevocations{err: errors.New("store down")})

	tok, _ := issuer.Issue("uid-1", "alice@example.com", true, "", "", nil, time.Now())
	if _, err := verifier.Verify(context.Background(), tok, true); err == nil {
		t.Error("expected error when revocation lookup fails")
	}
}

func TestOAuthState_roundTrip(t *testing.T) {
	key := testKey(t)
	issuer := identity.NewIDTokenIssuer(key, "http://test", "scaffold", time.Hour)

	state, err := issuer.IssueOAuthState("/dashboard")
	if err != nil {
		t.Fatalf("IssueOAuthState: %v", err)
	}
	redirect, err := issuer.VerifyOAuthState(state)
	if err != nil {
		t.Fatalf("VerifyOAuthState: %v", err)
	}
	if redirect != "/dashboard" {
		t.Errorf("redirect mismatch: %s", redirect)
	}
}

func TestOAuthState_rejectsIDToken(t *testing.T) {
	key := testKey(t)
	issuer := identity.NewIDTokenIssuer(key, "http://test", "scaffold", time.Hour)

	tok, _ := issuer.Issue("uid-1", "alice@example.com", true, "", "", nil, time.Now())
	if _, err := issuer.VerifyOAuthState(tok); err == nil {
		t.Error("expected state verify to reject an id token")
	}
}
