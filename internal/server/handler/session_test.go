package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/scaffoldhq/scaffold/internal/activity"
	"github.com/scaffoldhq/scaffold/internal/identity"
	"github.com/scaffoldhq/scaffold/internal/profile"
	"github.com/scaffoldhq/scaffold/internal/server/handler"
	"go.uber.org/zap"
)

// ── Stubs ─────────────────────────────────────────────────────────────────

type stubVerifier struct {
	claims *identity.IDTokenClaims
	err    error
}

func (s *stubVerifier) Verify(_ context.Context, _ string, _ bool) (*identity.IDTokenClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.claims, nil
}

type stubProfiles struct {
	profile *profile.Profile
	created bool
	err     error
	calls   int
}

func (s *stubProfiles) Ensure(_ context.Context, _ profile.Identity) (*profile.Profile, bool, error) {
	s.calls++
	if s.err != nil {
		return nil, false, s.err
	}
	return s.profile, s.created, nil
}

type stubRecorder struct {
	mu         sync.Mutex
	activities []activity.Type
	audits     []string
}

func (s *stubRecorder) Activity(_ string, t activity.Type, _ string, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, t)
}

func (s *stubRecorder) Audit(_, action, _ string, _ activity.Severity, _, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, action)
}

// ── Test setup ────────────────────────────────────────────────────────────

func validClaims(uid string) *identity.IDTokenClaims {
	return &identity.IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  uid,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
		Email:         "alice@example.com",
		EmailVerified: true,
		Name:          "Alice",
		Providers:     []string{"password"},
	}
}

func testProfile(uid string) *profile.Profile {
	return &profile.Profile{
		UID:           uid,
		Email:         "alice@example.com",
		Role:          profile.RoleUser,
		EmailVerified: true,
		AuthProvider:  profile.ProviderPassword,
	}
}

func setupSessionRouter(t *testing.T, verifier *stubVerifier, profiles *stubProfiles, rec *stubRecorder) (*gin.Engine, *identity.SessionIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := identity.NewEphemeralSigningKey()
	if err != nil {
		t.Fatalf("signing key: %v", err)
	}
	sessions := identity.NewSessionIssuer(key, "http://test", time.Hour)

	h := handler.NewSessionHandler(verifier, profiles, sessions, rec, zap.NewNop())

	r := gin.New()
	api := r.Group("/api")
	h.Register(api)
	return r, sessions
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == identity.SessionCookieName {
			return c
		}
	}
	return nil
}

// ── POST /api/session ─────────────────────────────────────────────────────

func TestCreateSession_success(t *testing.T) {
	rec := &stubRecorder{}
	router, sessions := setupSessionRouter(t,
		&stubVerifier{claims: validClaims("uid-1")},
		&stubProfiles{profile: testProfile("uid-1")},
		rec,
	)

	req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{"idToken":"tok"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	cookie := sessionCookie(w)
	if cookie == nil {
		t.Fatal("expected a session cookie")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if claims, err := sessions.Verify(cookie.Value); err != nil {
		t.Errorf("cookie should hold a valid session: %v", err)
	} else if claims.UID() != "uid-1" {
		t.Errorf("uid mismatch: %s", claims.UID())
	}
	if len(rec.activities) != 1 || rec.activities[0] != activity.TypeLogin {
		t.Errorf("expected one login activity, got %v", rec.activities)
	}
}

func TestCreateSession_missingToken(t *testing.T) {
	router, _ := setupSessionRouter(t, &stubVerifier{}, &stubProfiles{}, &stubRecorder{})

	req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if sessionCookie(w) != nil {
		t.Error("no cookie may be set for a missing token")
	}
}

func TestCreateSession_invalidToken(t *testing.T) {
	profiles := &stubProfiles{profile: testProfile("uid-1")}
	router, _ := setupSessionRouter(t,
		&stubVerifier{err: errors.New("token is expired")},
		profiles,
		&stubRecorder{},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{"idToken":"expired"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if sessionCookie(w) != nil {
		t.Error("no cookie may be set for an invalid token")
	}
	if profiles.calls != 0 {
		t.Error("reconciliation must not run for an invalid token")
	}
}

func TestCreateSession_revokedToken(t *testing.T) {
	router, _ := setupSessionRouter(t,
		&stubVerifier{err: identity.ErrTokenRevoked},
		&stubProfiles{},
		&stubRecorder{},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{"idToken":"revoked"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a revoked token, got %d", w.Code)
	}
	if sessionCookie(w) != nil {
		t.Error("no cookie may be set for a revoked token")
	}
}

func TestCreateSession_reconcileFailureSetsNoCookie(t *testing.T) {
	router, _ := setupSessionRouter(t,
		&stubVerifier{claims: validClaims("uid-1")},
		&stubProfiles{err: errors.New("db down")},
		&stubRecorder{},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{"idToken":"tok"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if sessionCookie(w) != nil {
		t.Error("no cookie may be set when reconciliation fails")
	}
}

// ── DELETE /api/session ───────────────────────────────────────────────────

func TestDeleteSession_alwaysSucceedsAndClears(t *testing.T) {
	router, _ := setupSessionRouter(t, &stubVerifier{}, &stubProfiles{}, &stubRecorder{})

	// No cookie at all.
	req := httptest.NewRequest(http.MethodDelete, "/api/session", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	cookie := sessionCookie(w)
	if cookie == nil {
		t.Fatal("expected a clearing cookie")
	}
	// Go parses a Max-Age=0 header as MaxAge=-1 (delete immediately).
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Errorf("expected an expired empty cookie, got value=%q maxAge=%d", cookie.Value, cookie.MaxAge)
	}
}

func TestDeleteSession_recordsLogoutForValidCookie(t *testing.T) {
	rec := &stubRecorder{}
	router, sessions := setupSessionRouter(t, &stubVerifier{}, &stubProfiles{}, rec)

	token, err := sessions.Issue("uid-1", "alice@example.com", "user", true)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(rec.activities) != 1 || rec.activities[0] != activity.TypeLogout {
		t.Errorf("expected one logout activity, got %v", rec.activities)
	}
}

// ── GET /api/session ──────────────────────────────────────────────────────

func TestGetSession_returnsClaims(t *testing.T) {
	router, sessions := setupSessionRouter(t, &stubVerifier{}, &stubProfiles{}, &stubRecorder{})

	token, _ := sessions.Issue("uid-1", "alice@example.com", "admin", true)
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"uid":"uid-1"`) || !strings.Contains(body, `"role":"admin"`) {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestGetSession_missingCookie(t *testing.T) {
	router, _ := setupSessionRouter(t, &stubVerifier{}, &stubProfiles{}, &stubRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestGetSession_garbageCookie(t *testing.T) {
	router, _ := setupSessionRouter(t, &stubVerifier{}, &stubProfiles{}, &stubRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: "not-a-jwt"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
