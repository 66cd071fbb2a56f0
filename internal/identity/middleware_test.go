package identity_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scaffoldhq/scaffold/internal/identity"
)

func guardedRouter(t *testing.T) (*gin.Engine, *identity.SessionIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := identity.NewSessionIssuer(testKey(t), "http://test", time.Hour)

	r := gin.New()
	guard := identity.PageGuard(sessions, "/login", "/verify-email")
	pages := r.Group("", guard)
	{
		pages.GET("/dashboard", func(c *gin.Context) { c.String(http.StatusOK, "dashboard") })
		pages.GET("/settings/profile", func(c *gin.Context) { c.String(http.StatusOK, "settings") })
	}
	return r, sessions
}

func TestPageGuard_redirectsAnonymousToLogin(t *testing.T) {
	router, _ := guardedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?from=%2Fdashboard" {
		t.Errorf("unexpected redirect target: %s", loc)
	}
}

func TestPageGuard_preservesSubpathInFrom(t *testing.T) {
	router, _ := guardedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/settings/profile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?from=%2Fsettings%2Fprofile" {
		t.Errorf("unexpected redirect target: %s", loc)
	}
}

func TestPageGuard_redirectsInvalidCookieToLogin(t *testing.T) {
	router, _ := guardedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: "garbage"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?from=%2Fdashboard" {
		t.Errorf("unexpected redirect target: %s", loc)
	}
}

func TestPageGuard_allowsVerifiedSession(t *testing.T) {
	router, sessions := guardedRouter(t)

	token, err := sessions.Issue("uid-1", "alice@example.com", "user", true)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "dashboard" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestPageGuard_unverifiedEmailRedirectsToVerify(t *testing.T) {
	router, sessions := guardedRouter(t)

	token, err := sessions.Issue("uid-1", "alice@example.com", "user", false)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/verify-email" {
		t.Errorf("unexpected redirect target: %s", loc)
	}
}

func TestRequireSession_unauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := identity.NewSessionIssuer(testKey(t), "http://test", time.Hour)

	r := gin.New()
	r.GET("/api/thing", identity.RequireSession(sessions), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAdmin_forbidsUserRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := identity.NewSessionIssuer(testKey(t), "http://test", time.Hour)

	r := gin.New()
	r.GET("/api/admin", identity.RequireAdmin(sessions), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	token, _ := sessions.Issue("uid-1", "alice@example.com", "user", true)
	req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
	req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireAdmin_allowsAdminRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := identity.NewSessionIssuer(testKey(t), "http://test", time.Hour)

	r := gin.New()
	r.GET("/api/admin", identity.RequireAdmin(sessions), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	token, _ := sessions.Issue("uid-1", "alice@example.com", "admin", true)
	req := httptest.NewRequest(http.MethodGet, "/api/admin", nil)
	req.AddCookie(&http.Cookie{Name: identity.SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
