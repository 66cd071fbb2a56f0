package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scaffoldhq/scaffold/internal/activity"
	"github.com/scaffoldhq/scaffold/internal/identity"
	"github.com/scaffoldhq/scaffold/internal/profile"
	"go.uber.org/zap"
)

// tokenVerifier verifies bearer ID tokens, satisfied by *identity.TokenVerifier.
type tokenVerifier interface {
	Verify(ctx context.Context, tokenStr string, checkRevoked bool) (*identity.IDTokenClaims, error)
}

// profileSvc is the reconciliation surface, satisfied by *profile.Service.
type profileSvc interface {
	Ensure(ctx context.Context, id profile.Identity) (*profile.Profile, bool, error)
}

// recorder appends best-effort activity and audit records, satisfied by *activity.Logger.
type recorder interface {
	Activity(userID string, t activity.Type, message string, metadata map[string]string)
	Audit(actorUserID, action, targetUserID string, severity activity.Severity, ip, userAgent string)
}

// SessionHandler exchanges verified ID tokens for session cookies and back.
type SessionHandler struct {
	verifier tokenVerifier
	profiles profileSvc
	sessions *identity.SessionIssuer
	activity recorder
	logger   *zap.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(
	verifier tokenVerifier,
	profiles profileSvc,
	sessions *identity.SessionIssuer,
	rec recorder,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		verifier: verifier,
		profiles: profiles,
		sessions: sessions,
		activity: rec,
		logger:   logger,
	}
}

// Register mounts the session routes on the provided router group.
func (h *SessionHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/session", h.Create)
	rg.DELETE("/session", h.Delete)
	rg.GET("/session", h.Get)
}

type createSessionRequest struct {
	IDToken string `json:"idToken"`
}

// Create handles POST /api/session — exchanges a verified ID token for a
// session cookie. The cookie is set only after verification and profile
// reconciliation both succeed; any earlier failure leaves the client
// signed out.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IDToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing ID token"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), req.IDToken, true)
	if err != nil {
		h.logger.Info("session creation rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid ID token"})
		return
	}

	p, created, err := h.profiles.Ensure(c.Request.Context(), identityFromClaims(claims))
	if err != nil {
		RecordReconciliation("failed")
		h.logger.Error("profile reconciliation", zap.String("uid", claims.UID()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to establish session"})
		return
	}
	if created {
		RecordReconciliation("created")
	} else {
		RecordReconciliation("merged")
	}

	token, err := h.sessions.Issue(p.UID, p.Email, string(p.Role), p.EmailVerified)
	if err != nil {
		h.logger.Error("issue session", zap.String("uid", p.UID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to establish session"})
		return
	}
	h.sessions.SetCookie(c, token)
	RecordSessionIssued()
	RecordLogin(string(p.AuthProvider))

	h.activity.Activity(p.UID, activity.TypeLogin, "Signed in", map[string]string{
		"provider": string(p.AuthProvider),
	})
	h.activity.Audit(p.UID, "session.create", p.UID, activity.SeverityInfo,
		c.ClientIP(), c.Request.UserAgent())
	RecordActivityEvent(string(activity.TypeLogin))

	c.JSON(http.StatusOK, gin.H{"success": true, "uid": p.UID})
}

// Delete handles DELETE /api/session — always succeeds and clears the
// cookie. Logout must never fail from the client's perspective.
func (h *SessionHandler) Delete(c *gin.Context) {
	if cookie, err := c.Cookie(identity.SessionCookieName); err == nil && cookie != "" {
		if claims, err := h.sessions.Verify(cookie); err == nil {
			h.activity.Activity(claims.UID(), activity.TypeLogout, "Signed out", nil)
			h.activity.Audit(claims.UID(), "session.delete", claims.UID(), activity.SeverityInfo,
				c.ClientIP(), c.Request.UserAgent())
			RecordActivityEvent(string(activity.TypeLogout))
		}
	}

	h.sessions.ClearCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Get handles GET /api/session — returns the verified claims for the
// presented cookie, 401 when absent or invalid.
func (h *SessionHandler) Get(c *gin.Context) {
	cookie, err := c.Cookie(identity.SessionCookieName)
	if err != nil || cookie == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No session"})
		return
	}
	claims, err := h.sessions.Verify(cookie)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uid":            claims.UID(),
		"email":          claims.Email,
		"role":           claims.Role,
		"email_verified": claims.EmailVerified,
		"expires_at":     claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	})
}

// identityFromClaims maps ID-token claims onto a credential snapshot for
// reconciliation. The token carries no account creation time; the profile
// layer falls back to now for new documents.
func identityFromClaims(claims *identity.IDTokenClaims) profile.Identity {
	id := profile.Identity{
		UID:           claims.UID(),
		Email:         claims.Email,
		DisplayName:   claims.Name,
		PhotoURL:      claims.Picture,
		EmailVerified: claims.EmailVerified,
		Providers:     claims.Providers,
	}
	if claims.AuthTime > 0 {
		id.LastSignInAt = time.Unix(claims.AuthTime, 0).UTC()
	} else if claims.IssuedAt != nil {
		id.LastSignInAt = claims.IssuedAt.Time.UTC()
	}
	return id
}
