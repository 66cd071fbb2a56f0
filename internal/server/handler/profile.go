package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/scaffoldhq/scaffold/internal/activity"
	"github.com/scaffoldhq/scaffold/internal/identity"
	"github.com/scaffoldhq/scaffold/internal/profile"
	"go.uber.org/zap"
)

// profileReader serves profile lookups and settings updates, satisfied by
// *profile.Service.
type profileReader interface {
	Get(ctx context.Context, uid string) (*profile.Profile, error)
	UpdateSettings(ctx context.Context, uid string, upd profile.SettingsUpdate) (*profile.Profile, error)
}

// profileLister lists profiles for the admin surface, satisfied by
// *profile.Repository.
type profileLister interface {
	List(ctx context.Context, limit, offset int) ([]*profile.Profile, error)
}

// ProfileHandler serves the session-protected profile and settings API.
type ProfileHandler struct {
	profiles profileReader
	lister   profileLister
	sessions *identity.SessionIssuer
	activity recorder
	logger   *zap.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(
	profiles profileReader,
	lister profileLister,
	sessions *identity.SessionIssuer,
	rec recorder,
	logger *zap.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		lister:   lister,
		sessions: sessions,
		activity: rec,
		logger:   logger,
	}
}

// Register mounts the profile routes on the provided router group.
func (h *ProfileHandler) Register(rg *gin.RouterGroup) {
	me := rg.Group("/profile", identity.RequireSession(h.sessions))
	{
		me.GET("/me", h.Me)
		me.PATCH("/me", h.UpdateMe)
	}
	admin := rg.Group("/admin", identity.RequireAdmin(h.sessions))
	{
		admin.GET("/users", h.ListUsers)
	}
}

// Me handles GET /api/profile/me — returns the caller's profile document.
func (h *ProfileHandler) Me(c *gin.Context) {
	claims := identity.SessionFromCtx(c)
	p, err := h.profiles.Get(c.Request.Context(), claims.UID())
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		h.logger.Error("get profile", zap.String("uid", claims.UID()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uid": p.UID, "profile": p})
}

type updateProfileRequest struct {
	DisplayName         *string `json:"displayName"`
	PhotoURL            *string `json:"photoURL"`
	OnboardingCompleted *bool   `json:"onboardingCompleted"`
}

// UpdateMe handles PATCH /api/profile/me — updates the user-owned fields only.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	claims := identity.SessionFromCtx(c)

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DisplayName == nil && req.PhotoURL == nil && req.OnboardingCompleted == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields in request"})
		return
	}

	p, err := h.profiles.UpdateSettings(c.Request.Context(), claims.UID(), profile.SettingsUpdate{
		DisplayName:         req.DisplayName,
		PhotoURL:            req.PhotoURL,
		OnboardingCompleted: req.OnboardingCompleted,
	})
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
			return
		}
		h.logger.Error("update settings", zap.String("uid", claims.UID()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}

	h.activity.Activity(p.UID, activity.TypeSettingsUpdate, "Updated settings", nil)
	RecordActivityEvent(string(activity.TypeSettingsUpdate))

	c.JSON(http.StatusOK, gin.H{"uid": p.UID, "profile": p})
}

// ListUsers handles GET /api/admin/users — admin-only profile listing.
func (h *ProfileHandler) ListUsers(c *gin.Context) {
	limit, offset := pagination(c, 50, 200)
	profiles, err := h.lister.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list profiles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}

	out := make([]gin.H, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, gin.H{"uid": p.UID, "profile": p})
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "count": len(out)})
}

// pagination reads limit/offset query params with a default and a cap.
func pagination(c *gin.Context, def, max int) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
