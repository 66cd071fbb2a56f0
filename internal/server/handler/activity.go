package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scaffoldhq/scaffold/internal/activity"
	"github.com/scaffoldhq/scaffold/internal/identity"
	"go.uber.org/zap"
)

// activityReader lists a user's activity feed, satisfied by *activity.Repository.
type activityReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*activity.Event, error)
}

// ActivityHandler serves the session-protected activity feed.
type ActivityHandler struct {
	events   activityReader
	sessions *identity.SessionIssuer
	logger   *zap.Logger
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(events activityReader, sessions *identity.SessionIssuer, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{events: events, sessions: sessions, logger: logger}
}

// Register mounts the activity routes on the provided router group.
func (h *ActivityHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/activity", identity.RequireSession(h.sessions), h.List)
}

// List handles GET /api/activity — the caller's feed, newest first.
func (h *ActivityHandler) List(c *gin.Context) {
	claims := identity.SessionFromCtx(c)
	limit, offset := pagination(c, 20, 100)

	events, err := h.events.ListByUser(c.Request.Context(), claims.UID(), limit, offset)
	if err != nil {
		h.logger.Error("list activity", zap.String("uid", claims.UID()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
