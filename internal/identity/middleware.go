package identity

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

const ctxSessionClaims = "scaffold_session_claims"

// RequireSession returns a Gin middleware that enforces a valid session
// cookie on API routes.
//
// On success it injects the *SessionClaims into the context.
func RequireSession(sessions *SessionIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(SessionCookieName)
		if err != nil || cookie == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "session cookie required",
			})
			return
		}

		claims, err := sessions.Verify(cookie)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid session",
			})
			return
		}

		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

// RequireAdmin returns a Gin middleware that additionally enforces the admin
// role on top of a valid session.
func RequireAdmin(sessions *SessionIssuer) gin.HandlerFunc {
	requireSession := RequireSession(sessions)
	return func(c *gin.Context) {
		requireSession(c)
		if c.IsAborted() {
			return
		}
		claims := SessionFromCtx(c)
		if claims == nil || claims.Role != "admin" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "admin role required",
			})
			return
		}
		c.Next()
	}
}

// SessionFromCtx retrieves the session claims injected by RequireSession.
// Returns nil if no verified session is present in the context.
func SessionFromCtx(c *gin.Context) *SessionClaims {
	v, _ := c.Get(ctxSessionClaims)
	claims, _ := v.(*SessionClaims)
	return claims
}

// PageGuard returns a Gin middleware guarding protected page routes.
//
// Requests without a verifiable session cookie are redirected to the login
// page with the original path in the "from" query parameter. Sessions whose
// email is not yet verified are redirected to the verification page instead
// of the protected content.
func PageGuard(sessions *SessionIssuer, loginPath, verifyPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(SessionCookieName)
		if err != nil || cookie == "" {
			redirectToLogin(c, loginPath)
			return
		}

		claims, err := sessions.Verify(cookie)
		if err != nil {
			redirectToLogin(c, loginPath)
			return
		}

		if !claims.EmailVerified && c.Request.URL.Path != verifyPath {
			c.Redirect(http.StatusFound, verifyPath)
			c.Abort()
			return
		}

		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

func redirectToLogin(c *gin.Context, loginPath string) {
	target := loginPath + "?from=" + url.QueryEscape(c.Request.URL.Path)
	c.Redirect(http.StatusFound, target)
	c.Abort()
}
