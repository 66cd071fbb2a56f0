package identity

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the server session artifact.
const SessionCookieName = "session"

// DefaultSessionTTL is the fixed session window, independent of the ID
// token's own expiry.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionClaims are the JWT claims for a Scaffold server session. The cookie
// value is opaque to the client; the uid is recoverable only by verification.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Type          string `json:"type"` // "session"
}

// UID returns the user id the session is bound to.
func (c *SessionClaims) UID() string { return c.Subject }

// SessionIssuer mints and verifies session cookie JWTs using the server
// signing key. Sessions are self-expiring; logout clears the cookie
// client-side and no server-side revocation list is kept.
type SessionIssuer struct {
	key    *SigningKey
	issuer string
	ttl    time.Duration
	secure bool
}

// NewSessionIssuer creates a SessionIssuer.
//
//	issuerURL — the "iss" claim value; matches the server's base URL.
//	ttl       — session lifetime (default: 7 days).
func NewSessionIssuer(key *SigningKey, issuerURL string, ttl time.Duration) *SessionIssuer {
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{key: key, issuer: issuerURL, ttl: ttl}
}

// SetSecureCookies toggles the Secure cookie attribute. On in production,
// off for plain-HTTP local development.
func (s *SessionIssuer) SetSecureCookies(secure bool) { s.secure = secure }

// TTL returns the session window.
func (s *SessionIssuer) TTL() time.Duration { return s.ttl }

// Issue creates a signed session token bound to the verified identity.
func (s *SessionIssuer) Issue(uid, email, role string, emailVerified bool) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
		Email:         email,
		Role:          role,
		EmailVerified: emailVerified,
		Type:          "session",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.key.KeyID()
	signed, err := token.SignedString(s.key.Key())
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning its claims.
func (s *SessionIssuer) Verify(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return s.key.Public(), nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify session: %w", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session claims")
	}
	if claims.Type != "session" {
		return nil, fmt.Errorf("not a session token")
	}
	return claims, nil
}

// SetCookie binds the session token to the HTTP-only session cookie:
// SameSite=Lax, path /, Max-Age equal to the session window.
func (s *SessionIssuer) SetCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(s.ttl.Seconds()), "/", "", s.secure, true)
}

// ClearCookie invalidates the session cookie client-side (empty value,
// zero max-age).
func (s *SessionIssuer) ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", s.secure, true)
}
