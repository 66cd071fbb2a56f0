package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenRevoked is returned when a syntactically valid, unexpired ID token
// was issued before the account's tokens-valid-after stamp.
var ErrTokenRevoked = errors.New("token has been revoked")

// IDTokenClaims are the claims an identity provider asserts about a user.
// These are separate from SessionClaims, which belong to the server session.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	Name          string   `json:"name,omitempty"`
	Picture       string   `json:"picture,omitempty"`
	Providers     []string `json:"providers,omitempty"`
	AuthTime      int64    `json:"auth_time,omitempty"`
	Type          string   `json:"type"` // "id"
}

// UID returns the provider-assigned user id the token asserts.
func (c *IDTokenClaims) UID() string { return c.Subject }

// IDTokenIssuer issues short-lived RS256 ID tokens for the built-in dev
// provider. Hosted providers issue their own; this keeps local development
// self-contained.
type IDTokenIssuer struct {
	key      *SigningKey
	issuer   string
	audience string
	ttl      time.Duration
}

// NewIDTokenIssuer creates an IDTokenIssuer.
//
//	issuerURL — the "iss" claim value; matches the server's base URL.
//	audience  — the "aud" claim value; the application identifier.
//	ttl       — token lifetime (default: 1 hour).
func NewIDTokenIssuer(key *SigningKey, issuerURL, audience string, ttl time.Duration) *IDTokenIssuer {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &IDTokenIssuer{key: key, issuer: issuerURL, audience: audience, ttl: ttl}
}

// Issue creates a signed ID token asserting the given identity.
func (i *IDTokenIssuer) Issue(uid, email string, emailVerified bool, name, picture string, providers []string, authTime time.Time) (string, error) {
	now := time.Now().UTC()
	claims := IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   uid,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.New().String(),
		},
		Email:         email,
		EmailVerified: emailVerified,
		Name:          name,
		Picture:       picture,
		Providers:     providers,
		AuthTime:      authTime.UTC().Unix(),
		Type:          "id",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.key.KeyID()
	signed, err := token.SignedString(i.key.Key())
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}
	return signed, nil
}

// IssueOAuthState creates a short-lived JWT used as the OAuth state parameter.
// The post-login redirect target is embedded so the callback can restore it.
func (i *IDTokenIssuer) IssueOAuthState(redirect string) (string, error) {
	now := time.Now().UTC()
	claims := IDTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   redirect, // redirect target rides in the subject
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
			ID:        uuid.New().String(),
		},
		Type: "oauth-state",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.key.KeyID()
	signed, err := token.SignedString(i.key.Key())
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return signed, nil
}

// VerifyOAuthState validates an OAuth state JWT and returns the embedded
// redirect target.
func (i *IDTokenIssuer) VerifyOAuthState(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&IDTokenClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return i.key.Public(), nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid oauth state: %w", err)
	}
	claims, ok := token.Claims.(*IDTokenClaims)
	if !ok || claims.Type != "oauth-state" {
		return "", fmt.Errorf("not an oauth state token")
	}
	return claims.Subject, nil
}

// RevocationChecker reports the instant before which a user's previously
// issued tokens are considered revoked. Implemented by the account store.
// Unknown uids report a zero time with a nil error (no revocation on record);
// a non-nil error fails the verification.
type RevocationChecker interface {
	TokensValidAfter(ctx context.Context, uid string) (time.Time, error)
}

// TokenVerifier verifies identity-provider ID tokens.
//
// Keys are resolved by the "kid" header: the local signing key for tokens the
// dev provider issued, a remote JWKS for tokens from a hosted provider.
type TokenVerifier struct {
	issuer      string
	audience    string
	local       *SigningKey
	remote      *JWKSClient
	revocations RevocationChecker
}

// NewTokenVerifier creates a TokenVerifier. local and remote may each be nil;
// at least one must be set for any token to verify.
func NewTokenVerifier(issuerURL, audience string, local *SigningKey, remote *JWKSClient) *TokenVerifier {
	return &TokenVerifier{issuer: issuerURL, audience: audience, local: local, remote: remote}
}

// SetRevocationChecker wires the account store consulted by revocation checks.
func (v *TokenVerifier) SetRevocationChecker(rc RevocationChecker) {
	v.revocations = rc
}

// Verify parses and validates an ID token, returning its claims.
//
// With checkRevoked set, a token issued before the account's
// tokens-valid-after stamp is rejected with ErrTokenRevoked even when it has
// not yet expired. Session creation must always pass checkRevoked=true.
func (v *TokenVerifier) Verify(ctx context.Context, tokenStr string, checkRevoked bool) (*IDTokenClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&IDTokenClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			kid, _ := tok.Header["kid"].(string)
			if v.local != nil && kid == v.local.KeyID() {
				return v.local.Public(), nil
			}
			if v.remote != nil {
				return v.remote.Key(ctx, kid)
			}
			return nil, fmt.Errorf("no key source for kid %q", kid)
		},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	claims, ok := token.Claims.(*IDTokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid id token claims")
	}
	if claims.Type != "id" {
		return nil, fmt.Errorf("not an id token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("id token has no subject")
	}

	if checkRevoked && v.revocations != nil {
		validAfter, err := v.revocations.TokensValidAfter(ctx, claims.Subject)
		if err != nil {
			return nil, fmt.Errorf("revocation check: %w", err)
		}
		if !validAfter.IsZero() && claims.IssuedAt != nil && claims.IssuedAt.Time.Before(validAfter) {
			return nil, ErrTokenRevoked
		}
	}

	return claims, nil
}
