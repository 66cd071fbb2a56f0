// Package identity implements the Scaffold identity layer.
//
// It provides:
//   - SigningKey      — creates/loads the RSA key pair that signs local tokens
//   - IDTokenIssuer   — issues RS256 ID tokens for the built-in dev provider
//   - TokenVerifier   — verifies identity-provider ID tokens, with revocation checks
//   - SessionIssuer   — mints and verifies the session cookie JWT
//   - JWKSClient      — fetches and caches a remote provider's JSON Web Key Set
//   - RequireSession  — Gin middleware enforcing a valid session cookie
//   - PageGuard       — Gin middleware redirecting unauthenticated page requests
package identity
