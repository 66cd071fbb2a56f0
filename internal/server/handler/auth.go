package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scaffoldhq/scaffold/internal/activity"
	"github.com/scaffoldhq/scaffold/internal/identity"
	"github.com/scaffoldhq/scaffold/internal/profile"
	"github.com/scaffoldhq/scaffold/internal/provider"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// OAuthConfig holds OAuth client credentials for the Google provider.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// accountSvc is the interface expected by AuthHandler, satisfied by *provider.Service.
type accountSvc interface {
	SignUp(ctx context.Context, email, password, displayName string) (*provider.Account, string, error)
	SignIn(ctx context.Context, email, password string) (*provider.Account, error)
	VerifyEmail(ctx context.Context, token string) (*provider.Account, error)
	ResendVerificationByEmail(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	GetOrCreateFromGoogle(ctx context.Context, googleID, email, displayName, photoURL string) (*provider.Account, bool, error)
	ResolveIdentity(ctx context.Context, a *provider.Account) (profile.Identity, error)
}

// AuthHandler exposes the built-in identity provider over HTTP: password
// flows, email verification, password reset, and the Google OAuth server flow.
type AuthHandler struct {
	accounts    accountSvc
	tokens      *identity.IDTokenIssuer
	profiles    profileSvc
	sessions    *identity.SessionIssuer
	activity    recorder
	oauthCfg    *oauth2.Config
	frontendURL string
	logger      *zap.Logger
}

// NewAuthHandler creates an AuthHandler. oauthCfg may have empty credentials
// to disable the Google routes.
func NewAuthHandler(
	accounts accountSvc,
	tokens *identity.IDTokenIssuer,
	profiles profileSvc,
	sessions *identity.SessionIssuer,
	rec recorder,
	oauthCfg OAuthConfig,
	logger *zap.Logger,
) *AuthHandler {
	var cfg *oauth2.Config
	if oauthCfg.ClientID != "" && oauthCfg.ClientSecret != "" {
		cfg = &oauth2.Config{
			ClientID:     oauthCfg.ClientID,
			ClientSecret: oauthCfg.ClientSecret,
			RedirectURL:  oauthCfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		}
	}
	return &AuthHandler{
		accounts:    accounts,
		tokens:      tokens,
		profiles:    profiles,
		sessions:    sessions,
		activity:    rec,
		oauthCfg:    cfg,
		frontendURL: "http://localhost:3000",
		logger:      logger,
	}
}

// SetFrontendURL sets the base URL used for post-OAuth redirects.
func (h *AuthHandler) SetFrontendURL(url string) {
	h.frontendURL = url
}

// Register mounts all auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/login", h.Login)
		auth.POST("/verify-email", h.VerifyEmail)
		auth.POST("/resend-verification", h.ResendVerification)
		auth.POST("/forgot-password", h.ForgotPassword)
		auth.POST("/reset-password", h.ResetPassword)
		auth.GET("/oauth/google", h.OAuthRedirect)
		auth.GET("/oauth/google/callback", h.OAuthCallback)
	}
}

// ─── Request types ───────────────────────────────────────────────────────────

type signupRequest struct {
	Email       string `json:"email"        binding:"required,email"`
	Password    string `json:"password"     binding:"required"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type verifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

type resendVerificationRequest struct {
	Email string `json:"email" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// SignUp handles POST /api/auth/signup — creates a password account and
// returns a short-lived ID token for the session exchange.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, _, err := h.accounts.SignUp(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, provider.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		h.logger.Error("signup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}

	tok, err := h.issueIDToken(c.Request.Context(), a)
	if err != nil {
		h.logger.Error("issue id token after signup", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account": a,
		"idToken": tok,
		"note":    "A verification email has been sent.",
	})
}

// Login handles POST /api/auth/login — authenticates with email/password and
// returns an ID token. The client exchanges it at POST /api/session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.accounts.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tok, err := h.issueIDToken(c.Request.Context(), a)
	if err != nil {
		h.logger.Error("issue id token after login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"account": a, "idToken": tok})
}

// VerifyEmail handles POST /api/auth/verify-email — consumes a verification
// token. Accepts the token from both JSON body and query parameter.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		var req verifyEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
			return
		}
		token = req.Token
	}

	a, err := h.accounts.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "email verified", "account": a})
}

// ResendVerification handles POST /api/auth/resend-verification.
// Always returns the same response so callers cannot enumerate accounts.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req resendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	_ = h.accounts.ResendVerificationByEmail(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{"message": "if an account with that email exists and is unverified, a new link has been sent"})
}

// ForgotPassword handles POST /api/auth/forgot-password.
// Always returns 200 so callers cannot enumerate accounts.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_ = h.accounts.ForgotPassword(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{
		"message": "if an account with that email exists, a password reset link has been sent",
	})
}

// ResetPassword handles POST /api/auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password updated — please log in with your new password"})
}

// OAuthRedirect handles GET /api/auth/oauth/google — redirects to Google
// with a signed state token carrying the post-login destination.
func (h *AuthHandler) OAuthRedirect(c *gin.Context) {
	if h.oauthCfg == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Google OAuth is not configured"})
		return
	}

	redirect := c.Query("from")
	if redirect == "" || redirect[0] != '/' {
		redirect = "/dashboard"
	}

	state, err := h.tokens.IssueOAuthState(redirect)
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate OAuth state"})
		return
	}

	c.Redirect(http.StatusFound, h.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOnline))
}

// OAuthCallback handles GET /api/auth/oauth/google/callback. On success it
// runs the full reconcile-then-cookie flow and redirects the browser to the
// destination carried in the state token.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	if h.oauthCfg == nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Google OAuth is not configured"})
		return
	}

	// State check prevents CSRF and recovers the destination path.
	redirect, err := h.tokens.VerifyOAuthState(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid OAuth state"})
		return
	}

	code := c.Query("code")
	if code == "" {
		errMsg := c.Query("error_description")
		if errMsg == "" {
			errMsg = c.Query("error")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth authorization failed: " + errMsg})
		return
	}

	oauthToken, err := h.oauthCfg.Exchange(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("oauth code exchange", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth code exchange failed"})
		return
	}

	googleID, email, name, picture, err := fetchGoogleUserInfo(c.Request.Context(), oauthToken.AccessToken)
	if err != nil {
		h.logger.Error("fetch google user info", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user info from provider"})
		return
	}

	a, _, err := h.accounts.GetOrCreateFromGoogle(c.Request.Context(), googleID, email, name, picture)
	if err != nil {
		h.logger.Error("get or create google account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process OAuth login"})
		return
	}

	id, err := h.accounts.ResolveIdentity(c.Request.Context(), a)
	if err != nil {
		h.logger.Error("resolve identity after oauth", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process OAuth login"})
		return
	}

	p, created, err := h.profiles.Ensure(c.Request.Context(), id)
	if err != nil {
		RecordReconciliation("failed")
		h.logger.Error("profile reconciliation after oauth", zap.String("uid", id.UID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process OAuth login"})
		return
	}
	if created {
		RecordReconciliation("created")
	} else {
		RecordReconciliation("merged")
	}

	session, err := h.sessions.Issue(p.UID, p.Email, string(p.Role), p.EmailVerified)
	if err != nil {
		h.logger.Error("issue session after oauth", zap.String("uid", p.UID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to establish session"})
		return
	}
	h.sessions.SetCookie(c, session)
	RecordSessionIssued()
	RecordLogin("google")

	h.activity.Activity(p.UID, activity.TypeLogin, "Signed in with Google", map[string]string{
		"provider": "google",
	})
	h.activity.Audit(p.UID, "session.create", p.UID, activity.SeverityInfo,
		c.ClientIP(), c.Request.UserAgent())
	RecordActivityEvent(string(activity.TypeLogin))

	c.Redirect(http.StatusFound, h.frontendURL+redirect)
}

// issueIDToken mints an ID token carrying the account's credential snapshot.
func (h *AuthHandler) issueIDToken(ctx context.Context, a *provider.Account) (string, error) {
	id, err := h.accounts.ResolveIdentity(ctx, a)
	if err != nil {
		return "", fmt.Errorf("resolve identity: %w", err)
	}
	return h.tokens.Issue(id.UID, id.Email, id.EmailVerified, id.DisplayName, id.PhotoURL, id.Providers, id.LastSignInAt)
}

// fetchGoogleUserInfo calls Google's user-info API and returns
// (googleID, email, name, picture).
func fetchGoogleUserInfo(ctx context.Context, accessToken string) (string, string, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return "", "", "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", "", "", fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", "", "", "", fmt.Errorf("read userinfo body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", "", "", "", fmt.Errorf("google userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", "", "", "", fmt.Errorf("parse google userinfo: %w", err)
	}
	return info.ID, info.Email, info.Name, info.Picture, nil
}
