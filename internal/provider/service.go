package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/scaffoldhq/scaffold/internal/email"
	"github.com/scaffoldhq/scaffold/internal/profile"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// accountRepo is the storage interface consumed by Service.
type accountRepo interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByOAuth(ctx context.Context, provider, providerID string) (*Account, error)
	LinkOAuth(ctx context.Context, accountID uuid.UUID, provider, providerID string) error
	Providers(ctx context.Context, accountID uuid.UUID) ([]string, error)
	SetEmailVerified(ctx context.Context, accountID uuid.UUID) error
	SetPasswordHash(ctx context.Context, accountID uuid.UUID, hash string) error
	TouchLogin(ctx context.Context, accountID uuid.UUID, at time.Time) error
	RevokeTokens(ctx context.Context, accountID uuid.UUID, at time.Time) error
	CreateVerificationToken(ctx context.Context, accountID uuid.UUID, token string, expires time.Time) error
	UseVerificationToken(ctx context.Context, token string) (*Account, error)
	CreatePasswordResetToken(ctx context.Context, accountID uuid.UUID, token string, expires time.Time) error
	UsePasswordResetToken(ctx context.Context, token string) (*Account, error)
}

// Service implements business logic for the built-in identity provider.
type Service struct {
	repo        accountRepo
	mailer      email.Sender
	frontendURL string // base URL used to build verification and reset links
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new Service.
func NewService(repo accountRepo, mailer email.Sender, frontendURL string, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		mailer:      mailer,
		frontendURL: frontendURL,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service clock. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SignUp creates a new password account and sends the verification email.
// Returns the created account and the raw verification token.
func (s *Service) SignUp(ctx context.Context, emailAddr, password, displayName string) (*Account, string, error) {
	if emailAddr == "" || password == "" {
		return nil, "", fmt.Errorf("email and password are required")
	}
	if len(password) < 8 {
		return nil, "", fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	a := &Account{
		Email:        emailAddr,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		LastLoginAt:  s.now(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, "", ErrDuplicateEmail
		}
		return nil, "", fmt.Errorf("create account: %w", err)
	}

	verifyToken, err := s.createAndSendVerification(ctx, a)
	if err != nil {
		// Non-fatal: the account exists; the user can request a resend.
		s.logger.Warn("failed to send verification email",
			zap.String("account_id", a.ID.String()),
			zap.Error(err),
		)
	}

	return a, verifyToken, nil
}

// SignIn verifies email/password credentials and returns the account on
// success, recording the login time.
func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (*Account, error) {
	a, err := s.repo.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials")
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if a.PasswordHash == "" {
		return nil, fmt.Errorf("account uses OAuth login; password not set")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	now := s.now()
	if err := s.repo.TouchLogin(ctx, a.ID, now); err != nil {
		s.logger.Warn("record login time", zap.String("account_id", a.ID.String()), zap.Error(err))
	}
	a.LastLoginAt = now
	return a, nil
}

// VerifyEmail consumes a verification token and marks the account's email as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*Account, error) {
	a, err := s.repo.UseVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("verification token not found")
		}
		return nil, fmt.Errorf("verify email: %w", err)
	}

	s.logger.Info("email verified", zap.String("account_id", a.ID.String()))
	return a, nil
}

// ResendVerificationByEmail looks up an account by email and resends the
// verification email if it exists and is not yet verified.
// Always returns nil so callers cannot reveal whether the email is registered.
func (s *Service) ResendVerificationByEmail(ctx context.Context, emailAddr string) error {
	a, err := s.repo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil
	}
	if a.EmailVerified {
		return nil
	}
	if _, err := s.createAndSendVerification(ctx, a); err != nil {
		s.logger.Warn("resend verification failed",
			zap.String("account_id", a.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// ForgotPassword generates a password-reset token and emails it to the account.
// Always returns nil so callers cannot reveal whether the email is registered.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	a, err := s.repo.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil
	}

	if a.PasswordHash == "" {
		// OAuth-only account. Explain instead of sending a dead reset link.
		body := fmt.Sprintf(
			"Hello %s,\n\nYour Scaffold account signs in with Google and has no password to reset.\n\nUse the Google button on the login page.\n",
			a.DisplayName,
		)
		_ = s.mailer.Send(ctx, a.Email, "Scaffold account has no password", body)
		return nil
	}

	token, err := generateSecureToken(32)
	if err != nil {
		s.logger.Error("generate password reset token", zap.Error(err))
		return nil
	}

	expires := s.now().Add(1 * time.Hour)
	if err := s.repo.CreatePasswordResetToken(ctx, a.ID, token, expires); err != nil {
		s.logger.Error("persist password reset token", zap.Error(err))
		return nil
	}

	link := s.frontendURL + "/reset-password?token=" + token
	body := fmt.Sprintf(
		"Hello %s,\n\nReset your Scaffold password:\n\n  %s\n\nThis link expires in 1 hour.\n\nIf you did not request a reset, ignore this email.\n",
		a.DisplayName, link,
	)
	if err := s.mailer.Send(ctx, a.Email, "Reset your Scaffold password", body); err != nil {
		s.logger.Warn("send password reset email",
			zap.String("account_id", a.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

// ResetPassword validates a password-reset token, sets the new password, and
// revokes all outstanding tokens for the account.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	a, err := s.repo.UsePasswordResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("reset token not found or expired")
		}
		return fmt.Errorf("reset password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPasswordHash(ctx, a.ID, string(hash)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}

	// A password change invalidates sessions and ID tokens issued before it.
	if err := s.repo.RevokeTokens(ctx, a.ID, s.now()); err != nil {
		s.logger.Warn("revoke tokens after reset", zap.String("account_id", a.ID.String()), zap.Error(err))
	}

	s.logger.Info("password reset", zap.String("account_id", a.ID.String()))
	return nil
}

// GetOrCreateFromGoogle retrieves the account linked to the Google identity,
// links it to an existing account with the same email, or creates a new one.
// Returns the account and true if newly created.
func (s *Service) GetOrCreateFromGoogle(ctx context.Context, googleID, emailAddr, displayName, photoURL string) (*Account, bool, error) {
	a, err := s.repo.GetByOAuth(ctx, "google", googleID)
	if err == nil {
		now := s.now()
		if err := s.repo.TouchLogin(ctx, a.ID, now); err != nil {
			s.logger.Warn("record login time", zap.String("account_id", a.ID.String()), zap.Error(err))
		}
		a.LastLoginAt = now
		return a, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup oauth account: %w", err)
	}

	// Link to an existing password account with the same email.
	existing, err := s.repo.GetByEmail(ctx, emailAddr)
	if err == nil {
		if linkErr := s.repo.LinkOAuth(ctx, existing.ID, "google", googleID); linkErr != nil {
			s.logger.Warn("link google to existing account",
				zap.String("account_id", existing.ID.String()),
				zap.Error(linkErr),
			)
		}
		// Google sign-in implies a verified email.
		if !existing.EmailVerified {
			_ = s.repo.SetEmailVerified(ctx, existing.ID)
			existing.EmailVerified = true
		}
		now := s.now()
		_ = s.repo.TouchLogin(ctx, existing.ID, now)
		existing.LastLoginAt = now
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("lookup by email: %w", err)
	}

	a = &Account{
		Email:         emailAddr,
		DisplayName:   displayName,
		PhotoURL:      photoURL,
		EmailVerified: true,
		LastLoginAt:   s.now(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, false, fmt.Errorf("create google account: %w", err)
	}
	if err := s.repo.LinkOAuth(ctx, a.ID, "google", googleID); err != nil {
		s.logger.Warn("link google after create", zap.Error(err))
	}
	return a, true, nil
}

// RevokeTokens moves the revocation stamp forward for the given account.
func (s *Service) RevokeTokens(ctx context.Context, accountID uuid.UUID) error {
	return s.repo.RevokeTokens(ctx, accountID, s.now())
}

// ResolveIdentity builds the credential snapshot for an account, as carried
// in the ID tokens this provider mints.
func (s *Service) ResolveIdentity(ctx context.Context, a *Account) (profile.Identity, error) {
	providers, err := s.repo.Providers(ctx, a.ID)
	if err != nil {
		return profile.Identity{}, fmt.Errorf("list providers: %w", err)
	}
	return profile.Identity{
		UID:           a.UID(),
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		PhotoURL:      a.PhotoURL,
		EmailVerified: a.EmailVerified,
		Providers:     providers,
		CreatedAt:     a.CreatedAt,
		LastSignInAt:  a.LastLoginAt,
	}, nil
}

// createAndSendVerification generates a token, persists it, and emails the account.
func (s *Service) createAndSendVerification(ctx context.Context, a *Account) (string, error) {
	token, err := generateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	expires := s.now().Add(24 * time.Hour)
	if err := s.repo.CreateVerificationToken(ctx, a.ID, token, expires); err != nil {
		return "", fmt.Errorf("persist verification token: %w", err)
	}

	link := s.frontendURL + "/verify-email?token=" + token
	body := fmt.Sprintf(
		"Hello %s,\n\nVerify your Scaffold email:\n\n  %s\n\nThis link expires in 24 hours.\n\nIf you did not sign up, ignore this email.\n",
		a.DisplayName, link,
	)
	if err := s.mailer.Send(ctx, a.Email, "Verify your Scaffold email", body); err != nil {
		return token, fmt.Errorf("send verification email: %w", err)
	}
	return token, nil
}

// generateSecureToken returns a hex-encoded random token of the given byte length.
func generateSecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
