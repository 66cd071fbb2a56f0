package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store is the persistence interface consumed by Service.
type Store interface {
	Get(ctx context.Context, uid string) (*Profile, error)
	Create(ctx context.Context, p *Profile) error
	Put(ctx context.Context, p *Profile) error
}

// Service implements profile reconciliation and settings updates.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a profile Service.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// SetClock overrides the wall clock. Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Ensure guarantees a profile document exists for the authenticated identity
// and reflects its current claims, without clobbering user- or server-owned
// fields. Returns the written profile and whether it was newly created.
//
// A store failure propagates to the caller: the login flow must abort and no
// session may be issued for a user with no profile.
func (s *Service) Ensure(ctx context.Context, id Identity) (*Profile, bool, error) {
	if id.UID == "" {
		return nil, false, fmt.Errorf("identity has no uid")
	}
	now := s.now().UTC()

	stored, err := s.store.Get(ctx, id.UID)
	switch {
	case errors.Is(err, ErrNotFound):
		p := NewFromIdentity(id, now)
		if err := s.store.Create(ctx, p); err != nil {
			return nil, false, fmt.Errorf("create profile for %s: %w", id.UID, err)
		}
		s.logger.Info("profile created",
			zap.String("uid", id.UID),
			zap.String("auth_provider", string(p.AuthProvider)),
		)
		return p, true, nil

	case err != nil:
		return nil, false, fmt.Errorf("fetch profile for %s: %w", id.UID, err)
	}

	merged := Merge(stored, id, now)
	if err := s.store.Put(ctx, merged); err != nil {
		return nil, false, fmt.Errorf("merge profile for %s: %w", id.UID, err)
	}
	return merged, false, nil
}

// Get retrieves the profile document for a uid.
func (s *Service) Get(ctx context.Context, uid string) (*Profile, error) {
	return s.store.Get(ctx, uid)
}

// UpdateSettings applies a user-initiated settings change to the user-owned
// fields only.
func (s *Service) UpdateSettings(ctx context.Context, uid string, upd SettingsUpdate) (*Profile, error) {
	p, err := s.store.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if upd.DisplayName != nil {
		p.DisplayName = *upd.DisplayName
	}
	if upd.PhotoURL != nil {
		p.PhotoURL = *upd.PhotoURL
	}
	if upd.OnboardingCompleted != nil {
		p.OnboardingCompleted = *upd.OnboardingCompleted
	}
	if err := s.store.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("save settings for %s: %w", uid, err)
	}
	return p, nil
}
