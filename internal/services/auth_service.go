package services

import (
	"context"
	"fmt"
	"strings"

	"tandem/internal/auth"
	"tandem/internal/core"
	applog "tandem/internal/log"
	"tandem/internal/store"
)

const minPasswordLength = 6

// AuthService ties the identity provider to the application's user rows.
type AuthService struct {
	store    store.Store
	provider auth.Provider
	logger   *applog.Logger
}

func NewAuthService(st store.Store, provider auth.Provider, logger *applog.Logger) *AuthService {
	return &AuthService{
		store:    st,
		provider: provider,
		logger:   logger.WithComponent(applog.ComponentAuth),
	}
}

// SignUp registers a new household member. The registration toggle is read
// fresh so flipping it off blocks the very next attempt. New users start
// with zero balance and zero stash; the first admin is whoever signs up
// into an empty household.
func (s *AuthService) SignUp(ctx context.Context, email, password, name string) (core.User, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("load settings: %w", err)
	}
	if !settings.RegistrationEnabled {
		return core.User{}, fmt.Errorf("registration is disabled: %w", core.ErrUnauthorized)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return core.User{}, fmt.Errorf("invalid email address: %w", core.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return core.User{}, fmt.Errorf("password must be at least %d characters: %w",
			minPasswordLength, core.ErrValidation)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.User{}, core.ErrEmptyName
	}

	existing, err := s.store.ListUsers(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("list users: %w", err)
	}

	authID, err := s.provider.Register(ctx, email, password)
	if err != nil {
		return core.User{}, err
	}

	user, err := s.store.CreateUser(ctx, core.User{
		AuthID:  authID,
		Email:   email,
		Name:    name,
		Avatar:  "👤",
		IsAdmin: len(existing) == 0,
	})
	if err != nil {
		return core.User{}, err
	}

	s.logger.InfoContext(ctx, "User signed up",
		applog.FieldUserID, user.ID, "email", email, "is_admin", user.IsAdmin)
	return user, nil
}

// SignIn verifies credentials and returns the user with a session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (core.User, auth.Session, error) {
	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return core.User{}, auth.Session{}, err
	}
	user, err := s.store.GetUserByAuthID(ctx, session.AuthID)
	if err != nil {
		return core.User{}, auth.Session{}, fmt.Errorf("user for session: %w", err)
	}
	return user, session, nil
}

func (s *AuthService) SignOut(ctx context.Context, token string) error {
	return s.provider.SignOut(ctx, token)
}

// Authenticate resolves a bearer token to the signed-in user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (core.User, error) {
	authID, err := s.provider.Authenticate(ctx, token)
	if err != nil {
		return core.User{}, err
	}
	return s.store.GetUserByAuthID(ctx, authID)
}

// UpdateProfile changes the signed-in user's display name and avatar.
func (s *AuthService) UpdateProfile(ctx context.Context, authID string, name, avatar *string) error {
	if name != nil && strings.TrimSpace(*name) == "" {
		return core.ErrEmptyName
	}
	return s.store.UpdateProfile(ctx, authID, name, avatar)
}

// MagicLink issues a single-use sign-in token for the given email. Delivery
// is the deployment's concern; the local provider hands the token back to
// the caller directly.
func (s *AuthService) MagicLink(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	token, err := s.provider.MagicLink(ctx, email)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "Magic link issued", "email", email)
	return token, nil
}

// RedeemMagicLink exchanges a magic-link token for a session.
func (s *AuthService) RedeemMagicLink(ctx context.Context, token string) (core.User, auth.Session, error) {
	session, err := s.provider.RedeemMagicLink(ctx, token)
	if err != nil {
		return core.User{}, auth.Session{}, err
	}
	user, err := s.store.GetUserByAuthID(ctx, session.AuthID)
	if err != nil {
		return core.User{}, auth.Session{}, fmt.Errorf("user for session: %w", err)
	}
	return user, session, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, authID, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w",
			minPasswordLength, core.ErrValidation)
	}
	return s.provider.ChangePassword(ctx, authID, newPassword)
}
