// Package auth implements the session lifecycle: registration, login, access
// token verification, refresh token rotation and logout.  It talks to its
// collaborators (user store, refresh token store, notifier) through narrow
// interfaces so the storage backends stay swappable and testable.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/apnisec/trackify/internal/model"
	"github.com/apnisec/trackify/internal/repository"
	"github.com/apnisec/trackify/internal/utils"
)

// Sentinel errors surfaced to the transport layer.  Handlers map these to
// HTTP statuses; everything else is treated as an internal fault.
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingToken       = errors.New("refresh token not provided")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrRotationFailed     = errors.New("refresh token rotation failed")
	ErrUserNotFound       = errors.New("user not found")
)

// UserStore is the slice of the user repository the auth service needs.
type UserStore interface {
	Create(ctx context.Context, email, password, name string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// TokenStore persists refresh tokens.  Implementations must make Rotate's
// revocation conditional so concurrent rotations of one token cannot both
// succeed.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
	Rotate(ctx context.Context, oldHash, newHash string, userID uint64, exp time.Time) error
	CleanupExpired(ctx context.Context) (int64, error)
}

// Notifier delivers transactional email.  Calls are made fire-and-forget:
// the service logs failures and never lets them reach the request path.
type Notifier interface {
	UserRegistered(ctx context.Context, email, name string) error
}

// TokenPair bundles the two credentials handed to a client.
type TokenPair struct {
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// Config carries the tunables of the token lifecycle.
type Config struct {
	JWTSecret      string
	AccessTTLMin   int // minutes, default 15
	RefreshTTLDays int // days, default 7
	BcryptCost     int
}

// Service issues, refreshes and revokes sessions.  Stateless; one instance
// is shared by all requests.
type Service struct {
	cfg      Config
	users    UserStore
	tokens   TokenStore
	notifier Notifier
}

func NewService(cfg Config, users UserStore, tokens TokenStore, notifier Notifier) *Service {
	return &Service{cfg: cfg, users: users, tokens: tokens, notifier: notifier}
}

// Register creates the user, issues an access+refresh pair and triggers the
// welcome notification without blocking on it.
func (s *Service) Register(ctx context.Context, email, password, name string) (model.User, TokenPair, error) {
	uid, err := s.users.Create(ctx, email, password, name, s.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.User{}, TokenPair{}, ErrEmailTaken
		}
		return model.User{}, TokenPair{}, fmt.Errorf("create user: %w", err)
	}
	user, err := s.users.GetByID(ctx, uid)
	if err != nil {
		return model.User{}, TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}

	if s.notifier != nil {
		go func(email, name string) {
			if err := s.notifier.UserRegistered(context.Background(), email, name); err != nil {
				log.Printf("auth: welcome notification failed for %s: %v", email, err)
			}
		}(user.Email, user.Name)
	}
	return user, pair, nil
}

// Login verifies credentials and issues a fresh pair.  Unknown email and
// wrong password are indistinguishable by design.  Existing sessions are
// left untouched; concurrent sessions per user are allowed.
func (s *Service) Login(ctx context.Context, email, password string) (model.User, TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, TokenPair{}, ErrInvalidCredentials
		}
		return model.User{}, TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(user.PasswordHash, password) {
		return model.User{}, TokenPair{}, ErrInvalidCredentials
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	return user, pair, nil
}

// VerifyAccess checks an access token and resolves it to its user.  All
// verification failures collapse into ErrInvalidToken.
func (s *Service) VerifyAccess(ctx context.Context, token string) (model.User, error) {
	claims, err := utils.ParseAccessToken(s.cfg.JWTSecret, token)
	if err != nil {
		return model.User{}, ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrInvalidToken
		}
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// Refresh exchanges a valid refresh token for a new access+refresh pair,
// rotating the stored token.  The old token is unusable afterwards; a
// concurrent refresh of the same token yields exactly one winner, the loser
// gets ErrRotationFailed.
func (s *Service) Refresh(ctx context.Context, raw string) (model.User, TokenPair, error) {
	if raw == "" {
		return model.User{}, TokenPair{}, ErrMissingToken
	}
	oldHash := utils.HashRefreshRaw(raw)

	userID, err := s.tokens.ValidateRefresh(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return model.User{}, TokenPair{}, ErrInvalidToken
		}
		return model.User{}, TokenPair{}, fmt.Errorf("validate refresh: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, TokenPair{}, ErrUserNotFound
		}
		return model.User{}, TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	next, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return model.User{}, TokenPair{}, fmt.Errorf("issue refresh: %w", err)
	}
	if err := s.tokens.Rotate(ctx, oldHash, utils.HashRefreshRaw(next.Raw), user.ID, next.Exp); err != nil {
		if errors.Is(err, repository.ErrRotationConflict) || errors.Is(err, repository.ErrTokenNotFound) {
			return model.User{}, TokenPair{}, ErrRotationFailed
		}
		return model.User{}, TokenPair{}, fmt.Errorf("rotate refresh: %w", err)
	}

	access, err := utils.NewAccessToken(s.cfg.JWTSecret, user.ID, user.Email, s.cfg.AccessTTLMin)
	if err != nil {
		return model.User{}, TokenPair{}, fmt.Errorf("issue access: %w", err)
	}
	return user, TokenPair{Access: access, Refresh: next}, nil
}

// Logout revokes the supplied refresh token.  The access token stays
// cryptographically valid until its natural expiry; the client is expected
// to discard it.  Revoking an already-gone token is not an error.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	err := s.tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw))
	if err != nil && !errors.Is(err, repository.ErrTokenNotFound) {
		return fmt.Errorf("revoke refresh: %w", err)
	}
	return nil
}

// LogoutAll revokes every active refresh token the user holds.
func (s *Service) LogoutAll(ctx context.Context, userID uint64) error {
	return s.tokens.RevokeAllForUser(ctx, userID)
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id uint64) (model.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// issuePair mints an access token and a stored refresh token for the user.
func (s *Service) issuePair(ctx context.Context, user model.User) (TokenPair, error) {
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, user.ID, user.Email, s.cfg.AccessTTLMin)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, user.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return TokenPair{}, fmt.Errorf("save refresh: %w", err)
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}
