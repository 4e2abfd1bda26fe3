package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository"
	"github.com/careslot/booking-api/internal/service/challenge"
	"github.com/careslot/booking-api/pkg/auth"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
	"github.com/careslot/booking-api/pkg/security"
)

// Service authenticates staff accounts. The failure counter and lockout
// window live in the shared challenge primitive, keyed per account.
type Service struct {
	users    repository.UserRepository
	throttle *challenge.Service
	jwtSvc   auth.JWTService
	hasher   security.PasswordHasher
	logger   *logger.Logger
}

func NewService(
	users repository.UserRepository,
	throttle *challenge.Service,
	jwtSvc auth.JWTService,
	hasher security.PasswordHasher,
	logger *logger.Logger,
) *Service {
	return &Service{
		users:    users,
		throttle: throttle,
		jwtSvc:   jwtSvc,
		hasher:   hasher,
		logger:   logger,
	}
}

// LockedOutError surfaces the remaining wait to the caller.
type LockedOutError struct {
	Until time.Time
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("account is locked until %s", e.Until.Format(time.RFC3339))
}

// Login verifies credentials under the account's lockout gate and issues
// session tokens. Unknown accounts burn a bcrypt comparison against nothing
// so response timing does not reveal which emails exist.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			_ = s.hasher.Compare("$2a$12$invalidinvalidinvalidinvalidinvalidinvalidinvalidinval", password)
			return nil, apperrors.ErrInvalidCredential
		}
		return nil, err
	}

	ownerKey := "login:" + user.ID.String()
	result, err := s.throttle.Attempt(ctx, ownerKey, func() (bool, error) {
		return s.hasher.Compare(user.PasswordHash, password) == nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("login attempt failed: %w", err)
	}

	switch result.Status {
	case challenge.StatusVerified:
		// fall through to token issuance
	case challenge.StatusLockedOut:
		return nil, &LockedOutError{Until: result.LockedUntil}
	default:
		return nil, apperrors.ErrInvalidCredential
	}

	accessToken, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.jwtSvc.GenerateRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	s.logger.ZL.Info().Str("user_id", user.ID.String()).Msg("login succeeded")

	return &model.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Register creates a staff account with a hashed password.
func (s *Service) Register(ctx context.Context, email, password, name, role string) (*model.User, error) {
	if existing, _ := s.users.GetByEmail(ctx, email); existing != nil {
		return nil, apperrors.NewBadRequest("email already registered", nil)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.NewBadRequest("invalid password", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// ValidateToken resolves a bearer token to its claims.
func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.jwtSvc.ValidateToken(token)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}
	return claims, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*model.TokenResponse, error) {
	claims, err := s.jwtSvc.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	user, err := s.users.Get(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.jwtSvc.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	newRefresh, err := s.jwtSvc.GenerateRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &model.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
	}, nil
}
