package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/careslot/booking-api/internal/repository/memory"
	"github.com/careslot/booking-api/internal/service/challenge"
	pkgauth "github.com/careslot/booking-api/pkg/auth"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
	"github.com/careslot/booking-api/pkg/security"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	store := memory.NewStore()
	log := logger.NewLogger(nil)
	clock := &fakeClock{t: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}

	throttle := challenge.NewService(store.Challenges(), challenge.LoginPolicy(), log, nil).
		WithClock(clock.Now)
	jwtSvc := pkgauth.NewJWTService(pkgauth.Config{
		Secret:             "test-secret",
		RefreshSecret:      "test-refresh-secret",
		ExpiryHours:        1,
		RefreshExpiryHours: 24,
	})
	hasher := security.NewBcryptHasher(bcrypt.MinCost)

	return NewService(store.Users(), throttle, jwtSvc, hasher, log), clock
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "reception@clinic.test", "s3cret-pass", "Front Desk", "receptionist")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	tokens, err := svc.Login(ctx, "reception@clinic.test", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	claims, err := svc.ValidateToken(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "receptionist", claims.Role)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "reception@clinic.test", "s3cret-pass", "Front Desk", "receptionist")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "reception@clinic.test", "other-pass-1", "Imposter", "receptionist")
	require.Error(t, err)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "reception@clinic.test", "s3cret-pass", "Front Desk", "receptionist")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "reception@clinic.test", "wrong-pass")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Login(context.Background(), "nobody@clinic.test", "whatever")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredential)
}

func TestLoginLockoutAfterFiveFailures(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "reception@clinic.test", "s3cret-pass", "Front Desk", "receptionist")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = svc.Login(ctx, "reception@clinic.test", "wrong-pass")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	}

	_, err = svc.Login(ctx, "reception@clinic.test", "wrong-pass")
	var locked *LockedOutError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, clock.Now().Add(15*time.Minute), locked.Until)

	// Even the correct password is refused during the window.
	_, err = svc.Login(ctx, "reception@clinic.test", "s3cret-pass")
	require.ErrorAs(t, err, &locked)

	clock.Advance(16 * time.Minute)
	tokens, err := svc.Login(ctx, "reception@clinic.test", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
}

func TestSuccessfulLoginResetsFailureCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "reception@clinic.test", "s3cret-pass", "Front Desk", "receptionist")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err = svc.Login(ctx, "reception@clinic.test", "wrong-pass")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	}
	_, err = svc.Login(ctx, "reception@clinic.test", "s3cret-pass")
	require.NoError(t, err)

	// The budget is whole again: four more failures without a lockout.
	for i := 0; i < 4; i++ {
		_, err = svc.Login(ctx, "reception@clinic.test", "wrong-pass")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredential)
	}
}

func TestRefreshTokenIssuesNewPair(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "reception@clinic.test", "s3cret-pass", "Front Desk", "receptionist")
	require.NoError(t, err)
	tokens, err := svc.Login(ctx, "reception@clinic.test", "s3cret-pass")
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	// An access token is not a refresh token.
	_, err = svc.RefreshToken(ctx, tokens.AccessToken)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ValidateToken(context.Background(), "not-a-token")
	assert.Error(t, err)
}
