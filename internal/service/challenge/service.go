// Package challenge implements bounded-attempt, time-boxed secret
// verification. One-time entry codes and login lockout share this single
// primitive; the policy knobs differ per use-site, not the mechanics.
package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
	"github.com/careslot/booking-api/pkg/metrics"
	"github.com/careslot/booking-api/pkg/security"
)

// Status is the outcome of a verification attempt.
type Status int

const (
	StatusVerified Status = iota
	StatusWrongSecret
	StatusExpired
	StatusLockedOut
)

// Result carries the outcome plus the user-facing guidance: attempts left
// after a wrong secret, or the lockout deadline.
type Result struct {
	Status      Status
	Remaining   int
	LockedUntil time.Time
}

// Policy parameterizes a challenge use-site.
type Policy struct {
	// SecretLength is the number of digits for issued codes.
	SecretLength int
	// Expiry bounds an issued secret's lifetime. Zero means no expiry
	// (persistent counters, e.g. login).
	Expiry time.Duration
	// MaxAttempts before the secret is exhausted or the owner locked.
	MaxAttempts int
	// Lockout is the lock window applied when MaxAttempts is reached.
	// Zero means no timed lockout: the secret is simply spent and the
	// caller must re-issue.
	Lockout time.Duration
	// ReissueGap is the minimum interval between issues per owner.
	ReissueGap time.Duration
}

// OTPPolicy matches the one-time entry code flow.
func OTPPolicy() Policy {
	return Policy{
		SecretLength: 6,
		Expiry:       5 * time.Minute,
		MaxAttempts:  5,
		ReissueGap:   60 * time.Second,
	}
}

// LoginPolicy matches the account lockout flow: a persistent failure
// counter, no per-secret expiry.
func LoginPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		Lockout:     15 * time.Minute,
	}
}

type Service struct {
	repo    repository.ChallengeRepository
	policy  Policy
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo repository.ChallengeRepository, policy Policy, logger *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		policy:  policy,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock overrides the reference clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue generates a fresh secret for the owner, superseding any previous
// one. Returns ErrReissueTooSoon inside the re-issue gap.
func (s *Service) Issue(ctx context.Context, ownerKey string) (string, time.Time, error) {
	existing, err := s.repo.GetActive(ctx, ownerKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to look up challenge: %w", err)
	}
	if existing != nil && s.policy.ReissueGap > 0 && s.now().Sub(existing.CreatedAt) < s.policy.ReissueGap {
		return "", time.Time{}, apperrors.ErrReissueTooSoon
	}

	secret, err := security.GenerateNumericCode(s.policy.SecretLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate secret: %w", err)
	}
	hash, err := security.HashSecret(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to hash secret: %w", err)
	}

	ch := &model.Challenge{
		OwnerKey:   ownerKey,
		SecretHash: hash,
		CreatedAt:  s.now(),
	}
	if s.policy.Expiry > 0 {
		expires := s.now().Add(s.policy.Expiry)
		ch.ExpiresAt = &expires
	}

	if err := s.repo.Replace(ctx, ch); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store challenge: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ChallengesIssued.Inc()
	}

	var expiresAt time.Time
	if ch.ExpiresAt != nil {
		expiresAt = *ch.ExpiresAt
	}
	return secret, expiresAt, nil
}

// Verify checks a candidate against the owner's issued secret. The lockout
// gate runs before any comparison.
func (s *Service) Verify(ctx context.Context, ownerKey, candidate string) (Result, error) {
	ch, err := s.repo.GetActive(ctx, ownerKey)
	if err != nil {
		return Result{}, fmt.Errorf("failed to look up challenge: %w", err)
	}
	if ch == nil || ch.UsedAt != nil {
		return Result{Status: StatusExpired}, nil
	}

	if locked, until := s.lockedAt(ch); locked {
		return Result{Status: StatusLockedOut, LockedUntil: until}, nil
	}

	if ch.ExpiresAt != nil && !s.now().Before(*ch.ExpiresAt) {
		return Result{Status: StatusExpired}, nil
	}
	// An exhausted secret behaves like an expired one: re-issue required.
	if s.policy.Lockout == 0 && ch.Attempts >= s.policy.MaxAttempts {
		return Result{Status: StatusExpired}, nil
	}

	if security.CompareSecret(ch.SecretHash, candidate) {
		if err := s.repo.MarkUsed(ctx, ch.ID, s.now()); err != nil {
			return Result{}, fmt.Errorf("failed to mark challenge used: %w", err)
		}
		return Result{Status: StatusVerified}, nil
	}

	return s.recordFailure(ctx, ch)
}

// Attempt runs the same gate and bookkeeping around a caller-supplied
// comparison. Used for login, where the secret is the account's password
// hash rather than an issued code.
func (s *Service) Attempt(ctx context.Context, ownerKey string, match func() (bool, error)) (Result, error) {
	ch, err := s.repo.GetActive(ctx, ownerKey)
	if err != nil {
		return Result{}, fmt.Errorf("failed to look up challenge: %w", err)
	}

	if ch != nil {
		if locked, until := s.lockedAt(ch); locked {
			return Result{Status: StatusLockedOut, LockedUntil: until}, nil
		}
		// A lock that has lapsed resets the counter before the next try.
		if ch.LockedUntil != nil {
			if err := s.repo.ResetAttempts(ctx, ch.ID); err != nil {
				return Result{}, fmt.Errorf("failed to reset attempts: %w", err)
			}
			ch.Attempts = 0
			ch.LockedUntil = nil
		}
	}

	ok, err := match()
	if err != nil {
		return Result{}, err
	}
	if ok {
		if ch != nil && ch.Attempts > 0 {
			if err := s.repo.ResetAttempts(ctx, ch.ID); err != nil {
				return Result{}, fmt.Errorf("failed to reset attempts: %w", err)
			}
		}
		return Result{Status: StatusVerified}, nil
	}

	if ch == nil {
		ch = &model.Challenge{OwnerKey: ownerKey, CreatedAt: s.now()}
		if err := s.repo.Replace(ctx, ch); err != nil {
			return Result{}, fmt.Errorf("failed to create failure counter: %w", err)
		}
	}

	return s.recordFailure(ctx, ch)
}

func (s *Service) lockedAt(ch *model.Challenge) (bool, time.Time) {
	if ch.LockedUntil != nil && s.now().Before(*ch.LockedUntil) {
		return true, *ch.LockedUntil
	}
	return false, time.Time{}
}

// recordFailure bumps the attempt counter atomically and applies the lockout
// when the budget is spent. Remaining never goes negative.
func (s *Service) recordFailure(ctx context.Context, ch *model.Challenge) (Result, error) {
	attempts, err := s.repo.IncrementAttempts(ctx, ch.ID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to increment attempts: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ChallengeFailures.Inc()
	}

	remaining := s.policy.MaxAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}

	if s.policy.Lockout > 0 && attempts >= s.policy.MaxAttempts {
		until := s.now().Add(s.policy.Lockout)
		if err := s.repo.SetLock(ctx, ch.ID, until); err != nil {
			return Result{}, fmt.Errorf("failed to set lock: %w", err)
		}
		if s.metrics != nil {
			s.metrics.ChallengeLockouts.Inc()
		}
		s.logger.ZL.Warn().Str("owner_key", ch.OwnerKey).Time("until", until).Msg("verification locked out")
		return Result{Status: StatusLockedOut, LockedUntil: until}, nil
	}

	return Result{Status: StatusWrongSecret, Remaining: remaining}, nil
}
