package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careslot/booking-api/internal/model"
	apperrors "github.com/careslot/booking-api/pkg/errors"
)

type challengeRepository struct {
	BaseRepository
}

func NewChallengeRepository(db *sqlx.DB) *challengeRepository {
	return &challengeRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *challengeRepository) GetActive(ctx context.Context, ownerKey string) (*model.Challenge, error) {
	query := `
		SELECT id, owner_key, secret_hash, expires_at, attempts,
			   used_at, locked_until, created_at
		FROM challenges
		WHERE owner_key = $1
	`
	var challenge model.Challenge
	err := r.db.GetContext(ctx, &challenge, query, ownerKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return &challenge, nil
}

// Replace supersedes the previous row for the owner key, resetting attempt
// and lock state along with the secret.
func (r *challengeRepository) Replace(ctx context.Context, challenge *model.Challenge) error {
	query := `
		INSERT INTO challenges (
			id, owner_key, secret_hash, expires_at, attempts,
			used_at, locked_until, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_key) DO UPDATE SET
			id = EXCLUDED.id,
			secret_hash = EXCLUDED.secret_hash,
			expires_at = EXCLUDED.expires_at,
			attempts = EXCLUDED.attempts,
			used_at = EXCLUDED.used_at,
			locked_until = EXCLUDED.locked_until,
			created_at = EXCLUDED.created_at
	`
	if challenge.ID == uuid.Nil {
		challenge.ID = uuid.New()
	}
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		challenge.ID,
		challenge.OwnerKey,
		challenge.SecretHash,
		challenge.ExpiresAt,
		challenge.Attempts,
		challenge.UsedAt,
		challenge.LockedUntil,
		challenge.CreatedAt,
	)
	if err != nil {
		return wrapConflict(fmt.Errorf("failed to replace challenge: %w", err))
	}
	return nil
}

func (r *challengeRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE challenges
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`
	var attempts int
	err := r.db.GetContext(ctx, &attempts, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperrors.NewNotFound("challenge", err)
	}
	if err != nil {
		return 0, wrapConflict(fmt.Errorf("failed to increment attempts: %w", err))
	}
	return attempts, nil
}

func (r *challengeRepository) ResetAttempts(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE challenges
		SET attempts = 0, locked_until = NULL
		WHERE id = $1
	`
	return r.exec(ctx, query, id)
}

func (r *challengeRepository) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	query := `
		UPDATE challenges
		SET used_at = $1
		WHERE id = $2
	`
	return r.exec(ctx, query, usedAt, id)
}

func (r *challengeRepository) SetLock(ctx context.Context, id uuid.UUID, until time.Time) error {
	query := `
		UPDATE challenges
		SET locked_until = $1
		WHERE id = $2
	`
	return r.exec(ctx, query, until, id)
}

func (r *challengeRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapConflict(fmt.Errorf("failed to update challenge: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("challenge", nil)
	}
	return nil
}
