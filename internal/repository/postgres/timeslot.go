package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careslot/booking-api/internal/model"
	apperrors "github.com/careslot/booking-api/pkg/errors"
)

type timeSlotRepository struct {
	BaseRepository
}

func NewTimeSlotRepository(db *sqlx.DB) *timeSlotRepository {
	return &timeSlotRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *timeSlotRepository) Get(ctx context.Context, id uuid.UUID) (*model.TimeSlot, error) {
	query := `
		SELECT id, schedule_id, start_time, end_time,
			   total_minutes, remaining_minutes, created_at, updated_at
		FROM time_slots
		WHERE id = $1
	`
	var slot model.TimeSlot
	err := r.db.GetContext(ctx, &slot, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("time slot", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time slot: %w", err)
	}
	return &slot, nil
}

// Reserve debits minutes in one conditional update. Zero rows affected means
// either the slot cannot cover the request or it does not exist; a follow-up
// probe tells the two apart.
func (r *timeSlotRepository) Reserve(ctx context.Context, tx *sqlx.Tx, slotID uuid.UUID, minutes int) error {
	query := `
		UPDATE time_slots
		SET remaining_minutes = remaining_minutes - $1, updated_at = NOW()
		WHERE id = $2 AND remaining_minutes >= $1
	`
	result, err := r.ext(tx).ExecContext(ctx, query, minutes, slotID)
	if err != nil {
		return wrapConflict(fmt.Errorf("failed to reserve slot capacity: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	probe := `SELECT EXISTS (SELECT 1 FROM time_slots WHERE id = $1)`
	if err := sqlx.GetContext(ctx, r.ext(tx), &exists, probe, slotID); err != nil {
		return fmt.Errorf("failed to probe time slot: %w", err)
	}
	if !exists {
		return apperrors.NewNotFound("time slot", nil)
	}
	return apperrors.ErrSlotCapacity
}

// Release credits minutes back, saturating at the capacity ceiling.
func (r *timeSlotRepository) Release(ctx context.Context, tx *sqlx.Tx, slotID uuid.UUID, minutes int) error {
	query := `
		UPDATE time_slots
		SET remaining_minutes = LEAST(remaining_minutes + $1, total_minutes), updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.ext(tx).ExecContext(ctx, query, minutes, slotID)
	if err != nil {
		return wrapConflict(fmt.Errorf("failed to release slot capacity: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("time slot", nil)
	}
	return nil
}
