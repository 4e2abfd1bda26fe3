package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/careslot/booking-api/internal/model"
	apperrors "github.com/careslot/booking-api/pkg/errors"
)

type scheduleRepository struct {
	BaseRepository
}

func NewScheduleRepository(db *sqlx.DB) *scheduleRepository {
	return &scheduleRepository{BaseRepository: NewBaseRepository(db)}
}

// Create relies on the UNIQUE (doctor_id, date) constraint; a duplicate
// surfaces as a bad request, not a second schedule.
func (r *scheduleRepository) Create(ctx context.Context, schedule *model.Schedule) error {
	query := `
		INSERT INTO schedules (id, doctor_id, date, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	schedule.CreatedAt = time.Now()
	schedule.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID, schedule.DoctorID, schedule.Date, schedule.IsAvailable,
		schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.NewBadRequest("schedule already exists for this doctor and date", err)
		}
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (r *scheduleRepository) Get(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	query := `
		SELECT id, doctor_id, date, is_available, created_at, updated_at
		FROM schedules
		WHERE id = $1
	`
	var schedule model.Schedule
	err := r.db.GetContext(ctx, &schedule, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("schedule", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

func (r *scheduleRepository) GetByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.Schedule, error) {
	query := `
		SELECT id, doctor_id, date, is_available, created_at, updated_at
		FROM schedules
		WHERE doctor_id = $1 AND date = $2
	`
	var schedule model.Schedule
	err := r.db.GetContext(ctx, &schedule, query, doctorID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("schedule", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

func (r *scheduleRepository) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	query := `
		UPDATE schedules
		SET is_available = $1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, available, id)
	if err != nil {
		return fmt.Errorf("failed to set schedule availability: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("schedule", nil)
	}
	return nil
}

func (r *scheduleRepository) CreateSlot(ctx context.Context, slot *model.TimeSlot) error {
	query := `
		INSERT INTO time_slots (
			id, schedule_id, start_time, end_time,
			total_minutes, remaining_minutes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	if slot.TotalMinutes == 0 {
		slot.TotalMinutes = model.DefaultSlotMinutes
	}
	slot.RemainingMinutes = slot.TotalMinutes
	slot.CreatedAt = time.Now()
	slot.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		slot.ID, slot.ScheduleID, slot.StartTime, slot.EndTime,
		slot.TotalMinutes, slot.RemainingMinutes, slot.CreatedAt, slot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create time slot: %w", err)
	}
	return nil
}

func (r *scheduleRepository) ListSlots(ctx context.Context, scheduleID uuid.UUID) ([]*model.TimeSlot, error) {
	query := `
		SELECT id, schedule_id, start_time, end_time,
			   total_minutes, remaining_minutes, created_at, updated_at
		FROM time_slots
		WHERE schedule_id = $1
		ORDER BY start_time ASC
	`
	var slots []*model.TimeSlot
	err := r.db.SelectContext(ctx, &slots, query, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list time slots: %w", err)
	}
	return slots, nil
}
