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
	"github.com/careslot/booking-api/internal/repository"
	apperrors "github.com/careslot/booking-api/pkg/errors"
)

const appointmentColumns = `
	id, patient_id, doctor_id, treatment_type_id, time_slot_id,
	appointment_date, status, cancelled_reason, cancelled_by,
	created_at, updated_at
`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) *appointmentRepository {
	return &appointmentRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *appointmentRepository) Create(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, treatment_type_id, time_slot_id,
			appointment_date, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = time.Now()

	_, err := r.ext(tx).ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.DoctorID,
		appointment.TreatmentTypeID,
		appointment.TimeSlotID,
		appointment.AppointmentDate,
		appointment.Status,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	if err != nil {
		return wrapConflict(fmt.Errorf("failed to create appointment: %w", err))
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("appointment", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

// GetForUpdate pins the row until the transaction ends so status transitions
// serialize per appointment.
func (r *appointmentRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`

	var appointment model.Appointment
	err := sqlx.GetContext(ctx, r.ext(tx), &appointment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("appointment", err)
	}
	if err != nil {
		return nil, wrapConflict(fmt.Errorf("failed to lock appointment: %w", err))
	}
	return &appointment, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET status = $1, cancelled_reason = $2, cancelled_by = $3, updated_at = $4
		WHERE id = $5
	`
	appointment.UpdatedAt = time.Now()

	result, err := r.ext(tx).ExecContext(ctx, query,
		appointment.Status,
		appointment.CancelledReason,
		appointment.CancelledBy,
		appointment.UpdatedAt,
		appointment.ID,
	)
	if err != nil {
		return wrapConflict(fmt.Errorf("failed to update appointment status: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("appointment", nil)
	}
	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []interface{}{}
	argCount := 1

	if filters != nil {
		if filters.PatientID != uuid.Nil {
			query += fmt.Sprintf(" AND patient_id = $%d", argCount)
			args = append(args, filters.PatientID)
			argCount++
		}
		if filters.DoctorID != uuid.Nil {
			query += fmt.Sprintf(" AND doctor_id = $%d", argCount)
			args = append(args, filters.DoctorID)
			argCount++
		}
		if filters.Status != "" {
			query += fmt.Sprintf(" AND status = $%d", argCount)
			args = append(args, filters.Status)
			argCount++
		}
		if !filters.StartDate.IsZero() {
			query += fmt.Sprintf(" AND appointment_date >= $%d", argCount)
			args = append(args, filters.StartDate)
			argCount++
		}
		if !filters.EndDate.IsZero() {
			query += fmt.Sprintf(" AND appointment_date <= $%d", argCount)
			args = append(args, filters.EndDate)
			argCount++
		}
	}

	query += " ORDER BY appointment_date ASC, created_at ASC"

	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListElapsedBooked(ctx context.Context, ref time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT a.id, a.patient_id, a.doctor_id, a.treatment_type_id, a.time_slot_id,
			   a.appointment_date, a.status, a.cancelled_reason, a.cancelled_by,
			   a.created_at, a.updated_at
		FROM appointments a
		JOIN time_slots s ON s.id = a.time_slot_id
		WHERE a.status = 'booked'
		AND s.end_time <= $1
		ORDER BY s.end_time ASC
	`
	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to list elapsed bookings: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListBookedFuture(ctx context.Context, kind repository.EntityKind, entityID uuid.UUID, from time.Time) ([]*model.Appointment, error) {
	var column string
	switch kind {
	case repository.EntityDoctor:
		column = "doctor_id"
	case repository.EntityTreatment:
		column = "treatment_type_id"
	default:
		return nil, fmt.Errorf("unknown entity kind: %s", kind)
	}

	query := fmt.Sprintf(`
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE %s = $1
		AND status = 'booked'
		AND appointment_date >= $2
		ORDER BY appointment_date ASC
	`, column)

	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, entityID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list future bookings: %w", err)
	}
	return appointments, nil
}
