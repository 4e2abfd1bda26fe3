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

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(db *sqlx.DB) *patientRepository {
	return &patientRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (
			id, name, phone, no_show_count, is_blacklisted, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	patient.CreatedAt = time.Now()
	patient.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		patient.ID,
		patient.Name,
		patient.Phone,
		patient.NoShowCount,
		patient.IsBlacklisted,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `
		SELECT id, name, phone, no_show_count, is_blacklisted, created_at, updated_at
		FROM patients
		WHERE id = $1
	`
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) GetByPhone(ctx context.Context, phone string) (*model.Patient, error) {
	query := `
		SELECT id, name, phone, no_show_count, is_blacklisted, created_at, updated_at
		FROM patients
		WHERE phone = $1
	`
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, query, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient by phone: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET name = $1, phone = $2, updated_at = $3
		WHERE id = $4
	`
	patient.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query, patient.Name, patient.Phone, patient.UpdatedAt, patient.ID)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("patient", nil)
	}
	return nil
}

// IncrementNoShow saturates at the cap so repeated sweeps can never push the
// counter past it.
func (r *patientRepository) IncrementNoShow(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	query := `
		UPDATE patients
		SET no_show_count = LEAST(no_show_count + 1, $1), updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.ext(tx).ExecContext(ctx, query, model.MaxNoShowCount, id)
	if err != nil {
		return wrapConflict(fmt.Errorf("failed to increment no-show count: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("patient", nil)
	}
	return nil
}

// MarkBlacklisted is guarded on the flag: zero rows affected means the
// patient was already blacklisted and the caller must not insert a second
// blacklist entry.
func (r *patientRepository) MarkBlacklisted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	query := `
		UPDATE patients
		SET is_blacklisted = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_blacklisted = FALSE
	`
	result, err := r.ext(tx).ExecContext(ctx, query, id)
	if err != nil {
		return false, wrapConflict(fmt.Errorf("failed to mark patient blacklisted: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *patientRepository) CreateBlacklistEntry(ctx context.Context, tx *sqlx.Tx, entry *model.Blacklist) error {
	query := `
		INSERT INTO blacklists (id, patient_id, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()

	_, err := r.ext(tx).ExecContext(ctx, query,
		entry.ID,
		entry.PatientID,
		entry.Reason,
		entry.CreatedBy,
		entry.CreatedAt,
	)
	if err != nil {
		return wrapConflict(fmt.Errorf("failed to create blacklist entry: %w", err))
	}
	return nil
}

func (r *patientRepository) ListBlacklistCandidates(ctx context.Context) ([]*model.Patient, error) {
	query := `
		SELECT id, name, phone, no_show_count, is_blacklisted, created_at, updated_at
		FROM patients
		WHERE no_show_count >= $1 AND is_blacklisted = FALSE
	`
	var patients []*model.Patient
	err := r.db.SelectContext(ctx, &patients, query, model.MaxNoShowCount)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist candidates: %w", err)
	}
	return patients, nil
}
