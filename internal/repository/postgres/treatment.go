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

type treatmentRepository struct {
	BaseRepository
}

func NewTreatmentRepository(db *sqlx.DB) *treatmentRepository {
	return &treatmentRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *treatmentRepository) Create(ctx context.Context, treatment *model.TreatmentType) error {
	query := `
		INSERT INTO treatment_types (id, name, duration_minutes, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if treatment.ID == uuid.Nil {
		treatment.ID = uuid.New()
	}
	treatment.CreatedAt = time.Now()
	treatment.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		treatment.ID, treatment.Name, treatment.DurationMinutes, treatment.IsActive,
		treatment.CreatedAt, treatment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create treatment type: %w", err)
	}
	return nil
}

func (r *treatmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.TreatmentType, error) {
	query := `
		SELECT id, name, duration_minutes, is_active, created_at, updated_at
		FROM treatment_types
		WHERE id = $1
	`
	var treatment model.TreatmentType
	err := r.db.GetContext(ctx, &treatment, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("treatment type", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get treatment type: %w", err)
	}
	return &treatment, nil
}

func (r *treatmentRepository) Update(ctx context.Context, treatment *model.TreatmentType) error {
	query := `
		UPDATE treatment_types
		SET name = $1, duration_minutes = $2, updated_at = $3
		WHERE id = $4
	`
	treatment.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		treatment.Name, treatment.DurationMinutes, treatment.UpdatedAt, treatment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update treatment type: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("treatment type", nil)
	}
	return nil
}

func (r *treatmentRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `
		UPDATE treatment_types
		SET is_active = $1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("failed to set treatment active flag: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("treatment type", nil)
	}
	return nil
}

func (r *treatmentRepository) List(ctx context.Context) ([]*model.TreatmentType, error) {
	query := `
		SELECT id, name, duration_minutes, is_active, created_at, updated_at
		FROM treatment_types
		ORDER BY name ASC
	`
	var treatments []*model.TreatmentType
	err := r.db.SelectContext(ctx, &treatments, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list treatment types: %w", err)
	}
	return treatments, nil
}
