package treatment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository"
	"github.com/careslot/booking-api/internal/service/booking"
	"github.com/careslot/booking-api/internal/service/cascade"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
)

type Service struct {
	repo      repository.TreatmentRepository
	canceller *cascade.Service
	lifecycle *booking.Service
	logger    *logger.Logger
}

func NewService(repo repository.TreatmentRepository, canceller *cascade.Service, lifecycle *booking.Service, logger *logger.Logger) *Service {
	return &Service{repo: repo, canceller: canceller, lifecycle: lifecycle, logger: logger}
}

func (s *Service) Create(ctx context.Context, req *model.CreateTreatmentRequest) (*model.TreatmentType, error) {
	if req.DurationMinutes < model.MinTreatmentDuration || req.DurationMinutes > model.MaxTreatmentDuration {
		return nil, apperrors.NewBadRequest(
			fmt.Sprintf("duration must be between %d and %d minutes", model.MinTreatmentDuration, model.MaxTreatmentDuration), nil)
	}

	treatment := &model.TreatmentType{
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		IsActive:        true,
	}
	if err := s.repo.Create(ctx, treatment); err != nil {
		return nil, fmt.Errorf("failed to create treatment type: %w", err)
	}
	return treatment, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.TreatmentType, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*model.TreatmentType, error) {
	return s.repo.List(ctx)
}

func (s *Service) Update(ctx context.Context, treatment *model.TreatmentType) error {
	if treatment.DurationMinutes < model.MinTreatmentDuration || treatment.DurationMinutes > model.MaxTreatmentDuration {
		return apperrors.NewBadRequest(
			fmt.Sprintf("duration must be between %d and %d minutes", model.MinTreatmentDuration, model.MaxTreatmentDuration), nil)
	}
	if err := s.repo.Update(ctx, treatment); err != nil {
		return err
	}
	s.lifecycle.InvalidateTreatment(treatment.ID)
	return nil
}

// Deactivate flips the active flag and cancels future bookings of this
// treatment through the lifecycle.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*cascade.Result, error) {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return nil, err
	}
	s.lifecycle.InvalidateTreatment(id)

	result, err := s.canceller.Cascade(ctx, repository.EntityTreatment, id)
	if err != nil {
		return nil, fmt.Errorf("deactivation cascade failed: %w", err)
	}
	return result, nil
}
