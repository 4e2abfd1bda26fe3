package doctor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository"
	"github.com/careslot/booking-api/internal/service/cascade"
	"github.com/careslot/booking-api/pkg/logger"
)

type Service struct {
	repo      repository.DoctorRepository
	canceller *cascade.Service
	logger    *logger.Logger
}

func NewService(repo repository.DoctorRepository, canceller *cascade.Service, logger *logger.Logger) *Service {
	return &Service{repo: repo, canceller: canceller, logger: logger}
}

func (s *Service) Create(ctx context.Context, req *model.CreateDoctorRequest) (*model.Doctor, error) {
	doctor := &model.Doctor{
		Name:      req.Name,
		Specialty: req.Specialty,
		IsActive:  true,
	}
	if err := s.repo.Create(ctx, doctor); err != nil {
		return nil, fmt.Errorf("failed to create doctor: %w", err)
	}
	return doctor, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*model.Doctor, error) {
	return s.repo.List(ctx)
}

// Deactivate flips the active flag and cascades: every future booking for
// the doctor is cancelled through the lifecycle, with patients notified.
// History is never deleted.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*cascade.Result, error) {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return nil, err
	}

	result, err := s.canceller.Cascade(ctx, repository.EntityDoctor, id)
	if err != nil {
		return nil, fmt.Errorf("deactivation cascade failed: %w", err)
	}
	return result, nil
}
