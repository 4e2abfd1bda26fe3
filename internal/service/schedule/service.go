package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
)

type Service struct {
	repo    repository.ScheduleRepository
	doctors repository.DoctorRepository
	logger  *logger.Logger
}

func NewService(repo repository.ScheduleRepository, doctors repository.DoctorRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, doctors: doctors, logger: logger}
}

// Create sets up a doctor's day with its slots. The repository's unique
// constraint keeps one schedule per doctor per date.
func (s *Service) Create(ctx context.Context, req *model.CreateScheduleRequest) (*model.Schedule, error) {
	doctor, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive {
		return nil, apperrors.NewBadRequest("doctor is not active", nil)
	}

	schedule := &model.Schedule{
		DoctorID:    req.DoctorID,
		Date:        req.Date,
		IsAvailable: true,
	}
	if err := s.repo.Create(ctx, schedule); err != nil {
		return nil, err
	}

	for _, sl := range req.Slots {
		if !sl.EndTime.After(sl.StartTime) {
			return nil, apperrors.NewBadRequest("slot end time must be after start time", nil)
		}
		slot := &model.TimeSlot{
			ScheduleID:   schedule.ID,
			StartTime:    sl.StartTime,
			EndTime:      sl.EndTime,
			TotalMinutes: sl.TotalMinutes,
		}
		if err := s.repo.CreateSlot(ctx, slot); err != nil {
			return nil, fmt.Errorf("failed to create slot: %w", err)
		}
	}

	return schedule, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	return s.repo.SetAvailability(ctx, id, available)
}

func (s *Service) ListSlots(ctx context.Context, scheduleID uuid.UUID) ([]*model.TimeSlot, error) {
	if _, err := s.repo.Get(ctx, scheduleID); err != nil {
		return nil, err
	}
	return s.repo.ListSlots(ctx, scheduleID)
}
