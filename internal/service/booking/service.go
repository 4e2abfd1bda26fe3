// Package booking owns the appointment state machine. Every status change
// in the system flows through ChangeStatus; the batch sweep and the
// deactivation cascade are callers of this service, never alternate paths
// to the tables.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
	"github.com/careslot/booking-api/pkg/metrics"
)

// transitions is the legal edge set. A status absent from the map, or a
// target absent from its set, is an invalid transition. Re-requesting the
// current status is rejected the same way, never treated as a no-op.
var transitions = map[model.AppointmentStatus]map[model.AppointmentStatus]bool{
	model.AppointmentStatusBooked: {
		model.AppointmentStatusCheckedIn: true,
		model.AppointmentStatusCancelled: true,
		model.AppointmentStatusNoShow:    true,
	},
	model.AppointmentStatusCheckedIn: {
		model.AppointmentStatusCompleted: true,
		model.AppointmentStatusCancelled: true,
	},
	// Administrative cancel of a no-show keeps the record consistent but
	// releases no capacity: those minutes were consumed by policy.
	model.AppointmentStatusNoShow: {
		model.AppointmentStatusCancelled: true,
	},
}

const treatmentCacheTTL = 5 * time.Minute

type Service struct {
	tx         repository.TxRunner
	appts      repository.AppointmentRepository
	slots      repository.TimeSlotRepository
	patients   repository.PatientRepository
	doctors    repository.DoctorRepository
	treatments repository.TreatmentRepository
	schedules  repository.ScheduleRepository
	cache      *gocache.Cache
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(
	tx repository.TxRunner,
	appts repository.AppointmentRepository,
	slots repository.TimeSlotRepository,
	patients repository.PatientRepository,
	doctors repository.DoctorRepository,
	treatments repository.TreatmentRepository,
	schedules repository.ScheduleRepository,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		tx:         tx,
		appts:      appts,
		slots:      slots,
		patients:   patients,
		doctors:    doctors,
		treatments: treatments,
		schedules:  schedules,
		cache:      gocache.New(treatmentCacheTTL, 10*time.Minute),
		logger:     logger,
		metrics:    m,
	}
}

// Book reserves the treatment's minutes from the slot and creates the
// appointment in one transaction. If the reservation fails no record is
// created and the caller sees the capacity error.
func (s *Service) Book(ctx context.Context, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	patient, err := s.patients.Get(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}
	if patient.IsBlacklisted {
		return nil, apperrors.ErrPatientBlacklist
	}

	doctor, err := s.doctors.Get(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.IsActive {
		return nil, apperrors.NewBadRequest("doctor is not accepting appointments", nil)
	}

	treatment, err := s.getTreatment(ctx, req.TreatmentTypeID)
	if err != nil {
		return nil, err
	}
	if !treatment.IsActive {
		return nil, apperrors.NewBadRequest("treatment type is not offered", nil)
	}

	slot, err := s.slots.Get(ctx, req.TimeSlotID)
	if err != nil {
		return nil, err
	}
	schedule, err := s.schedules.Get(ctx, slot.ScheduleID)
	if err != nil {
		return nil, err
	}
	if schedule.DoctorID != req.DoctorID {
		return nil, apperrors.NewBadRequest("time slot does not belong to this doctor", nil)
	}
	if !schedule.IsAvailable {
		return nil, apperrors.NewBadRequest("schedule is not available", nil)
	}

	appointment := &model.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		TreatmentTypeID: req.TreatmentTypeID,
		TimeSlotID:      req.TimeSlotID,
		AppointmentDate: schedule.Date,
		Status:          model.AppointmentStatusBooked,
	}

	err = s.withConflictRetry(ctx, func() error {
		return s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := s.slots.Reserve(ctx, tx, req.TimeSlotID, treatment.DurationMinutes); err != nil {
				return err
			}
			return s.appts.Create(ctx, tx, appointment)
		})
	})
	if err != nil {
		if apperrors.IsInsufficientCapacity(err) && s.metrics != nil {
			s.metrics.BookingConflicts.Inc()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.BookingsTotal.Inc()
	}
	s.logger.ZL.Info().
		Str("appointment_id", appointment.ID.String()).
		Str("patient_id", req.PatientID.String()).
		Str("slot_id", req.TimeSlotID.String()).
		Int("minutes", treatment.DurationMinutes).
		Msg("appointment booked")

	return appointment, nil
}

// ChangeStatus drives one transition of the state machine with its side
// effects, all inside a single transaction: status write, capacity release
// and no-show counting commit together or not at all.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, newStatus model.AppointmentStatus, reason string, actor *uuid.UUID) error {
	err := s.withConflictRetry(ctx, func() error {
		return s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.transition(ctx, tx, id, newStatus, reason, actor)
		})
	})
	if err != nil {
		if apperrors.IsInvalidTransition(err) && s.metrics != nil {
			s.metrics.TransitionViolations.Inc()
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(newStatus)).Inc()
	}
	return nil
}

func (s *Service) transition(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, newStatus model.AppointmentStatus, reason string, actor *uuid.UUID) error {
	appointment, err := s.appts.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}

	if !transitions[appointment.Status][newStatus] {
		return &apperrors.AppError{
			Code:    apperrors.ErrInvalidTransition,
			Message: fmt.Sprintf("cannot change appointment from %s to %s", appointment.Status, newStatus),
		}
	}

	from := appointment.Status
	appointment.Status = newStatus

	switch newStatus {
	case model.AppointmentStatusCancelled:
		appointment.CancelledReason = &reason
		appointment.CancelledBy = actor
		// Minutes come back only when they are still held: a no-show's
		// reservation was consumed by policy and stays debited.
		if from == model.AppointmentStatusBooked || from == model.AppointmentStatusCheckedIn {
			treatment, err := s.getTreatment(ctx, appointment.TreatmentTypeID)
			if err != nil {
				return err
			}
			if err := s.slots.Release(ctx, tx, appointment.TimeSlotID, treatment.DurationMinutes); err != nil {
				return err
			}
		}
	case model.AppointmentStatusNoShow:
		if err := s.patients.IncrementNoShow(ctx, tx, appointment.PatientID); err != nil {
			return err
		}
	}

	return s.appts.UpdateStatus(ctx, tx, appointment)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.appts.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	return s.appts.List(ctx, filters)
}

// getTreatment serves duration lookups from a short-lived cache; these sit
// on the hot path of every booking and release.
func (s *Service) getTreatment(ctx context.Context, id uuid.UUID) (*model.TreatmentType, error) {
	key := id.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.TreatmentType), nil
	}
	treatment, err := s.treatments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, treatment, gocache.DefaultExpiration)
	return treatment, nil
}

// InvalidateTreatment drops a treatment from the lookup cache. Called after
// treatment updates so stale durations never reach the ledger.
func (s *Service) InvalidateTreatment(id uuid.UUID) {
	s.cache.Delete(id.String())
}

// withConflictRetry retries the whole operation exactly once when the store
// reports a serialization conflict. Nothing else is retried automatically.
func (s *Service) withConflictRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err != nil && apperrors.IsStorageConflict(err) {
		s.logger.ZL.Warn().Err(err).Msg("storage conflict, retrying once")
		return fn()
	}
	return err
}
