// Package cascade reacts to doctor or treatment deactivation by cancelling
// every affected future booking. Each cancellation replays the single-
// appointment lifecycle transition in its own transaction; there is no bulk
// update that could bypass the state machine's guards.
package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/notification"
	"github.com/careslot/booking-api/internal/repository"
	"github.com/careslot/booking-api/internal/service/booking"
	"github.com/careslot/booking-api/pkg/logger"
	"github.com/careslot/booking-api/pkg/metrics"
)

// Result reports how many bookings were cancelled and how many patients
// were reached.
type Result struct {
	Cancelled int `json:"cancelled_count"`
	Notified  int `json:"notified_count"`
}

type Service struct {
	appts     repository.AppointmentRepository
	patients  repository.PatientRepository
	lifecycle *booking.Service
	notifier  notification.Notifier
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewService(
	appts repository.AppointmentRepository,
	patients repository.PatientRepository,
	lifecycle *booking.Service,
	notifier notification.Notifier,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		appts:     appts,
		patients:  patients,
		lifecycle: lifecycle,
		notifier:  notifier,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// WithClock overrides the reference clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Cascade cancels every booked, future-or-today appointment referencing the
// deactivated entity. Past and checked-in appointments are untouched.
// Notification is best-effort: a delivery failure is logged and counted but
// never blocks or reverses the cancellation.
func (s *Service) Cascade(ctx context.Context, kind repository.EntityKind, entityID uuid.UUID) (*Result, error) {
	reason := cancelReason(kind)
	today := s.now().Truncate(24 * time.Hour)

	affected, err := s.appts.ListBookedFuture(ctx, kind, entityID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list affected bookings: %w", err)
	}

	result := &Result{}
	for _, appointment := range affected {
		err := s.lifecycle.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusCancelled, reason, nil)
		if err != nil {
			s.logger.ZL.Error().Err(err).
				Str("appointment_id", appointment.ID.String()).
				Msg("cascade cancellation failed")
			continue
		}
		result.Cancelled++
		if s.metrics != nil {
			s.metrics.Cancellations.WithLabelValues("cascade").Inc()
		}

		if s.notifyPatient(ctx, appointment, reason) {
			result.Notified++
		}
	}

	s.logger.ZL.Info().
		Str("entity_kind", string(kind)).
		Str("entity_id", entityID.String()).
		Int("cancelled", result.Cancelled).
		Int("notified", result.Notified).
		Msg("deactivation cascade finished")

	return result, nil
}

func (s *Service) notifyPatient(ctx context.Context, appointment *model.Appointment, reason string) bool {
	if s.notifier == nil {
		return false
	}
	patient, err := s.patients.Get(ctx, appointment.PatientID)
	if err != nil || patient.Phone == nil {
		return false
	}

	msg := fmt.Sprintf("Your appointment on %s was cancelled: %s. Please rebook.",
		appointment.AppointmentDate.Format("2006-01-02"), reason)
	if err := s.notifier.Notify(ctx, *patient.Phone, msg); err != nil {
		if s.metrics != nil {
			s.metrics.NotificationErrors.Inc()
		}
		s.logger.ZL.Warn().Err(err).
			Str("patient_id", patient.ID.String()).
			Msg("cascade notification failed")
		return false
	}
	return true
}

func cancelReason(kind repository.EntityKind) string {
	switch kind {
	case repository.EntityDoctor:
		return "doctor no longer available"
	case repository.EntityTreatment:
		return "treatment no longer offered"
	}
	return "entity deactivated"
}
