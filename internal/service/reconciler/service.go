// Package reconciler runs the time-driven sweep: elapsed bookings become
// no-shows, and patients at the no-show cap are escalated to the blacklist.
// The sweep is idempotent; re-running at any frequency produces no double
// effects.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/notification"
	"github.com/careslot/booking-api/internal/repository"
	"github.com/careslot/booking-api/internal/service/booking"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
	"github.com/careslot/booking-api/pkg/metrics"
)

const blacklistReason = "repeat no-show"

// Report aggregates one sweep run. Errors holds per-row failures; a failing
// row never aborts the rest of the sweep.
type Report struct {
	NoShows     int      `json:"no_show_count"`
	Blacklisted int      `json:"blacklisted_count"`
	Errors      []string `json:"errors,omitempty"`
}

type Service struct {
	tx        repository.TxRunner
	appts     repository.AppointmentRepository
	patients  repository.PatientRepository
	lifecycle *booking.Service
	notifier  notification.Notifier
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	tx repository.TxRunner,
	appts repository.AppointmentRepository,
	patients repository.PatientRepository,
	lifecycle *booking.Service,
	notifier notification.Notifier,
	logger *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		tx:        tx,
		appts:     appts,
		patients:  patients,
		lifecycle: lifecycle,
		notifier:  notifier,
		logger:    logger,
		metrics:   m,
	}
}

// Run executes both sweep steps against the given reference instant. A zero
// ref means now. Each row commits in its own transaction, so partial success
// is reported rather than rolled back wholesale.
func (s *Service) Run(ctx context.Context, ref time.Time) (*Report, error) {
	if ref.IsZero() {
		ref = time.Now()
	}

	start := time.Now()
	report := &Report{}

	if err := s.sweepElapsed(ctx, ref, report); err != nil {
		return report, err
	}
	if err := s.escalateRepeatOffenders(ctx, report); err != nil {
		return report, err
	}

	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	s.logger.ZL.Info().
		Int("no_shows", report.NoShows).
		Int("blacklisted", report.Blacklisted).
		Int("errors", len(report.Errors)).
		Msg("reconciliation sweep finished")

	return report, nil
}

// sweepElapsed drives every still-booked, elapsed appointment through the
// lifecycle's no_show transition. The transition's own status guard makes
// re-runs no-ops: a row already converted is no longer booked.
func (s *Service) sweepElapsed(ctx context.Context, ref time.Time, report *Report) error {
	elapsed, err := s.appts.ListElapsedBooked(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to list elapsed bookings: %w", err)
	}

	for _, appointment := range elapsed {
		err := s.lifecycle.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusNoShow, "", nil)
		if err != nil {
			// A concurrent caller may have moved the row first; that is
			// the idempotency guard doing its job, not a sweep failure.
			if apperrors.IsInvalidTransition(err) {
				continue
			}
			s.captureRowError(report, appointment.ID, err)
			continue
		}
		report.NoShows++
		if s.metrics != nil {
			s.metrics.SweepNoShows.Inc()
		}
	}
	return nil
}

// escalateRepeatOffenders blacklists every patient at the cap. The flag
// update is guarded, so the blacklist entry is written exactly once per
// patient no matter how often the sweep runs.
func (s *Service) escalateRepeatOffenders(ctx context.Context, report *Report) error {
	candidates, err := s.patients.ListBlacklistCandidates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list blacklist candidates: %w", err)
	}

	for _, patient := range candidates {
		patient := patient
		var flipped bool
		err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			flipped, err = s.patients.MarkBlacklisted(ctx, tx, patient.ID)
			if err != nil {
				return err
			}
			if !flipped {
				// Another runner escalated this patient between the listing
				// and the guarded update.
				return nil
			}
			return s.patients.CreateBlacklistEntry(ctx, tx, &model.Blacklist{
				PatientID: patient.ID,
				Reason:    blacklistReason,
				CreatedBy: nil, // system
			})
		})
		if err != nil {
			s.captureRowError(report, patient.ID, err)
			continue
		}
		if !flipped {
			continue
		}

		report.Blacklisted++
		if s.metrics != nil {
			s.metrics.SweepBlacklisted.Inc()
		}
		s.notifyBlacklisted(ctx, patient)
	}
	return nil
}

func (s *Service) notifyBlacklisted(ctx context.Context, patient *model.Patient) {
	if s.notifier == nil || patient.Phone == nil {
		return
	}
	msg := "Your booking privileges have been suspended after repeated missed appointments. Please contact the clinic."
	if err := s.notifier.Notify(ctx, *patient.Phone, msg); err != nil {
		if s.metrics != nil {
			s.metrics.NotificationErrors.Inc()
		}
		s.logger.ZL.Warn().Err(err).Str("patient_id", patient.ID.String()).Msg("blacklist notification failed")
	}
}

func (s *Service) captureRowError(report *Report, id uuid.UUID, err error) {
	report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", id, err))
	if s.metrics != nil {
		s.metrics.SweepErrors.Inc()
	}
	s.logger.ZL.Error().Err(err).Str("row_id", id.String()).Msg("sweep row failed")
}
