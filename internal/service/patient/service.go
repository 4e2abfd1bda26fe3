package patient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/notification"
	"github.com/careslot/booking-api/internal/repository"
	"github.com/careslot/booking-api/internal/service/challenge"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
)

// Service manages patients and their one-time entry code verification.
// Codes go out over the notification channel; verification runs through the
// shared challenge throttle with the OTP policy.
type Service struct {
	repo     repository.PatientRepository
	throttle *challenge.Service
	notifier notification.Notifier
	logger   *logger.Logger
}

func NewService(repo repository.PatientRepository, throttle *challenge.Service, notifier notification.Notifier, logger *logger.Logger) *Service {
	return &Service{repo: repo, throttle: throttle, notifier: notifier, logger: logger}
}

func (s *Service) Create(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	patient := &model.Patient{
		Name: req.Name,
	}
	if req.Phone != "" {
		if existing, _ := s.repo.GetByPhone(ctx, req.Phone); existing != nil {
			return nil, apperrors.NewBadRequest("phone number already registered", nil)
		}
		patient.Phone = &req.Phone
	}
	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	return patient, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	return s.repo.Get(ctx, id)
}

// RequestEntryCode issues a one-time code for the patient and delivers it
// over the external channel. The throttle enforces the re-issue gap.
func (s *Service) RequestEntryCode(ctx context.Context, phone string) (time.Time, error) {
	patient, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		return time.Time{}, err
	}
	if patient.IsBlacklisted {
		return time.Time{}, apperrors.ErrPatientBlacklist
	}

	secret, expiresAt, err := s.throttle.Issue(ctx, otpKey(phone))
	if err != nil {
		return time.Time{}, err
	}

	msg := fmt.Sprintf("Your clinic entry code is %s. It expires in 5 minutes.", secret)
	if err := s.notifier.Notify(ctx, phone, msg); err != nil {
		// The code is live either way; delivery is best-effort.
		s.logger.ZL.Warn().Err(err).Str("phone", phone).Msg("entry code delivery failed")
	}

	return expiresAt, nil
}

// VerifyEntryCode checks a candidate code for the phone number.
func (s *Service) VerifyEntryCode(ctx context.Context, phone, code string) (challenge.Result, error) {
	return s.throttle.Verify(ctx, otpKey(phone), code)
}

func otpKey(phone string) string {
	return "otp:" + phone
}
