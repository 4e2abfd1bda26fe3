package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careslot/booking-api/internal/model"
)

// EntityKind selects the target of a deactivation cascade.
type EntityKind string

const (
	EntityDoctor    EntityKind = "doctor"
	EntityTreatment EntityKind = "treatment"
)

// TxRunner wraps a function in a single all-or-nothing transaction. Methods
// taking *sqlx.Tx participate in the caller's transaction; a nil tx means
// autocommit.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// All repository interfaces in one file
type (
	DoctorRepository interface {
		Create(ctx context.Context, doctor *model.Doctor) error
		Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		Update(ctx context.Context, doctor *model.Doctor) error
		SetActive(ctx context.Context, id uuid.UUID, active bool) error
		List(ctx context.Context) ([]*model.Doctor, error)
	}

	TreatmentRepository interface {
		Create(ctx context.Context, treatment *model.TreatmentType) error
		Get(ctx context.Context, id uuid.UUID) (*model.TreatmentType, error)
		Update(ctx context.Context, treatment *model.TreatmentType) error
		SetActive(ctx context.Context, id uuid.UUID, active bool) error
		List(ctx context.Context) ([]*model.TreatmentType, error)
	}

	ScheduleRepository interface {
		Create(ctx context.Context, schedule *model.Schedule) error
		Get(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
		GetByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.Schedule, error)
		SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
		CreateSlot(ctx context.Context, slot *model.TimeSlot) error
		ListSlots(ctx context.Context, scheduleID uuid.UUID) ([]*model.TimeSlot, error)
	}

	// TimeSlotRepository is the capacity ledger. Reserve and Release are
	// single atomic conditional updates against the slot row; no two
	// concurrent reservations may jointly overdraw a slot.
	TimeSlotRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.TimeSlot, error)
		// Reserve debits minutes if and only if remaining capacity covers
		// them. Returns ErrSlotCapacity when it does not, ErrMissing when
		// the slot does not exist.
		Reserve(ctx context.Context, tx *sqlx.Tx, slotID uuid.UUID, minutes int) error
		// Release credits minutes back, saturating at total_minutes. The
		// lifecycle owns calling it at most once per reservation.
		Release(ctx context.Context, tx *sqlx.Tx, slotID uuid.UUID, minutes int) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		GetByPhone(ctx context.Context, phone string) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		// IncrementNoShow bumps the counter, saturating at MaxNoShowCount.
		IncrementNoShow(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
		// MarkBlacklisted flips the flag, guarded: returns false when the
		// patient was already blacklisted (or missing), so re-runs no-op.
		MarkBlacklisted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error)
		CreateBlacklistEntry(ctx context.Context, tx *sqlx.Tx, entry *model.Blacklist) error
		// ListBlacklistCandidates returns patients at the no-show cap that
		// are not yet blacklisted.
		ListBlacklistCandidates(ctx context.Context) ([]*model.Patient, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// GetForUpdate locks the appointment row for the duration of tx,
		// serializing concurrent status transitions.
		GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Appointment, error)
		UpdateStatus(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// ListElapsedBooked returns appointments still booked whose slot
		// window ended at or before ref.
		ListElapsedBooked(ctx context.Context, ref time.Time) ([]*model.Appointment, error)
		// ListBookedFuture returns booked appointments referencing the given
		// doctor or treatment with a schedule date at or after from.
		ListBookedFuture(ctx context.Context, kind EntityKind, entityID uuid.UUID, from time.Time) ([]*model.Appointment, error)
	}

	ChallengeRepository interface {
		// GetActive returns the current row for an owner key, nil when none.
		GetActive(ctx context.Context, ownerKey string) (*model.Challenge, error)
		// Replace installs a fresh challenge row for the owner key,
		// superseding any previous one.
		Replace(ctx context.Context, challenge *model.Challenge) error
		// IncrementAttempts bumps the counter atomically and returns the
		// post-increment value.
		IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
		ResetAttempts(ctx context.Context, id uuid.UUID) error
		MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
		SetLock(ctx context.Context, id uuid.UUID, until time.Time) error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}
)
