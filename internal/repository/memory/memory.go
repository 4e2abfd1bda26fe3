// Package memory holds an in-memory implementation of the repository
// interfaces. It mirrors the conditional-update semantics of the Postgres
// layer (guarded capacity debits, saturating credits, flag-guarded
// blacklisting) so service-level behavior can be exercised without a
// database. Used by the service test suites.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository"
	apperrors "github.com/careslot/booking-api/pkg/errors"
)

// Store backs every repository with plain maps. Individual operations are
// atomic under mu; WithTx serializes whole transactions under txMu so
// multi-write flows cannot interleave.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	doctors      map[uuid.UUID]*model.Doctor
	treatments   map[uuid.UUID]*model.TreatmentType
	schedules    map[uuid.UUID]*model.Schedule
	slots        map[uuid.UUID]*model.TimeSlot
	patients     map[uuid.UUID]*model.Patient
	blacklists   map[uuid.UUID]*model.Blacklist
	appointments map[uuid.UUID]*model.Appointment
	challenges   map[string]*model.Challenge
	users        map[uuid.UUID]*model.User
}

func NewStore() *Store {
	return &Store{
		doctors:      make(map[uuid.UUID]*model.Doctor),
		treatments:   make(map[uuid.UUID]*model.TreatmentType),
		schedules:    make(map[uuid.UUID]*model.Schedule),
		slots:        make(map[uuid.UUID]*model.TimeSlot),
		patients:     make(map[uuid.UUID]*model.Patient),
		blacklists:   make(map[uuid.UUID]*model.Blacklist),
		appointments: make(map[uuid.UUID]*model.Appointment),
		challenges:   make(map[string]*model.Challenge),
		users:        make(map[uuid.UUID]*model.User),
	}
}

// WithTx serializes transactional flows. Rollback is not simulated; tests
// that need mid-transaction failures inject erroring repository wrappers.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(nil)
}

// Doctors returns the doctor repository view of the store.
func (s *Store) Doctors() repository.DoctorRepository       { return (*doctorRepo)(s) }
func (s *Store) Treatments() repository.TreatmentRepository { return (*treatmentRepo)(s) }
func (s *Store) Schedules() repository.ScheduleRepository   { return (*scheduleRepo)(s) }
func (s *Store) Slots() repository.TimeSlotRepository       { return (*slotRepo)(s) }
func (s *Store) Patients() repository.PatientRepository     { return (*patientRepo)(s) }
func (s *Store) Appointments() repository.AppointmentRepository {
	return (*appointmentRepo)(s)
}
func (s *Store) Challenges() repository.ChallengeRepository { return (*challengeRepo)(s) }
func (s *Store) Users() repository.UserRepository           { return (*userRepo)(s) }

type doctorRepo Store

func (r *doctorRepo) Create(ctx context.Context, doctor *model.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doctor.ID == uuid.Nil {
		doctor.ID = uuid.New()
	}
	cp := *doctor
	r.doctors[doctor.ID] = &cp
	return nil
}

func (r *doctorRepo) Get(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, apperrors.NewNotFound("doctor", nil)
	}
	cp := *d
	return &cp, nil
}

func (r *doctorRepo) Update(ctx context.Context, doctor *model.Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.doctors[doctor.ID]; !ok {
		return apperrors.NewNotFound("doctor", nil)
	}
	cp := *doctor
	r.doctors[doctor.ID] = &cp
	return nil
}

func (r *doctorRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return apperrors.NewNotFound("doctor", nil)
	}
	d.IsActive = active
	return nil
}

func (r *doctorRepo) List(ctx context.Context) ([]*model.Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Doctor, 0, len(r.doctors))
	for _, d := range r.doctors {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

type treatmentRepo Store

func (r *treatmentRepo) Create(ctx context.Context, t *model.TreatmentType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	r.treatments[t.ID] = &cp
	return nil
}

func (r *treatmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.TreatmentType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.treatments[id]
	if !ok {
		return nil, apperrors.NewNotFound("treatment type", nil)
	}
	cp := *t
	return &cp, nil
}

func (r *treatmentRepo) Update(ctx context.Context, t *model.TreatmentType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.treatments[t.ID]; !ok {
		return apperrors.NewNotFound("treatment type", nil)
	}
	cp := *t
	r.treatments[t.ID] = &cp
	return nil
}

func (r *treatmentRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.treatments[id]
	if !ok {
		return apperrors.NewNotFound("treatment type", nil)
	}
	t.IsActive = active
	return nil
}

func (r *treatmentRepo) List(ctx context.Context) ([]*model.TreatmentType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.TreatmentType, 0, len(r.treatments))
	for _, t := range r.treatments {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

type scheduleRepo Store

func (r *scheduleRepo) Create(ctx context.Context, schedule *model.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.DoctorID == schedule.DoctorID && s.Date.Equal(schedule.Date) {
			return apperrors.NewBadRequest("schedule already exists for this doctor and date", nil)
		}
	}
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	cp := *schedule
	r.schedules[schedule.ID] = &cp
	return nil
}

func (r *scheduleRepo) Get(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, apperrors.NewNotFound("schedule", nil)
	}
	cp := *s
	return &cp, nil
}

func (r *scheduleRepo) GetByDoctorDate(ctx context.Context, doctorID uuid.UUID, date time.Time) (*model.Schedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.DoctorID == doctorID && s.Date.Equal(date) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("schedule", nil)
}

func (r *scheduleRepo) SetAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return apperrors.NewNotFound("schedule", nil)
	}
	s.IsAvailable = available
	return nil
}

func (r *scheduleRepo) CreateSlot(ctx context.Context, slot *model.TimeSlot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	if slot.TotalMinutes == 0 {
		slot.TotalMinutes = model.DefaultSlotMinutes
	}
	slot.RemainingMinutes = slot.TotalMinutes
	cp := *slot
	r.slots[slot.ID] = &cp
	return nil
}

func (r *scheduleRepo) ListSlots(ctx context.Context, scheduleID uuid.UUID) ([]*model.TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TimeSlot
	for _, s := range r.slots {
		if s.ScheduleID == scheduleID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type slotRepo Store

func (r *slotRepo) Get(ctx context.Context, id uuid.UUID) (*model.TimeSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, apperrors.NewNotFound("time slot", nil)
	}
	cp := *s
	return &cp, nil
}

// Reserve performs the check-and-debit atomically under the store lock,
// matching the conditional UPDATE of the Postgres ledger.
func (r *slotRepo) Reserve(ctx context.Context, tx *sqlx.Tx, slotID uuid.UUID, minutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok {
		return apperrors.NewNotFound("time slot", nil)
	}
	if s.RemainingMinutes < minutes {
		return apperrors.ErrSlotCapacity
	}
	s.RemainingMinutes -= minutes
	return nil
}

// Release credits back, saturating at the ceiling.
func (r *slotRepo) Release(ctx context.Context, tx *sqlx.Tx, slotID uuid.UUID, minutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok {
		return apperrors.NewNotFound("time slot", nil)
	}
	s.RemainingMinutes += minutes
	if s.RemainingMinutes > s.TotalMinutes {
		s.RemainingMinutes = s.TotalMinutes
	}
	return nil
}

type patientRepo Store

func (r *patientRepo) Create(ctx context.Context, patient *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	cp := *patient
	r.patients[patient.ID] = &cp
	return nil
}

func (r *patientRepo) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, apperrors.NewNotFound("patient", nil)
	}
	cp := *p
	return &cp, nil
}

func (r *patientRepo) GetByPhone(ctx context.Context, phone string) (*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.patients {
		if p.Phone != nil && *p.Phone == phone {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("patient", nil)
}

func (r *patientRepo) Update(ctx context.Context, patient *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.patients[patient.ID]
	if !ok {
		return apperrors.NewNotFound("patient", nil)
	}
	existing.Name = patient.Name
	existing.Phone = patient.Phone
	return nil
}

func (r *patientRepo) IncrementNoShow(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return apperrors.NewNotFound("patient", nil)
	}
	if p.NoShowCount < model.MaxNoShowCount {
		p.NoShowCount++
	}
	return nil
}

func (r *patientRepo) MarkBlacklisted(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok || p.IsBlacklisted {
		return false, nil
	}
	p.IsBlacklisted = true
	return true, nil
}

func (r *patientRepo) CreateBlacklistEntry(ctx context.Context, tx *sqlx.Tx, entry *model.Blacklist) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cp := *entry
	r.blacklists[entry.PatientID] = &cp
	return nil
}

func (r *patientRepo) ListBlacklistCandidates(ctx context.Context) ([]*model.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Patient
	for _, p := range r.patients {
		if p.NoShowCount >= model.MaxNoShowCount && !p.IsBlacklisted {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// BlacklistEntry exposes stored blacklist rows to tests.
func (s *Store) BlacklistEntry(patientID uuid.UUID) *model.Blacklist {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.blacklists[patientID]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

type appointmentRepo Store

func (r *appointmentRepo) Create(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = time.Now()
	cp := *appointment
	r.appointments[appointment.ID] = &cp
	return nil
}

func (r *appointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	cp := *a
	return &cp, nil
}

func (r *appointmentRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Appointment, error) {
	return r.Get(ctx, id)
}

func (r *appointmentRepo) UpdateStatus(ctx context.Context, tx *sqlx.Tx, appointment *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.appointments[appointment.ID]
	if !ok {
		return apperrors.NewNotFound("appointment", nil)
	}
	existing.Status = appointment.Status
	existing.CancelledReason = appointment.CancelledReason
	existing.CancelledBy = appointment.CancelledBy
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *appointmentRepo) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Appointment
	for _, a := range r.appointments {
		if filters != nil {
			if filters.PatientID != uuid.Nil && a.PatientID != filters.PatientID {
				continue
			}
			if filters.DoctorID != uuid.Nil && a.DoctorID != filters.DoctorID {
				continue
			}
			if filters.Status != "" && a.Status != filters.Status {
				continue
			}
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *appointmentRepo) ListElapsedBooked(ctx context.Context, ref time.Time) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Appointment
	for _, a := range r.appointments {
		if a.Status != model.AppointmentStatusBooked {
			continue
		}
		slot, ok := r.slots[a.TimeSlotID]
		if !ok {
			continue
		}
		if !slot.EndTime.After(ref) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *appointmentRepo) ListBookedFuture(ctx context.Context, kind repository.EntityKind, entityID uuid.UUID, from time.Time) ([]*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Appointment
	for _, a := range r.appointments {
		if a.Status != model.AppointmentStatusBooked {
			continue
		}
		if a.AppointmentDate.Before(from) {
			continue
		}
		switch kind {
		case repository.EntityDoctor:
			if a.DoctorID != entityID {
				continue
			}
		case repository.EntityTreatment:
			if a.TreatmentTypeID != entityID {
				continue
			}
		default:
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

type challengeRepo Store

func (r *challengeRepo) GetActive(ctx context.Context, ownerKey string) (*model.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[ownerKey]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *challengeRepo) Replace(ctx context.Context, challenge *model.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if challenge.ID == uuid.Nil {
		challenge.ID = uuid.New()
	}
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}
	cp := *challenge
	r.challenges[challenge.OwnerKey] = &cp
	return nil
}

func (r *challengeRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.challenges {
		if c.ID == id {
			c.Attempts++
			return c.Attempts, nil
		}
	}
	return 0, apperrors.NewNotFound("challenge", nil)
}

func (r *challengeRepo) ResetAttempts(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.challenges {
		if c.ID == id {
			c.Attempts = 0
			c.LockedUntil = nil
			return nil
		}
	}
	return apperrors.NewNotFound("challenge", nil)
}

func (r *challengeRepo) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.challenges {
		if c.ID == id {
			t := usedAt
			c.UsedAt = &t
			return nil
		}
	}
	return apperrors.NewNotFound("challenge", nil)
}

func (r *challengeRepo) SetLock(ctx context.Context, id uuid.UUID, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.challenges {
		if c.ID == id {
			t := until
			c.LockedUntil = &t
			return nil
		}
	}
	return apperrors.NewNotFound("challenge", nil)
}

type userRepo Store

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *userRepo) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NewNotFound("user", nil)
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.NewNotFound("user", nil)
}
