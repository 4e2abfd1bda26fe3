package booking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository/memory"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
)

type fixture struct {
	store     *memory.Store
	svc       *Service
	patient   *model.Patient
	doctor    *model.Doctor
	treatment *model.TreatmentType
	schedule  *model.Schedule
	slot      *model.TimeSlot
}

// newFixture seeds an active doctor with one schedule and one 30-minute
// slot, a 30-minute treatment and one patient.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	f := &fixture{store: store}
	f.svc = NewService(
		store, store.Appointments(), store.Slots(), store.Patients(),
		store.Doctors(), store.Treatments(), store.Schedules(),
		logger.NewLogger(nil), nil,
	)

	f.doctor = &model.Doctor{Name: "Dr. Osei", IsActive: true}
	require.NoError(t, store.Doctors().Create(ctx, f.doctor))

	f.treatment = &model.TreatmentType{Name: "Consultation", DurationMinutes: 30, IsActive: true}
	require.NoError(t, store.Treatments().Create(ctx, f.treatment))

	f.schedule = &model.Schedule{
		DoctorID:    f.doctor.ID,
		Date:        time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		IsAvailable: true,
	}
	require.NoError(t, store.Schedules().Create(ctx, f.schedule))

	f.slot = &model.TimeSlot{
		ScheduleID:   f.schedule.ID,
		StartTime:    time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		TotalMinutes: 30,
	}
	require.NoError(t, store.Schedules().CreateSlot(ctx, f.slot))

	f.patient = &model.Patient{Name: "Ama Mensah"}
	require.NoError(t, store.Patients().Create(ctx, f.patient))

	return f
}

func (f *fixture) book(t *testing.T) *model.Appointment {
	t.Helper()
	appointment, err := f.svc.Book(context.Background(), &model.BookAppointmentRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		TreatmentTypeID: f.treatment.ID,
		TimeSlotID:      f.slot.ID,
	})
	require.NoError(t, err)
	return appointment
}

func (f *fixture) remaining(t *testing.T) int {
	t.Helper()
	slot, err := f.store.Slots().Get(context.Background(), f.slot.ID)
	require.NoError(t, err)
	return slot.RemainingMinutes
}

func TestBookDebitsSlotAndSecondBookingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment := f.book(t)
	assert.Equal(t, model.AppointmentStatusBooked, appointment.Status)
	assert.Equal(t, 0, f.remaining(t))

	// The slot is spent; another full-length booking cannot fit.
	_, err := f.svc.Book(ctx, &model.BookAppointmentRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		TreatmentTypeID: f.treatment.ID,
		TimeSlotID:      f.slot.ID,
	})
	assert.True(t, apperrors.IsInsufficientCapacity(err))

	// Cancelling restores the full capacity.
	require.NoError(t, f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusCancelled, "changed plans", nil))
	assert.Equal(t, 30, f.remaining(t))
}

func TestBookFailureCreatesNoRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t)
	_, err := f.svc.Book(ctx, &model.BookAppointmentRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		TreatmentTypeID: f.treatment.ID,
		TimeSlotID:      f.slot.ID,
	})
	require.Error(t, err)

	appointments, err := f.store.Appointments().List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, appointments, 1)
}

func TestBookRejectsBlacklistedPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Patients().MarkBlacklisted(ctx, nil, f.patient.ID)
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, &model.BookAppointmentRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		TreatmentTypeID: f.treatment.ID,
		TimeSlotID:      f.slot.ID,
	})
	assert.ErrorIs(t, err, apperrors.ErrPatientBlacklist)
	assert.Equal(t, 30, f.remaining(t))
}

func TestBookRejectsInactiveDoctorAndTreatment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Doctors().SetActive(ctx, f.doctor.ID, false))
	_, err := f.svc.Book(ctx, &model.BookAppointmentRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		TreatmentTypeID: f.treatment.ID,
		TimeSlotID:      f.slot.ID,
	})
	require.Error(t, err)

	require.NoError(t, f.store.Doctors().SetActive(ctx, f.doctor.ID, true))
	require.NoError(t, f.store.Treatments().SetActive(ctx, f.treatment.ID, false))
	f.svc.InvalidateTreatment(f.treatment.ID)
	_, err = f.svc.Book(ctx, &model.BookAppointmentRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		TreatmentTypeID: f.treatment.ID,
		TimeSlotID:      f.slot.ID,
	})
	require.Error(t, err)
	assert.Equal(t, 30, f.remaining(t))
}

func TestConcurrentBookingsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 10-minute treatment against a 30-minute slot: at most 3 of the 20
	// concurrent bookings can succeed.
	short := &model.TreatmentType{Name: "Quick check", DurationMinutes: 10, IsActive: true}
	require.NoError(t, f.store.Treatments().Create(ctx, short))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(ctx, &model.BookAppointmentRequest{
				PatientID:       f.patient.ID,
				DoctorID:        f.doctor.ID,
				TreatmentTypeID: short.ID,
				TimeSlotID:      f.slot.ID,
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !apperrors.IsInsufficientCapacity(err) {
				t.Errorf("unexpected booking error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 0, f.remaining(t))
}

func TestTransitionTable(t *testing.T) {
	legal := []struct {
		from, to model.AppointmentStatus
	}{
		{model.AppointmentStatusBooked, model.AppointmentStatusCheckedIn},
		{model.AppointmentStatusBooked, model.AppointmentStatusCancelled},
		{model.AppointmentStatusBooked, model.AppointmentStatusNoShow},
		{model.AppointmentStatusCheckedIn, model.AppointmentStatusCompleted},
		{model.AppointmentStatusCheckedIn, model.AppointmentStatusCancelled},
		{model.AppointmentStatusNoShow, model.AppointmentStatusCancelled},
	}
	for _, tc := range legal {
		assert.True(t, transitions[tc.from][tc.to], "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct {
		from, to model.AppointmentStatus
	}{
		{model.AppointmentStatusCheckedIn, model.AppointmentStatusBooked},
		{model.AppointmentStatusCompleted, model.AppointmentStatusCancelled},
		{model.AppointmentStatusCancelled, model.AppointmentStatusBooked},
		{model.AppointmentStatusCancelled, model.AppointmentStatusCancelled},
		{model.AppointmentStatusNoShow, model.AppointmentStatusBooked},
	}
	for _, tc := range illegal {
		assert.False(t, transitions[tc.from][tc.to], "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestTerminalStatesRejectAllMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment := f.book(t)
	require.NoError(t, f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusCheckedIn, "", nil))
	require.NoError(t, f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusCompleted, "", nil))

	for _, target := range []model.AppointmentStatus{
		model.AppointmentStatusBooked,
		model.AppointmentStatusCheckedIn,
		model.AppointmentStatusCompleted,
		model.AppointmentStatusNoShow,
		model.AppointmentStatusCancelled,
	} {
		err := f.svc.ChangeStatus(ctx, appointment.ID, target, "", nil)
		assert.True(t, apperrors.IsInvalidTransition(err), "completed -> %s must be rejected", target)
	}
}

func TestSameStateRequestIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment := f.book(t)
	err := f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusBooked, "", nil)
	assert.True(t, apperrors.IsInvalidTransition(err))
}

func TestCancelFromCheckedInReleasesCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment := f.book(t)
	require.NoError(t, f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusCheckedIn, "", nil))
	require.Equal(t, 0, f.remaining(t))

	require.NoError(t, f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusCancelled, "left early", nil))
	assert.Equal(t, 30, f.remaining(t))
}

func TestCancelFromNoShowReleasesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment := f.book(t)
	require.NoError(t, f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusNoShow, "", nil))
	require.Equal(t, 0, f.remaining(t))

	// The minutes were consumed by policy; cancelling afterwards is
	// bookkeeping only.
	require.NoError(t, f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusCancelled, "record fix", nil))
	assert.Equal(t, 0, f.remaining(t))
}

func TestNoShowIncrementsCounterOncePerAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment := f.book(t)
	require.NoError(t, f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusNoShow, "", nil))

	patient, err := f.store.Patients().Get(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, patient.NoShowCount)

	// The transition cannot be replayed, so neither can the increment.
	err = f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusNoShow, "", nil)
	require.True(t, apperrors.IsInvalidTransition(err))

	patient, err = f.store.Patients().Get(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, patient.NoShowCount)
}

func TestNoShowCountSaturates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Give the slot room for several bookings of a short treatment.
	short := &model.TreatmentType{Name: "Quick check", DurationMinutes: 5, IsActive: true}
	require.NoError(t, f.store.Treatments().Create(ctx, short))

	for i := 0; i < 5; i++ {
		appointment, err := f.svc.Book(ctx, &model.BookAppointmentRequest{
			PatientID:       f.patient.ID,
			DoctorID:        f.doctor.ID,
			TreatmentTypeID: short.ID,
			TimeSlotID:      f.slot.ID,
		})
		require.NoError(t, err)
		require.NoError(t, f.svc.ChangeStatus(ctx, appointment.ID, model.AppointmentStatusNoShow, "", nil))
	}

	patient, err := f.store.Patients().Get(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MaxNoShowCount, patient.NoShowCount)
}

func TestChangeStatusUnknownAppointment(t *testing.T) {
	f := newFixture(t)
	err := f.svc.ChangeStatus(context.Background(), uuid.New(), model.AppointmentStatusCancelled, "", nil)
	assert.True(t, apperrors.IsNotFound(err))
}
