package cascade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository"
	"github.com/careslot/booking-api/internal/repository/memory"
	"github.com/careslot/booking-api/internal/service/booking"
	"github.com/careslot/booking-api/pkg/logger"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (n *recordingNotifier) Notify(ctx context.Context, recipient, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("gateway unreachable")
	}
	n.sent = append(n.sent, message)
	return nil
}

type fixture struct {
	store     *memory.Store
	svc       *Service
	lifecycle *booking.Service
	notifier  *recordingNotifier
	patient   *model.Patient
	doctor    *model.Doctor
	treatment *model.TreatmentType
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	log := logger.NewLogger(nil)

	f := &fixture{
		store:    store,
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
	f.lifecycle = booking.NewService(
		store, store.Appointments(), store.Slots(), store.Patients(),
		store.Doctors(), store.Treatments(), store.Schedules(), log, nil,
	)
	f.svc = NewService(store.Appointments(), store.Patients(), f.lifecycle, f.notifier, log, nil).
		WithClock(func() time.Time { return f.now })

	f.doctor = &model.Doctor{Name: "Dr. Haddad", IsActive: true}
	require.NoError(t, store.Doctors().Create(ctx, f.doctor))

	f.treatment = &model.TreatmentType{Name: "Physio session", DurationMinutes: 10, IsActive: true}
	require.NoError(t, store.Treatments().Create(ctx, f.treatment))

	phone := "+15550111"
	f.patient = &model.Patient{Name: "Lena Park", Phone: &phone}
	require.NoError(t, store.Patients().Create(ctx, f.patient))

	return f
}

// bookOn creates a schedule with a single slot on the given date and books
// the fixture's patient into it.
func (f *fixture) bookOn(t *testing.T, date time.Time) *model.Appointment {
	t.Helper()
	ctx := context.Background()

	schedule := &model.Schedule{DoctorID: f.doctor.ID, Date: date, IsAvailable: true}
	require.NoError(t, f.store.Schedules().Create(ctx, schedule))

	slot := &model.TimeSlot{
		ScheduleID:   schedule.ID,
		StartTime:    date.Add(9 * time.Hour),
		EndTime:      date.Add(9*time.Hour + 30*time.Minute),
		TotalMinutes: 30,
	}
	require.NoError(t, f.store.Schedules().CreateSlot(ctx, slot))

	appointment, err := f.lifecycle.Book(ctx, &model.BookAppointmentRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		TreatmentTypeID: f.treatment.ID,
		TimeSlotID:      slot.ID,
	})
	require.NoError(t, err)
	return appointment
}

func (f *fixture) slotRemaining(t *testing.T, appointment *model.Appointment) int {
	t.Helper()
	slot, err := f.store.Slots().Get(context.Background(), appointment.TimeSlotID)
	require.NoError(t, err)
	return slot.RemainingMinutes
}

func TestCascadeCancelsFutureBookingsAndReleasesMinutes(t *testing.T) {
	f := newFixture(t)
	today := f.now.Truncate(24 * time.Hour)

	sameDay := f.bookOn(t, today)
	tomorrow := f.bookOn(t, today.AddDate(0, 0, 1))
	nextWeek := f.bookOn(t, today.AddDate(0, 0, 7))

	result, err := f.svc.Cascade(context.Background(), repository.EntityDoctor, f.doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Cancelled)
	assert.Equal(t, 3, result.Notified)

	for _, appointment := range []*model.Appointment{sameDay, tomorrow, nextWeek} {
		got, err := f.store.Appointments().Get(context.Background(), appointment.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusCancelled, got.Status)
		require.NotNil(t, got.CancelledReason)
		assert.Equal(t, "doctor no longer available", *got.CancelledReason)
		assert.Equal(t, 30, f.slotRemaining(t, appointment))
	}
}

func TestCascadeByTreatmentLeavesOtherTreatmentsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := f.now.Truncate(24 * time.Hour)

	other := &model.TreatmentType{Name: "Massage", DurationMinutes: 20, IsActive: true}
	require.NoError(t, f.store.Treatments().Create(ctx, other))

	affected := f.bookOn(t, today.AddDate(0, 0, 1))

	schedule := &model.Schedule{DoctorID: f.doctor.ID, Date: today.AddDate(0, 0, 2), IsAvailable: true}
	require.NoError(t, f.store.Schedules().Create(ctx, schedule))
	slot := &model.TimeSlot{
		ScheduleID:   schedule.ID,
		StartTime:    schedule.Date.Add(9 * time.Hour),
		EndTime:      schedule.Date.Add(10 * time.Hour),
		TotalMinutes: 60,
	}
	require.NoError(t, f.store.Schedules().CreateSlot(ctx, slot))
	untouched, err := f.lifecycle.Book(ctx, &model.BookAppointmentRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		TreatmentTypeID: other.ID,
		TimeSlotID:      slot.ID,
	})
	require.NoError(t, err)

	result, err := f.svc.Cascade(ctx, repository.EntityTreatment, f.treatment.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Cancelled)

	got, err := f.store.Appointments().Get(ctx, affected.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledReason)
	assert.Equal(t, "treatment no longer offered", *got.CancelledReason)

	got, err = f.store.Appointments().Get(ctx, untouched.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusBooked, got.Status)
}

func TestCascadeSkipsPastAndNonBooked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := f.now.Truncate(24 * time.Hour)

	past := f.bookOn(t, today.AddDate(0, 0, -1))
	checkedIn := f.bookOn(t, today.AddDate(0, 0, 1))
	require.NoError(t, f.lifecycle.ChangeStatus(ctx, checkedIn.ID, model.AppointmentStatusCheckedIn, "", nil))

	result, err := f.svc.Cascade(ctx, repository.EntityDoctor, f.doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Cancelled)

	got, err := f.store.Appointments().Get(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusBooked, got.Status)

	got, err = f.store.Appointments().Get(ctx, checkedIn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCheckedIn, got.Status)
}

func TestCascadeNotificationFailureDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true
	today := f.now.Truncate(24 * time.Hour)

	appointment := f.bookOn(t, today.AddDate(0, 0, 1))

	result, err := f.svc.Cascade(context.Background(), repository.EntityDoctor, f.doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 0, result.Notified)

	got, err := f.store.Appointments().Get(context.Background(), appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, got.Status)
}

func TestCascadeIsRepeatable(t *testing.T) {
	f := newFixture(t)
	today := f.now.Truncate(24 * time.Hour)
	f.bookOn(t, today.AddDate(0, 0, 1))

	result, err := f.svc.Cascade(context.Background(), repository.EntityDoctor, f.doctor.ID)
	require.NoError(t, err)
	require.Equal(t, 1, result.Cancelled)

	// A second run finds nothing still booked.
	result, err = f.svc.Cascade(context.Background(), repository.EntityDoctor, f.doctor.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Cancelled)
	assert.Len(t, f.notifier.sent, 1)
}
