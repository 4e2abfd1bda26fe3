package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository/memory"
	"github.com/careslot/booking-api/internal/service/booking"
	"github.com/careslot/booking-api/pkg/logger"
)

// recordingNotifier captures deliveries; fail makes every send error so
// tests can assert the sweep shrugs it off.
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
	n.sent = append(n.sent, recipient)
	return nil
}

type fixture struct {
	store    *memory.Store
	svc      *Service
	notifier *recordingNotifier
	patient  *model.Patient
	doctor   *model.Doctor
	short    *model.TreatmentType
	slot     *model.TimeSlot
	slotEnd  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	log := logger.NewLogger(nil)

	lifecycle := booking.NewService(
		store, store.Appointments(), store.Slots(), store.Patients(),
		store.Doctors(), store.Treatments(), store.Schedules(), log, nil,
	)
	notifier := &recordingNotifier{}
	f := &fixture{
		store:    store,
		svc:      NewService(store, store.Appointments(), store.Patients(), lifecycle, notifier, log, nil),
		notifier: notifier,
	}

	f.doctor = &model.Doctor{Name: "Dr. Singh", IsActive: true}
	require.NoError(t, store.Doctors().Create(ctx, f.doctor))

	f.short = &model.TreatmentType{Name: "Quick check", DurationMinutes: 5, IsActive: true}
	require.NoError(t, store.Treatments().Create(ctx, f.short))

	schedule := &model.Schedule{
		DoctorID:    f.doctor.ID,
		Date:        time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		IsAvailable: true,
	}
	require.NoError(t, store.Schedules().Create(ctx, schedule))

	f.slotEnd = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	f.slot = &model.TimeSlot{
		ScheduleID:   schedule.ID,
		StartTime:    f.slotEnd.Add(-30 * time.Minute),
		EndTime:      f.slotEnd,
		TotalMinutes: 30,
	}
	require.NoError(t, store.Schedules().CreateSlot(ctx, f.slot))

	phone := "+15550100"
	f.patient = &model.Patient{Name: "Kofi Adjei", Phone: &phone}
	require.NoError(t, store.Patients().Create(ctx, f.patient))

	return f
}

func (f *fixture) book(t *testing.T) *model.Appointment {
	t.Helper()
	// Booking is done through the same lifecycle the sweep drives.
	svc := booking.NewService(
		f.store, f.store.Appointments(), f.store.Slots(), f.store.Patients(),
		f.store.Doctors(), f.store.Treatments(), f.store.Schedules(),
		logger.NewLogger(nil), nil,
	)
	appointment, err := svc.Book(context.Background(), &model.BookAppointmentRequest{
		PatientID:       f.patient.ID,
		DoctorID:        f.doctor.ID,
		TreatmentTypeID: f.short.ID,
		TimeSlotID:      f.slot.ID,
	})
	require.NoError(t, err)
	return appointment
}

func TestSweepConvertsElapsedBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appointment := f.book(t)

	// Before the slot ends nothing is elapsed.
	report, err := f.svc.Run(ctx, f.slotEnd.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, report.NoShows)

	report, err = f.svc.Run(ctx, f.slotEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, report.NoShows)
	assert.Empty(t, report.Errors)

	got, err := f.store.Appointments().Get(ctx, appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusNoShow, got.Status)

	patient, err := f.store.Patients().Get(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, patient.NoShowCount)

	// No minutes come back from a no-show.
	slot, err := f.store.Slots().Get(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, slot.RemainingMinutes)
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t)

	report, err := f.svc.Run(ctx, f.slotEnd)
	require.NoError(t, err)
	require.Equal(t, 1, report.NoShows)

	for i := 0; i < 3; i++ {
		report, err = f.svc.Run(ctx, f.slotEnd.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, report.NoShows)
		assert.Empty(t, report.Errors)
	}

	patient, err := f.store.Patients().Get(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, patient.NoShowCount)
}

func TestSweepSkipsCheckedInAndCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	checkedIn := f.book(t)
	cancelled := f.book(t)

	lifecycle := booking.NewService(
		f.store, f.store.Appointments(), f.store.Slots(), f.store.Patients(),
		f.store.Doctors(), f.store.Treatments(), f.store.Schedules(),
		logger.NewLogger(nil), nil,
	)
	require.NoError(t, lifecycle.ChangeStatus(ctx, checkedIn.ID, model.AppointmentStatusCheckedIn, "", nil))
	require.NoError(t, lifecycle.ChangeStatus(ctx, cancelled.ID, model.AppointmentStatusCancelled, "patient called", nil))

	report, err := f.svc.Run(ctx, f.slotEnd.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.NoShows)
}

func TestSweepEscalatesAtCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < model.MaxNoShowCount; i++ {
		f.book(t)
		report, err := f.svc.Run(ctx, f.slotEnd.Add(time.Hour))
		require.NoError(t, err)
		require.Equal(t, 1, report.NoShows)

		patient, err := f.store.Patients().Get(ctx, f.patient.ID)
		require.NoError(t, err)
		if i < model.MaxNoShowCount-1 {
			assert.False(t, patient.IsBlacklisted, "escalated before the cap at %d no-shows", i+1)
			assert.Equal(t, 0, report.Blacklisted)
		} else {
			assert.True(t, patient.IsBlacklisted)
			assert.Equal(t, 1, report.Blacklisted)
		}
	}

	entry := f.store.BlacklistEntry(f.patient.ID)
	require.NotNil(t, entry)
	assert.Equal(t, blacklistReason, entry.Reason)
	assert.Nil(t, entry.CreatedBy)
	assert.Equal(t, []string{*f.patient.Phone}, f.notifier.sent)
}

func TestEscalationHappensOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < model.MaxNoShowCount; i++ {
		f.book(t)
		_, err := f.svc.Run(ctx, f.slotEnd.Add(time.Hour))
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		report, err := f.svc.Run(ctx, f.slotEnd.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, report.Blacklisted)
	}
	assert.Len(t, f.notifier.sent, 1)
}

func TestNotifierFailureDoesNotBlockEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.fail = true

	for i := 0; i < model.MaxNoShowCount; i++ {
		f.book(t)
		_, err := f.svc.Run(ctx, f.slotEnd.Add(time.Hour))
		require.NoError(t, err)
	}

	patient, err := f.store.Patients().Get(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.True(t, patient.IsBlacklisted)
}
