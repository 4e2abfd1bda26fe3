package patient

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careslot/booking-api/internal/model"
	"github.com/careslot/booking-api/internal/repository/memory"
	"github.com/careslot/booking-api/internal/service/challenge"
	apperrors "github.com/careslot/booking-api/pkg/errors"
	"github.com/careslot/booking-api/pkg/logger"
)

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

type captureNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *captureNotifier) Notify(ctx context.Context, recipient, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.messages)
	m := codePattern.FindStringSubmatch(n.messages[len(n.messages)-1])
	require.Len(t, m, 2, "message should carry a 6-digit code")
	return m[1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *Service
	notifier *captureNotifier
	clock    *fakeClock
	store    *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	log := logger.NewLogger(nil)
	clk := &fakeClock{now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	notifier := &captureNotifier{}

	throttle := challenge.NewService(store.Challenges(), challenge.OTPPolicy(), log, nil).WithClock(clk.Now)
	svc := NewService(store.Patients(), throttle, notifier, log)
	return &fixture{svc: svc, notifier: notifier, clock: clk, store: store}
}

func (f *fixture) createPatient(t *testing.T, phone string) *model.Patient {
	t.Helper()
	p, err := f.svc.Create(context.Background(), &model.CreatePatientRequest{
		Name:  "Dana Osei",
		Phone: phone,
	})
	require.NoError(t, err)
	return p
}

func TestCreateRejectsDuplicatePhone(t *testing.T) {
	f := newFixture(t)
	f.createPatient(t, "+15550100001")

	_, err := f.svc.Create(context.Background(), &model.CreatePatientRequest{
		Name:  "Other Person",
		Phone: "+15550100001",
	})
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestEntryCodeRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.createPatient(t, "+15550100001")
	ctx := context.Background()

	expiresAt, err := f.svc.RequestEntryCode(ctx, "+15550100001")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), expiresAt)

	code := f.notifier.lastCode(t)
	res, err := f.svc.VerifyEntryCode(ctx, "+15550100001", code)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusVerified, res.Status)

	// A code is single-use.
	res, err = f.svc.VerifyEntryCode(ctx, "+15550100001", code)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusExpired, res.Status)
}

func TestEntryCodeExpires(t *testing.T) {
	f := newFixture(t)
	f.createPatient(t, "+15550100001")
	ctx := context.Background()

	_, err := f.svc.RequestEntryCode(ctx, "+15550100001")
	require.NoError(t, err)
	code := f.notifier.lastCode(t)

	f.clock.Advance(5 * time.Minute)
	res, err := f.svc.VerifyEntryCode(ctx, "+15550100001", code)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusExpired, res.Status)
}

func TestEntryCodeWrongGuessesExhaustTheCode(t *testing.T) {
	f := newFixture(t)
	f.createPatient(t, "+15550100001")
	ctx := context.Background()

	_, err := f.svc.RequestEntryCode(ctx, "+15550100001")
	require.NoError(t, err)
	code := f.notifier.lastCode(t)

	for i := 4; i >= 0; i-- {
		res, err := f.svc.VerifyEntryCode(ctx, "+15550100001", "000000")
		require.NoError(t, err)
		assert.Equal(t, challenge.StatusWrongSecret, res.Status)
		assert.Equal(t, i, res.Remaining)
	}

	// Budget spent: even the right code is refused until re-issue.
	res, err := f.svc.VerifyEntryCode(ctx, "+15550100001", code)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusExpired, res.Status)
}

func TestEntryCodeReissueGap(t *testing.T) {
	f := newFixture(t)
	f.createPatient(t, "+15550100001")
	ctx := context.Background()

	_, err := f.svc.RequestEntryCode(ctx, "+15550100001")
	require.NoError(t, err)

	_, err = f.svc.RequestEntryCode(ctx, "+15550100001")
	assert.ErrorIs(t, err, apperrors.ErrReissueTooSoon)

	f.clock.Advance(61 * time.Second)
	_, err = f.svc.RequestEntryCode(ctx, "+15550100001")
	require.NoError(t, err)
	assert.Len(t, f.notifier.messages, 2)
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	f := newFixture(t)
	f.createPatient(t, "+15550100001")
	ctx := context.Background()

	_, err := f.svc.RequestEntryCode(ctx, "+15550100001")
	require.NoError(t, err)
	oldCode := f.notifier.lastCode(t)

	f.clock.Advance(2 * time.Minute)
	_, err = f.svc.RequestEntryCode(ctx, "+15550100001")
	require.NoError(t, err)
	newCode := f.notifier.lastCode(t)

	if oldCode != newCode {
		res, err := f.svc.VerifyEntryCode(ctx, "+15550100001", oldCode)
		require.NoError(t, err)
		assert.Equal(t, challenge.StatusWrongSecret, res.Status)
	}
	res, err := f.svc.VerifyEntryCode(ctx, "+15550100001", newCode)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusVerified, res.Status)
}

func TestEntryCodeRefusedForBlacklistedPatient(t *testing.T) {
	f := newFixture(t)
	p := f.createPatient(t, "+15550100001")
	ctx := context.Background()

	_, err := f.store.Patients().MarkBlacklisted(ctx, nil, p.ID)
	require.NoError(t, err)

	_, err = f.svc.RequestEntryCode(ctx, "+15550100001")
	assert.ErrorIs(t, err, apperrors.ErrPatientBlacklist)
	assert.Empty(t, f.notifier.messages)
}

func TestEntryCodeUnknownPhone(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RequestEntryCode(context.Background(), "+15550199999")
	assert.True(t, apperrors.IsNotFound(err))
}
