package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"ms-booking/internal/config"
	"ms-booking/internal/ledger"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	args := m.Called(booking)
	return args.Error(0)
}

func (m *MockStore) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *MockStore) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockStore) ListByScreening(ctx context.Context, screeningID string) ([]models.Booking, error) {
	args := m.Called(screeningID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *MockStore) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

type fakeReleaser struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeReleaser) ReleaseBooked(ctx context.Context, screeningID string, seatIDs []string, holdToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, holdToken)
	return f.err
}

func (f *fakeReleaser) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
	cancelled []string
}

func (n *recordingNotifier) BookingConfirmed(ctx context.Context, booking models.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, booking.BookingID)
	return nil
}

func (n *recordingNotifier) BookingCancelled(ctx context.Context, booking models.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, booking.BookingID)
	return nil
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmed), len(n.cancelled)
}

var testConfig = config.LedgerConfig{
	WriteAttempts:     2,
	InitialBackoff:    time.Millisecond,
	ReconcileInterval: 10 * time.Millisecond,
}

func draft() *models.BookingDraft {
	return &models.BookingDraft{
		BookingID:    "bk-1",
		HoldToken:    "hold-1",
		ScreeningID:  "show-1",
		SeatIDs:      []string{"A1", "A2"},
		SessionToken: "session-1",
		TotalAmount:  500,
		PromotedAt:   time.Date(2026, 11, 1, 18, 0, 0, 0, time.UTC),
	}
}

var payment = models.PaymentInfo{UserID: "u1", Method: models.PaymentCard, Confirmation: "pay_42"}

func TestRecord_PersistsAndNotifies(t *testing.T) {
	store := new(MockStore)
	store.On("CreateBooking", mock.MatchedBy(func(b *models.Booking) bool {
		return b.BookingID == "bk-1" && b.UserID == "u1" && b.Status == models.BookingConfirmed && b.HoldToken == "hold-1"
	})).Return(nil).Once()
	notifier := &recordingNotifier{}
	l := ledger.New(store, &fakeReleaser{}, notifier, logger.NewTestLogger(nil), testConfig)

	id, err := l.Record(context.Background(), draft(), payment)
	require.NoError(t, err)
	assert.Equal(t, "bk-1", id)
	assert.Equal(t, 0, l.Pending())
	store.AssertExpectations(t)

	assert.Eventually(t, func() bool {
		confirmed, _ := notifier.counts()
		return confirmed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRecord_RetriesTransientFailure(t *testing.T) {
	store := new(MockStore)
	store.On("CreateBooking", mock.Anything).Return(errors.New("connection reset")).Once()
	store.On("CreateBooking", mock.Anything).Return(nil).Once()
	l := ledger.New(store, &fakeReleaser{}, &recordingNotifier{}, logger.NewTestLogger(nil), testConfig)

	_, err := l.Record(context.Background(), draft(), payment)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "CreateBooking", 2)
}

func TestRecord_FailureParksBookingUntilReconciled(t *testing.T) {
	store := new(MockStore)
	store.On("CreateBooking", mock.Anything).Return(errors.New("database down")).Times(2)
	l := ledger.New(store, &fakeReleaser{}, &recordingNotifier{}, logger.NewTestLogger(nil), testConfig)
	ctx := context.Background()

	id, err := l.Record(ctx, draft(), payment)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrPersistence))
	assert.Equal(t, "bk-1", id, "the booking id is handed out even when the write failed")
	assert.Equal(t, 1, l.Pending())

	parked, err := l.Get(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, parked.Status)

	store.On("ListByUser", "u1").Return([]models.Booking{}, nil)
	byUser, err := l.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	store.On("CreateBooking", mock.Anything).Return(nil).Once()
	assert.Equal(t, 0, l.Reconcile(ctx))
	assert.Equal(t, 0, l.Pending())
}

func TestRecord_RejectsEmptyDraft(t *testing.T) {
	l := ledger.New(new(MockStore), &fakeReleaser{}, &recordingNotifier{}, logger.NewTestLogger(nil), testConfig)
	_, err := l.Record(context.Background(), nil, payment)
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	store := new(MockStore)
	store.On("GetBookingByID", "nope").Return(nil, sql.ErrNoRows)
	l := ledger.New(store, &fakeReleaser{}, &recordingNotifier{}, logger.NewTestLogger(nil), testConfig)

	_, err := l.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ledger.ErrBookingNotFound))
}

func TestCancel_ReleasesSeatsOnceAndRetriesRelease(t *testing.T) {
	store := new(MockStore)
	confirmed := &models.Booking{BookingID: "bk-1", ScreeningID: "show-1", SeatIDs: []string{"A1"}, HoldToken: "hold-1", Status: models.BookingConfirmed}
	store.On("GetBookingByID", "bk-1").Return(confirmed, nil).Once()
	store.On("MarkCancelled", "bk-1").Return(true, nil).Once()
	releaser := &fakeReleaser{}
	notifier := &recordingNotifier{}
	l := ledger.New(store, releaser, notifier, logger.NewTestLogger(nil), testConfig)
	ctx := context.Background()

	booking, err := l.Cancel(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, booking.Status)
	assert.NotNil(t, booking.CancelledAt)
	assert.Equal(t, 1, releaser.count())
	assert.Eventually(t, func() bool {
		_, cancelled := notifier.counts()
		return cancelled == 1
	}, time.Second, 5*time.Millisecond)

	cancelledAt := time.Now().UTC()
	store.On("GetBookingByID", "bk-1").Return(&models.Booking{
		BookingID: "bk-1", ScreeningID: "show-1", SeatIDs: []string{"A1"}, HoldToken: "hold-1",
		Status: models.BookingCancelled, CancelledAt: &cancelledAt,
	}, nil).Once()

	_, err = l.Cancel(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, 2, releaser.count())
	store.AssertNumberOfCalls(t, "MarkCancelled", 1)
}

func TestCancel_ReleaseFailureIsReported(t *testing.T) {
	store := new(MockStore)
	store.On("GetBookingByID", "bk-1").Return(&models.Booking{BookingID: "bk-1", ScreeningID: "show-1", SeatIDs: []string{"A1"}, Status: models.BookingConfirmed}, nil)
	store.On("MarkCancelled", "bk-1").Return(true, nil)
	l := ledger.New(store, &fakeReleaser{err: errors.New("redis down")}, &recordingNotifier{}, logger.NewTestLogger(nil), testConfig)

	_, err := l.Cancel(context.Background(), "bk-1")
	assert.Error(t, err)
}

func TestCancel_ParkedBookingIsPersistedCancelled(t *testing.T) {
	store := new(MockStore)
	store.On("CreateBooking", mock.Anything).Return(errors.New("database down")).Times(2)
	releaser := &fakeReleaser{}
	l := ledger.New(store, releaser, &recordingNotifier{}, logger.NewTestLogger(nil), testConfig)
	ctx := context.Background()

	_, err := l.Record(ctx, draft(), payment)
	require.True(t, errors.Is(err, ledger.ErrPersistence))

	booking, err := l.Cancel(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, booking.Status)
	assert.Equal(t, 1, releaser.count())

	store.On("CreateBooking", mock.MatchedBy(func(b *models.Booking) bool {
		return b.Status == models.BookingCancelled
	})).Return(nil).Once()
	store.On("MarkCancelled", "bk-1").Return(false, nil).Once()
	assert.Equal(t, 0, l.Reconcile(ctx))
	store.AssertExpectations(t)
}

func TestRunReconciler_DrainsPending(t *testing.T) {
	store := new(MockStore)
	store.On("CreateBooking", mock.Anything).Return(errors.New("database down")).Times(2)
	l := ledger.New(store, &fakeReleaser{}, &recordingNotifier{}, logger.NewTestLogger(nil), testConfig)

	_, err := l.Record(context.Background(), draft(), payment)
	require.Error(t, err)
	store.On("CreateBooking", mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.RunReconciler(ctx)

	assert.Eventually(t, func() bool { return l.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

// memStore behaves like the bun store: inserts of a known id do nothing and
// cancellation only moves confirmed rows. commitThenFail makes the next
// insert land and still report an error.
type memStore struct {
	mu             sync.Mutex
	rows           map[string]models.Booking
	commitThenFail bool
	cancelFailures int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]models.Booking)}
}

func (s *memStore) CreateBooking(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[booking.BookingID]; !exists {
		s.rows[booking.BookingID] = *booking
	}
	if s.commitThenFail {
		s.commitThenFail = false
		return errors.New("i/o timeout")
	}
	return nil
}

func (s *memStore) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (s *memStore) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	return nil, nil
}

func (s *memStore) ListByScreening(ctx context.Context, screeningID string) ([]models.Booking, error) {
	return nil, nil
}

func (s *memStore) MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelFailures > 0 {
		s.cancelFailures--
		return false, errors.New("connection reset")
	}
	b, ok := s.rows[id]
	if !ok || b.Status != models.BookingConfirmed {
		return false, nil
	}
	b.Status = models.BookingCancelled
	b.CancelledAt = &at
	s.rows[id] = b
	return true, nil
}

func (s *memStore) status(id string) models.BookingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Status
}

func TestReconcile_CancelSticksWhenEarlierWriteCommitted(t *testing.T) {
	store := newMemStore()
	store.commitThenFail = true
	releaser := &fakeReleaser{}
	notifier := &recordingNotifier{}
	cfg := testConfig
	cfg.WriteAttempts = 1
	l := ledger.New(store, releaser, notifier, logger.NewTestLogger(nil), cfg)
	ctx := context.Background()

	_, err := l.Record(ctx, draft(), payment)
	require.True(t, errors.Is(err, ledger.ErrPersistence))
	require.Equal(t, models.BookingConfirmed, store.status("bk-1"), "the failed write still landed")

	booking, err := l.Cancel(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, booking.Status)
	assert.Equal(t, 1, releaser.count())

	assert.Equal(t, 0, l.Reconcile(ctx))
	assert.Equal(t, models.BookingCancelled, store.status("bk-1"))

	persisted, err := l.Get(ctx, "bk-1")
	require.NoError(t, err)
	assert.True(t, persisted.Cancelled())
	assert.NotNil(t, persisted.CancelledAt)
}

func TestReconcile_RetriesFailedCancellation(t *testing.T) {
	store := newMemStore()
	store.commitThenFail = true
	cfg := testConfig
	cfg.WriteAttempts = 1
	l := ledger.New(store, &fakeReleaser{}, &recordingNotifier{}, logger.NewTestLogger(nil), cfg)
	ctx := context.Background()

	_, err := l.Record(ctx, draft(), payment)
	require.True(t, errors.Is(err, ledger.ErrPersistence))
	_, err = l.Cancel(ctx, "bk-1")
	require.NoError(t, err)

	store.cancelFailures = 1
	assert.Equal(t, 1, l.Reconcile(ctx), "a failed cancellation stays queued")
	assert.Equal(t, models.BookingConfirmed, store.status("bk-1"))

	parked, err := l.Get(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, parked.Status, "the queued cancellation is what readers see")

	assert.Equal(t, 0, l.Reconcile(ctx))
	assert.Equal(t, models.BookingCancelled, store.status("bk-1"))
}

func TestCancel_ParkedBookingAnnouncesCancellation(t *testing.T) {
	store := newMemStore()
	store.commitThenFail = true
	notifier := &recordingNotifier{}
	cfg := testConfig
	cfg.WriteAttempts = 1
	l := ledger.New(store, &fakeReleaser{}, notifier, logger.NewTestLogger(nil), cfg)
	ctx := context.Background()

	_, err := l.Record(ctx, draft(), payment)
	require.True(t, errors.Is(err, ledger.ErrPersistence))

	_, err = l.Cancel(ctx, "bk-1")
	require.NoError(t, err)
	_, err = l.Cancel(ctx, "bk-1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, cancelled := notifier.counts()
		return cancelled == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, l.Reconcile(ctx))
	assert.Never(t, func() bool {
		confirmed, cancelled := notifier.counts()
		return confirmed > 0 || cancelled > 1
	}, 50*time.Millisecond, 5*time.Millisecond)
}
