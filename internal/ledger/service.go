package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrPersistence means a booking was made (its seats are booked) but the
	// ledger write has not succeeded yet. The booking is queued for
	// reconciliation.
	ErrPersistence     = errors.New("booking persistence failed")
	ErrBookingNotFound = errors.New("booking not found")
)

type Store interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]models.Booking, error)
	ListByScreening(ctx context.Context, screeningID string) ([]models.Booking, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) (bool, error)
}

// SeatReleaser returns booked seats to free; the reservation coordinator.
type SeatReleaser interface {
	ReleaseBooked(ctx context.Context, screeningID string, seatIDs []string, holdToken string) error
}

type Notifier interface {
	BookingConfirmed(ctx context.Context, booking models.Booking) error
	BookingCancelled(ctx context.Context, booking models.Booking) error
}

type Ledger struct {
	store    Store
	releaser SeatReleaser
	notifier Notifier
	logger   *logger.Logger
	cfg      config.LedgerConfig
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*models.Booking
}

func New(store Store, releaser SeatReleaser, notifier Notifier, log *logger.Logger, cfg config.LedgerConfig) *Ledger {
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Second
	}
	return &Ledger{
		store:    store,
		releaser: releaser,
		notifier: notifier,
		logger:   log,
		cfg:      cfg,
		now:      time.Now,
		pending:  make(map[string]*models.Booking),
	}
}

// Record persists the booking for a promoted hold. The seats are already
// booked, so a failed write never undoes them: the booking id is returned
// together with ErrPersistence and the write is retried in the background.
func (l *Ledger) Record(ctx context.Context, draft *models.BookingDraft, payment models.PaymentInfo) (string, error) {
	if draft == nil || draft.BookingID == "" {
		return "", errors.New("booking draft is required")
	}

	booking := &models.Booking{
		BookingID:     draft.BookingID,
		UserID:        payment.UserID,
		ScreeningID:   draft.ScreeningID,
		SeatIDs:       append([]string(nil), draft.SeatIDs...),
		TotalAmount:   draft.TotalAmount,
		PaymentMethod: payment.Method,
		PaymentRef:    payment.Confirmation,
		HoldToken:     draft.HoldToken,
		Status:        models.BookingConfirmed,
		CreatedAt:     draft.PromotedAt.UTC(),
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = l.now().UTC()
	}

	if err := l.write(ctx, booking); err != nil {
		l.park(booking)
		l.logger.Error("PERSISTENCE", fmt.Sprintf("Booking %s (screening=%s seats=%s user=%s) not persisted, queued for reconciliation: %v",
			booking.BookingID, booking.ScreeningID, strings.Join(booking.SeatIDs, ","), booking.UserID, err))
		return booking.BookingID, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	l.logger.LogBooking("CONFIRM", booking.BookingID, fmt.Sprintf("screening=%s seats=%s total=%.2f",
		booking.ScreeningID, strings.Join(booking.SeatIDs, ","), booking.TotalAmount))
	l.notify(*booking)
	return booking.BookingID, nil
}

// Get returns a booking. One still waiting for reconciliation is returned as
// the ledger knows it, whatever the store holds so far.
func (l *Ledger) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	if parked, ok := l.parked(bookingID); ok {
		return parked, nil
	}
	booking, err := l.store.GetBookingByID(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBookingNotFound, bookingID)
	}
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings, err := l.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.withParked(bookings, func(b *models.Booking) bool { return b.UserID == userID }), nil
}

func (l *Ledger) ListByScreening(ctx context.Context, screeningID string) ([]models.Booking, error) {
	bookings, err := l.store.ListByScreening(ctx, screeningID)
	if err != nil {
		return nil, err
	}
	return l.withParked(bookings, func(b *models.Booking) bool { return b.ScreeningID == screeningID }), nil
}

// Cancel moves a confirmed booking to cancelled and returns its seats to free.
// Cancelling an already cancelled booking only retries the seat release.
func (l *Ledger) Cancel(ctx context.Context, bookingID string) (*models.Booking, error) {
	if booking, changed, ok := l.cancelParked(bookingID); ok {
		if err := l.releaseSeats(ctx, booking); err != nil {
			return nil, err
		}
		if changed {
			l.logger.LogBooking("CANCEL", bookingID, fmt.Sprintf("seats %s released, record pending", strings.Join(booking.SeatIDs, ",")))
			l.notify(*booking)
		}
		return booking, nil
	}

	booking, err := l.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	changed := false
	if booking.Status == models.BookingConfirmed {
		at := l.now().UTC()
		if changed, err = l.store.MarkCancelled(ctx, bookingID, at); err != nil {
			return nil, fmt.Errorf("cancel booking %s: %w", bookingID, err)
		}
		booking.Status = models.BookingCancelled
		booking.CancelledAt = &at
	}

	if err := l.releaseSeats(ctx, booking); err != nil {
		return nil, err
	}
	if changed {
		l.logger.LogBooking("CANCEL", bookingID, fmt.Sprintf("seats %s released", strings.Join(booking.SeatIDs, ",")))
		l.notify(*booking)
	}
	return booking, nil
}

// Pending reports how many bookings wait for reconciliation.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Reconcile retries every parked booking once and returns how many are
// still pending.
func (l *Ledger) Reconcile(ctx context.Context) int {
	l.mu.Lock()
	batch := make([]*models.Booking, 0, len(l.pending))
	for _, b := range l.pending {
		c := *b
		batch = append(batch, &c)
	}
	l.mu.Unlock()

	for _, booking := range batch {
		if err := l.store.CreateBooking(ctx, booking); err != nil {
			l.logger.Error("PERSISTENCE", fmt.Sprintf("Reconciliation of booking %s failed: %v", booking.BookingID, err))
			continue
		}
		l.mu.Lock()
		current, ok := l.pending[booking.BookingID]
		delete(l.pending, booking.BookingID)
		l.mu.Unlock()

		if ok && current.Cancelled() {
			// The row may predate the cancellation: a write can commit and
			// still report failure, leaving the insert above a no-op.
			if _, err := l.store.MarkCancelled(ctx, booking.BookingID, cancelledAt(current, l.now())); err != nil {
				l.logger.Error("PERSISTENCE", fmt.Sprintf("Cancellation of booking %s not persisted: %v", booking.BookingID, err))
				l.park(current)
				continue
			}
		}
		l.logger.Info("PERSISTENCE", fmt.Sprintf("Booking %s reconciled", booking.BookingID))
		if ok && current.Status == models.BookingConfirmed {
			l.notify(*current)
		}
	}
	return l.Pending()
}

// RunReconciler retries parked bookings until ctx is done.
func (l *Ledger) RunReconciler(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.ReconcileInterval)
	defer ticker.Stop()

	l.logger.Info("LEDGER", fmt.Sprintf("Reconciler started (interval %s)", l.cfg.ReconcileInterval))
	for {
		select {
		case <-ctx.Done():
			if n := l.Pending(); n > 0 {
				l.logger.Error("PERSISTENCE", fmt.Sprintf("Shutting down with %d unreconciled bookings", n))
			}
			return
		case <-ticker.C:
			if l.Pending() > 0 {
				l.Reconcile(ctx)
			}
		}
	}
}

func (l *Ledger) write(ctx context.Context, booking *models.Booking) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = l.cfg.InitialBackoff
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := l.store.CreateBooking(ctx, booking)
		if err != nil && attempt < l.cfg.WriteAttempts {
			l.logger.Warn("LEDGER", fmt.Sprintf("Write of booking %s failed (attempt %d/%d): %v",
				booking.BookingID, attempt, l.cfg.WriteAttempts, err))
		}
		return err
	}

	retries := uint64(l.cfg.WriteAttempts - 1)
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
}

func (l *Ledger) releaseSeats(ctx context.Context, booking *models.Booking) error {
	if err := l.releaser.ReleaseBooked(ctx, booking.ScreeningID, booking.SeatIDs, booking.HoldToken); err != nil {
		l.logger.Error("LEDGER", fmt.Sprintf("Booking %s cancelled but seats not released: %v", booking.BookingID, err))
		return fmt.Errorf("release seats of booking %s: %w", booking.BookingID, err)
	}
	return nil
}

// notify announces the booking's current status without delaying the caller.
func (l *Ledger) notify(booking models.Booking) {
	if l.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var err error
		if booking.Cancelled() {
			err = l.notifier.BookingCancelled(ctx, booking)
		} else {
			err = l.notifier.BookingConfirmed(ctx, booking)
		}
		if err != nil {
			l.logger.Warn("LEDGER", fmt.Sprintf("Notification for booking %s failed: %v", booking.BookingID, err))
		}
	}()
}

func (l *Ledger) park(booking *models.Booking) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := *booking
	l.pending[booking.BookingID] = &c
}

func (l *Ledger) parked(bookingID string) (*models.Booking, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.pending[bookingID]
	if !ok {
		return nil, false
	}
	c := *b
	return &c, true
}

// cancelParked cancels a booking still waiting for reconciliation. changed
// reports whether this call did the cancelling.
func (l *Ledger) cancelParked(bookingID string) (booking *models.Booking, changed, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.pending[bookingID]
	if !ok {
		return nil, false, false
	}
	if b.Status == models.BookingConfirmed {
		at := l.now().UTC()
		b.Status = models.BookingCancelled
		b.CancelledAt = &at
		changed = true
	}
	c := *b
	return &c, changed, true
}

func cancelledAt(b *models.Booking, fallback time.Time) time.Time {
	if b.CancelledAt != nil {
		return *b.CancelledAt
	}
	return fallback.UTC()
}

func (l *Ledger) withParked(bookings []models.Booking, match func(*models.Booking) bool) []models.Booking {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]bool, len(bookings))
	for i := range bookings {
		if b, ok := l.pending[bookings[i].BookingID]; ok {
			bookings[i] = *b
		}
		seen[bookings[i].BookingID] = true
	}
	for id, b := range l.pending {
		if !seen[id] && match(b) {
			bookings = append(bookings, *b)
		}
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings
}
