package reservation

import (
	"context"
	"fmt"
	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHoldTTL       = 5 * time.Minute
	defaultSweepInterval = 5 * time.Second
	defaultStoreSlack    = time.Minute
)

type SeatInventory interface {
	GetSeatMap(ctx context.Context, screeningID string) ([]models.SeatView, error)
	Seats(ctx context.Context, screeningID string) ([]models.Seat, error)
	TryTransition(ctx context.Context, screeningID string, seatIDs []string, from, to models.SeatState, token string, expiresAt time.Time) ([]string, error)
}

// Publisher receives every committed transition, in commit order per
// screening. Publish must not block.
type Publisher interface {
	Publish(event models.SeatStatusChangeEvent)
}

// Coordinator is the only writer of the seat inventory. Every operation on a
// screening runs under that screening's lock; different screenings proceed in
// parallel.
type Coordinator struct {
	inventory SeatInventory
	publisher Publisher
	logger    *logger.Logger
	cfg       config.ReservationConfig
	origin    string
	now       func() time.Time
	newToken  func() string

	locks *keyedMutex

	mu          sync.Mutex
	holds       map[string]*models.Hold
	byScreening map[string]map[string]struct{}
	seq         map[string]uint64
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithOrigin tags published events with the id of this instance.
func WithOrigin(origin string) Option {
	return func(c *Coordinator) { c.origin = origin }
}

func WithTokenGenerator(gen func() string) Option {
	return func(c *Coordinator) { c.newToken = gen }
}

func NewCoordinator(inv SeatInventory, pub Publisher, log *logger.Logger, cfg config.ReservationConfig, opts ...Option) *Coordinator {
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = defaultHoldTTL
	}
	if cfg.MaxLifetime < cfg.HoldTTL {
		cfg.MaxLifetime = cfg.HoldTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.StoreSlack <= 0 {
		cfg.StoreSlack = defaultStoreSlack
	}

	c := &Coordinator{
		inventory:   inv,
		publisher:   pub,
		logger:      log,
		cfg:         cfg,
		now:         time.Now,
		newToken:    func() string { return uuid.New().String() },
		locks:       newKeyedMutex(),
		holds:       make(map[string]*models.Hold),
		byScreening: make(map[string]map[string]struct{}),
		seq:         make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SeatMap returns the current seat states after settling expired holds of the
// screening. Expiry is skipped when the screening is busy so reads never wait
// on writers; the sweeper catches up.
func (c *Coordinator) SeatMap(ctx context.Context, screeningID string) ([]models.SeatView, error) {
	if unlock, ok := c.locks.TryLock(screeningID); ok {
		c.expireLocked(ctx, screeningID, c.now())
		unlock()
	}
	return c.inventory.GetSeatMap(ctx, screeningID)
}

// Hold claims every requested seat for a new hold, or none of them.
func (c *Coordinator) Hold(ctx context.Context, screeningID string, seatIDs []string, sessionToken string) (*models.Hold, error) {
	screeningID = strings.TrimSpace(screeningID)
	seats := models.NormalizeSeatIDs(seatIDs)
	if screeningID == "" {
		return nil, invalid("screening_id is required")
	}
	if len(seats) == 0 {
		return nil, invalid("seat_ids must not be empty")
	}

	unlock := c.locks.Lock(screeningID)
	defer unlock()

	now := c.now()
	c.expireLocked(ctx, screeningID, now)

	hold := &models.Hold{
		Token:        c.newToken(),
		ScreeningID:  screeningID,
		SeatIDs:      seats,
		SessionToken: sessionToken,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.cfg.HoldTTL),
	}

	conflicts, err := c.inventory.TryTransition(ctx, screeningID, seats, models.SeatFree, models.SeatHeld, hold.Token, c.storeDeadline(hold.ExpiresAt))
	if err != nil {
		c.logger.Error("HOLD", fmt.Sprintf("Hold on %s failed: %v", screeningID, err))
		return nil, err
	}
	if len(conflicts) > 0 {
		c.logger.Info("HOLD", fmt.Sprintf("Hold on %s rejected, unavailable: %s", screeningID, strings.Join(conflicts, ",")))
		return nil, unavailable(conflicts)
	}

	c.register(hold)
	c.emitLocked(screeningID, seats, models.SeatHeld, now)
	c.logger.LogHold("CREATE", hold.Token, fmt.Sprintf("screening=%s seats=%s expires=%s",
		screeningID, strings.Join(seats, ","), hold.ExpiresAt.Format(time.RFC3339)))

	return hold.Clone(), nil
}

// Get returns a live hold.
func (c *Coordinator) Get(ctx context.Context, token string) (*models.Hold, error) {
	hold, ok := c.lookup(token)
	if !ok {
		return nil, notFound(token)
	}
	if hold.Expired(c.now()) {
		return nil, expired(token)
	}
	return hold, nil
}

// Renew extends a live hold by one TTL, bounded by the maximum lifetime and
// renewal count. A hold that cannot be extended further is returned unchanged.
func (c *Coordinator) Renew(ctx context.Context, token string) (*models.Hold, error) {
	hold, ok := c.lookup(token)
	if !ok {
		return nil, notFound(token)
	}

	unlock := c.locks.Lock(hold.ScreeningID)
	defer unlock()

	if hold, ok = c.lookup(token); !ok {
		return nil, notFound(token)
	}
	now := c.now()
	if hold.Expired(now) {
		c.releaseLocked(ctx, hold, "EXPIRE", now)
		return nil, expired(token)
	}

	next := now.Add(c.cfg.HoldTTL)
	if limit := hold.CreatedAt.Add(c.cfg.MaxLifetime); next.After(limit) {
		next = limit
	}
	if (c.cfg.MaxRenewals > 0 && hold.Renewals >= c.cfg.MaxRenewals) || !next.After(hold.ExpiresAt) {
		c.logger.Debug("HOLD", fmt.Sprintf("Hold %s reached its renewal limit", token))
		return hold, nil
	}

	conflicts, err := c.inventory.TryTransition(ctx, hold.ScreeningID, hold.SeatIDs, models.SeatHeld, models.SeatHeld, token, c.storeDeadline(next))
	if err != nil {
		c.logger.Error("HOLD", fmt.Sprintf("Renew of %s failed: %v", token, err))
		return nil, err
	}
	if len(conflicts) > 0 {
		c.releaseLocked(ctx, hold, "EXPIRE", now)
		return nil, expired(token)
	}

	c.mu.Lock()
	stored := c.holds[token]
	stored.ExpiresAt = next
	stored.Renewals++
	renewed := stored.Clone()
	c.mu.Unlock()

	c.logger.LogHold("RENEW", token, fmt.Sprintf("expires=%s renewals=%d", next.Format(time.RFC3339), renewed.Renewals))
	return renewed, nil
}

// Promote books the seats of a live hold. It is the only way a seat becomes
// booked. The ledger write happens afterwards, outside the screening lock.
func (c *Coordinator) Promote(ctx context.Context, token string) (*models.BookingDraft, error) {
	hold, ok := c.lookup(token)
	if !ok {
		return nil, notFound(token)
	}

	unlock := c.locks.Lock(hold.ScreeningID)
	defer unlock()

	if hold, ok = c.lookup(token); !ok {
		return nil, notFound(token)
	}
	now := c.now()
	if hold.Expired(now) {
		c.releaseLocked(ctx, hold, "EXPIRE", now)
		return nil, expired(token)
	}

	total, err := c.price(ctx, hold)
	if err != nil {
		return nil, err
	}

	conflicts, err := c.inventory.TryTransition(ctx, hold.ScreeningID, hold.SeatIDs, models.SeatHeld, models.SeatBooked, token, time.Time{})
	if err != nil {
		c.logger.Error("HOLD", fmt.Sprintf("Promote of %s failed: %v", token, err))
		return nil, err
	}
	if len(conflicts) > 0 {
		c.releaseLocked(ctx, hold, "EXPIRE", now)
		return nil, expired(token)
	}

	c.forget(token)
	c.emitLocked(hold.ScreeningID, hold.SeatIDs, models.SeatBooked, now)
	c.logger.LogHold("PROMOTE", token, fmt.Sprintf("screening=%s seats=%s total=%.2f",
		hold.ScreeningID, strings.Join(hold.SeatIDs, ","), total))

	return &models.BookingDraft{
		BookingID:    uuid.New().String(),
		HoldToken:    token,
		ScreeningID:  hold.ScreeningID,
		SeatIDs:      hold.SeatIDs,
		SessionToken: hold.SessionToken,
		TotalAmount:  total,
		PromotedAt:   now,
	}, nil
}

// Release frees the seats of a hold. Unknown, expired and already promoted
// tokens are a no-op.
func (c *Coordinator) Release(ctx context.Context, token string) error {
	hold, ok := c.lookup(token)
	if !ok {
		return nil
	}

	unlock := c.locks.Lock(hold.ScreeningID)
	defer unlock()

	if hold, ok = c.lookup(token); !ok {
		return nil
	}
	return c.releaseLocked(ctx, hold, "RELEASE", c.now())
}

// ReleaseBooked returns booked seats to free. Only the ledger's cancellation
// path calls it; seats no longer booked under holdToken are left alone.
func (c *Coordinator) ReleaseBooked(ctx context.Context, screeningID string, seatIDs []string, holdToken string) error {
	seats := models.NormalizeSeatIDs(seatIDs)
	if screeningID == "" || len(seats) == 0 || holdToken == "" {
		return invalid("screening, seats and hold token are required")
	}

	unlock := c.locks.Lock(screeningID)
	defer unlock()

	conflicts, err := c.inventory.TryTransition(ctx, screeningID, seats, models.SeatBooked, models.SeatFree, holdToken, time.Time{})
	if err != nil {
		c.logger.Error("HOLD", fmt.Sprintf("Releasing booked seats of %s failed: %v", screeningID, err))
		return err
	}
	if len(conflicts) > 0 {
		c.logger.Warn("HOLD", fmt.Sprintf("Booked seats %s of %s already released", strings.Join(conflicts, ","), screeningID))
		return nil
	}

	c.emitLocked(screeningID, seats, models.SeatFree, c.now())
	c.logger.LogHold("UNBOOK", holdToken, fmt.Sprintf("screening=%s seats=%s", screeningID, strings.Join(seats, ",")))
	return nil
}

// SweepExpired releases every expired hold and returns how many were released.
func (c *Coordinator) SweepExpired(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	var screenings []string
	for screeningID, tokens := range c.byScreening {
		for token := range tokens {
			if c.holds[token].Expired(now) {
				screenings = append(screenings, screeningID)
				break
			}
		}
	}
	c.mu.Unlock()

	released := 0
	for _, screeningID := range screenings {
		if ctx.Err() != nil {
			break
		}
		unlock := c.locks.Lock(screeningID)
		released += c.expireLocked(ctx, screeningID, now)
		unlock()
	}
	return released
}

// Run sweeps expired holds until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	c.logger.Info("SWEEP", fmt.Sprintf("Hold sweeper started (interval %s, ttl %s)", c.cfg.SweepInterval, c.cfg.HoldTTL))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("SWEEP", "Hold sweeper stopped")
			return
		case <-ticker.C:
			if n := c.SweepExpired(ctx); n > 0 {
				c.logger.Info("SWEEP", fmt.Sprintf("Released %d expired holds", n))
			}
		}
	}
}

// ActiveHolds reports the number of holds not yet promoted, released or swept.
func (c *Coordinator) ActiveHolds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.holds)
}

func (c *Coordinator) expireLocked(ctx context.Context, screeningID string, now time.Time) int {
	c.mu.Lock()
	var due []*models.Hold
	for token := range c.byScreening[screeningID] {
		if hold := c.holds[token]; hold.Expired(now) {
			due = append(due, hold.Clone())
		}
	}
	c.mu.Unlock()

	released := 0
	for _, hold := range due {
		if err := c.releaseLocked(ctx, hold, "EXPIRE", now); err == nil {
			released++
		}
	}
	return released
}

// releaseLocked moves the seats of a hold back to free and drops the hold. On
// an infrastructure error the hold stays registered so the sweeper retries.
func (c *Coordinator) releaseLocked(ctx context.Context, hold *models.Hold, action string, now time.Time) error {
	conflicts, err := c.inventory.TryTransition(ctx, hold.ScreeningID, hold.SeatIDs, models.SeatHeld, models.SeatFree, hold.Token, time.Time{})
	if err != nil {
		c.logger.Error("HOLD", fmt.Sprintf("[%s] %s failed: %v", action, hold.Token, err))
		return err
	}

	freed := hold.SeatIDs
	if len(conflicts) > 0 {
		// Some seats already lapsed in the store; release the ones still ours
		// and announce only seats that really are free now.
		if rest := without(hold.SeatIDs, conflicts); len(rest) > 0 {
			if _, err := c.inventory.TryTransition(ctx, hold.ScreeningID, rest, models.SeatHeld, models.SeatFree, hold.Token, time.Time{}); err != nil {
				c.logger.Error("HOLD", fmt.Sprintf("[%s] %s failed on seats %s: %v", action, hold.Token, strings.Join(rest, ","), err))
				return err
			}
		}
		freed = c.freeAmong(ctx, hold.ScreeningID, hold.SeatIDs)
	}
	c.forget(hold.Token)
	if len(freed) > 0 {
		c.emitLocked(hold.ScreeningID, freed, models.SeatFree, now)
	}

	c.logger.LogHold(action, hold.Token, fmt.Sprintf("screening=%s seats=%s", hold.ScreeningID, strings.Join(freed, ",")))
	return nil
}

func (c *Coordinator) freeAmong(ctx context.Context, screeningID string, seatIDs []string) []string {
	views, err := c.inventory.GetSeatMap(ctx, screeningID)
	if err != nil {
		return nil
	}
	wanted := make(map[string]bool, len(seatIDs))
	for _, id := range seatIDs {
		wanted[id] = true
	}
	var free []string
	for _, v := range views {
		if wanted[v.ID] && v.State == models.SeatFree {
			free = append(free, v.ID)
		}
	}
	return free
}

func (c *Coordinator) price(ctx context.Context, hold *models.Hold) (float64, error) {
	seats, err := c.inventory.Seats(ctx, hold.ScreeningID)
	if err != nil {
		return 0, err
	}
	prices := make(map[string]float64, len(seats))
	for _, s := range seats {
		prices[s.ID] = s.Price
	}
	total := 0.0
	for _, id := range hold.SeatIDs {
		total += prices[id]
	}
	return total, nil
}

func (c *Coordinator) emitLocked(screeningID string, seatIDs []string, state models.SeatState, now time.Time) {
	c.mu.Lock()
	c.seq[screeningID]++
	seq := c.seq[screeningID]
	c.mu.Unlock()

	event, err := models.NewSeatStatusChangeEvent(screeningID, seatIDs, state, seq, now)
	if err != nil {
		c.logger.Warn("HOLD", fmt.Sprintf("Dropping malformed seat event: %v", err))
		return
	}
	event.Origin = c.origin
	if c.publisher != nil {
		c.publisher.Publish(event)
	}
}

func (c *Coordinator) storeDeadline(expiresAt time.Time) time.Time {
	return expiresAt.Add(c.cfg.StoreSlack)
}

func (c *Coordinator) lookup(token string) (*models.Hold, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hold, ok := c.holds[token]
	if !ok {
		return nil, false
	}
	return hold.Clone(), true
}

func (c *Coordinator) register(hold *models.Hold) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holds[hold.Token] = hold.Clone()
	tokens, ok := c.byScreening[hold.ScreeningID]
	if !ok {
		tokens = make(map[string]struct{})
		c.byScreening[hold.ScreeningID] = tokens
	}
	tokens[hold.Token] = struct{}{}
}

func (c *Coordinator) forget(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hold, ok := c.holds[token]
	if !ok {
		return
	}
	delete(c.holds, token)
	if tokens := c.byScreening[hold.ScreeningID]; tokens != nil {
		delete(tokens, token)
		if len(tokens) == 0 {
			delete(c.byScreening, hold.ScreeningID)
		}
	}
}

func without(all, drop []string) []string {
	skip := make(map[string]bool, len(drop))
	for _, id := range drop {
		skip[id] = true
	}
	var out []string
	for _, id := range all {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}
