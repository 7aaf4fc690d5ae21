package seatlock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/seatsurge/seatsurge/internal/domain"
	"github.com/seatsurge/seatsurge/internal/observability"
)

// SeatStore is the per-seat read/update surface the lock manager mutates
// through. Single-key reads and writes are atomic in the backing store;
// the manager's discipline is read, validate, write back.
type SeatStore interface {
	Get(ctx context.Context, eventID, seatID int64) (*domain.SeatStatus, error)
	Update(ctx context.Context, seat domain.SeatStatus) error
	ListHeldByUser(ctx context.Context, eventID, userID int64) ([]domain.SeatStatus, error)
}

// HoldMarkers manages the external TTL keys whose native expiry releases
// temporary holds.
type HoldMarkers interface {
	SetHoldMarker(ctx context.Context, eventID, seatID int64, ttl time.Duration) error
	RemoveHoldMarker(ctx context.Context, eventID, seatID int64) (bool, error)
}

// EventPublisher is notified of every seat-state transition. Failures are
// logged and swallowed, never propagated.
type EventPublisher interface {
	PublishSeatUpdate(ctx context.Context, seat domain.SeatStatus) error
}

// Manager promotes temporary seat holds to durable locks and reverts them,
// with ownership and expiry validation. Every public operation returns a
// result value; no fault escapes the boundary.
type Manager struct {
	seats     SeatStore
	markers   HoldMarkers
	publisher EventPublisher
	logger    observability.Logger
	holdTTL   time.Duration
	now       func() time.Time
}

func NewManager(seats SeatStore, markers HoldMarkers, publisher EventPublisher, holdTTL time.Duration, logger observability.Logger) *Manager {
	return &Manager{
		seats:     seats,
		markers:   markers,
		publisher: publisher,
		logger:    logger,
		holdTTL:   holdTTL,
		now:       time.Now,
	}
}

// LockSeatPermanently promotes the user's temporary hold on a seat to a
// durable lock: the TTL marker is removed (best-effort) and the seat is
// rewritten with no expiry.
func (m *Manager) LockSeatPermanently(ctx context.Context, eventID, seatID, userID int64) domain.SeatLockResult {
	started := m.now()
	log := m.logger.WithField("event_id", eventID).WithField("seat_id", seatID).WithField("user_id", userID)

	seat, err := m.validateForLock(ctx, eventID, seatID, userID)
	if err != nil {
		log.WithError(err).Warn("seat lock rejected")
		return m.failure("lock", eventID, seatID, userID, started, err)
	}

	markerRemoved, err := m.markers.RemoveHoldMarker(ctx, eventID, seatID)
	if err != nil {
		// Absence of the marker is not an error; neither is failing to
		// remove it, since the rewritten row no longer expires.
		log.WithError(err).Warn("hold marker removal failed")
		markerRemoved = false
	}

	locked := *seat
	locked.State = domain.SeatReserved
	locked.ExpiresAt = nil
	if err := m.seats.Update(ctx, locked); err != nil {
		log.WithError(err).Error("seat rewrite failed")
		return m.failure("lock", eventID, seatID, userID, started, errors.Wrap(err, "persist durable lock"))
	}

	m.publish(ctx, locked)
	observability.SeatLockOps.WithLabelValues("lock", "success").Inc()
	log.Info("seat locked durably")

	return domain.SeatLockResult{
		EventID:       eventID,
		SeatID:        seatID,
		UserID:        userID,
		Success:       true,
		PreviousState: seat.State,
		NewState:      locked.State,
		MarkerRemoved: markerRemoved,
		SeatLabel:     seat.SeatLabel,
		StartedAt:     started,
		FinishedAt:    m.now(),
	}
}

// RestoreSeatReservation reverts a seat back to a plain reservation. With
// restoreWithTTL the hold becomes temporary again (marker recreated,
// best-effort); without it the seat stays durably held. Booked seats can
// never be restored through this path.
func (m *Manager) RestoreSeatReservation(ctx context.Context, eventID, seatID, userID int64, restoreWithTTL bool) domain.SeatLockResult {
	started := m.now()
	log := m.logger.WithField("event_id", eventID).WithField("seat_id", seatID).WithField("user_id", userID)

	seat, err := m.validateForRestore(ctx, eventID, seatID, userID)
	if err != nil {
		log.WithError(err).Warn("seat restore rejected")
		return m.failure("restore", eventID, seatID, userID, started, err)
	}

	restored := *seat
	restored.State = domain.SeatReserved
	if restoreWithTTL {
		expires := m.now().Add(m.holdTTL)
		restored.ExpiresAt = &expires
	} else {
		restored.ExpiresAt = nil
	}
	if err := m.seats.Update(ctx, restored); err != nil {
		log.WithError(err).Error("seat rewrite failed")
		return m.failure("restore", eventID, seatID, userID, started, errors.Wrap(err, "persist restored hold"))
	}

	if restoreWithTTL {
		if err := m.markers.SetHoldMarker(ctx, eventID, seatID, m.holdTTL); err != nil {
			log.WithError(err).Warn("hold marker recreation failed")
		}
	}

	m.publish(ctx, restored)
	observability.SeatLockOps.WithLabelValues("restore", "success").Inc()
	log.WithField("with_ttl", restoreWithTTL).Info("seat reservation restored")

	return domain.SeatLockResult{
		EventID:       eventID,
		SeatID:        seatID,
		UserID:        userID,
		Success:       true,
		PreviousState: seat.State,
		NewState:      restored.State,
		SeatLabel:     seat.SeatLabel,
		StartedAt:     started,
		FinishedAt:    m.now(),
	}
}

// CheckSeatLockEligibility validates without mutating, for UI hinting.
func (m *Manager) CheckSeatLockEligibility(ctx context.Context, eventID, seatID, userID int64) domain.SeatLockCheckResult {
	seat, err := m.validateForLock(ctx, eventID, seatID, userID)
	if err != nil {
		return domain.SeatLockCheckResult{
			EventID:  eventID,
			SeatID:   seatID,
			UserID:   userID,
			Eligible: false,
			Message:  err.Error(),
		}
	}
	return domain.SeatLockCheckResult{
		EventID:      eventID,
		SeatID:       seatID,
		UserID:       userID,
		Eligible:     true,
		CurrentState: seat.State,
		RemainingTTL: seat.RemainingHold(m.now()),
		SeatLabel:    seat.SeatLabel,
		Message:      "seat can be locked",
	}
}

// LockAllUserSeatsPermanently applies LockSeatPermanently to every seat the
// user currently holds, sequentially. One seat's failure is recorded and
// iteration continues; already-locked seats are not rolled back.
func (m *Manager) LockAllUserSeatsPermanently(ctx context.Context, eventID, userID int64) domain.BulkSeatLockResult {
	started := m.now()

	held, err := m.seats.ListHeldByUser(ctx, eventID, userID)
	if err != nil {
		m.logger.WithError(err).Error("held seat listing failed")
		return m.bulkFailure(domain.BulkLock, eventID, userID, started, "could not list held seats")
	}
	if len(held) == 0 {
		return m.bulkFailure(domain.BulkLock, eventID, userID, started, "no held seats to lock")
	}

	results := make([]domain.SeatLockResult, 0, len(held))
	for _, seat := range held {
		results = append(results, m.LockSeatPermanently(ctx, eventID, seat.SeatID, userID))
	}
	return m.bulkOutcome(domain.BulkLock, eventID, userID, started, results)
}

// RestoreAllUserSeats reverts every durable lock the user holds in the
// event, sequentially, with the same no-rollback aggregation as bulk lock.
func (m *Manager) RestoreAllUserSeats(ctx context.Context, eventID, userID int64, restoreWithTTL bool) domain.BulkSeatLockResult {
	started := m.now()

	held, err := m.seats.ListHeldByUser(ctx, eventID, userID)
	if err != nil {
		m.logger.WithError(err).Error("held seat listing failed")
		return m.bulkFailure(domain.BulkRestore, eventID, userID, started, "could not list held seats")
	}
	var locked []domain.SeatStatus
	for _, seat := range held {
		if seat.Hold() == domain.HoldDurable {
			locked = append(locked, seat)
		}
	}
	if len(locked) == 0 {
		return m.bulkFailure(domain.BulkRestore, eventID, userID, started, "no durably locked seats to restore")
	}

	results := make([]domain.SeatLockResult, 0, len(locked))
	for _, seat := range locked {
		results = append(results, m.RestoreSeatReservation(ctx, eventID, seat.SeatID, userID, restoreWithTTL))
	}
	return m.bulkOutcome(domain.BulkRestore, eventID, userID, started, results)
}

// validateForLock enforces the promotion preconditions in order: the seat
// exists, is reserved, is not expired, and belongs to the caller.
func (m *Manager) validateForLock(ctx context.Context, eventID, seatID, userID int64) (*domain.SeatStatus, error) {
	seat, err := m.seats.Get(ctx, eventID, seatID)
	if err != nil {
		return nil, errors.Wrap(err, "read seat")
	}
	if seat == nil {
		return nil, domain.ErrSeatNotFound
	}
	if !seat.IsReserved() {
		return nil, errors.WithDetailf(domain.ErrSeatWrongState, "current state %s", seat.State)
	}
	if seat.IsExpired(m.now()) {
		return nil, domain.ErrSeatExpired
	}
	if seat.UserID == nil || *seat.UserID != userID {
		return nil, domain.ErrSeatNotOwner
	}
	return seat, nil
}

// validateForRestore enforces the revert preconditions: the seat exists,
// belongs to the caller, and is not booked.
func (m *Manager) validateForRestore(ctx context.Context, eventID, seatID, userID int64) (*domain.SeatStatus, error) {
	seat, err := m.seats.Get(ctx, eventID, seatID)
	if err != nil {
		return nil, errors.Wrap(err, "read seat")
	}
	if seat == nil {
		return nil, domain.ErrSeatNotFound
	}
	if seat.UserID == nil || *seat.UserID != userID {
		return nil, domain.ErrSeatNotOwner
	}
	if seat.IsBooked() {
		return nil, errors.WithDetail(domain.ErrSeatWrongState, "seat already booked")
	}
	return seat, nil
}

func (m *Manager) publish(ctx context.Context, seat domain.SeatStatus) {
	if err := m.publisher.PublishSeatUpdate(ctx, seat); err != nil {
		m.logger.WithError(err).
			WithField("event_id", seat.EventID).
			WithField("seat_id", seat.SeatID).
			Warn("seat update publish failed")
	}
}

func (m *Manager) failure(op string, eventID, seatID, userID int64, started time.Time, err error) domain.SeatLockResult {
	observability.SeatLockOps.WithLabelValues(op, "failure").Inc()
	return domain.SeatLockResult{
		EventID:    eventID,
		SeatID:     seatID,
		UserID:     userID,
		Success:    false,
		Reason:     domain.ReasonOf(err),
		Message:    err.Error(),
		StartedAt:  started,
		FinishedAt: m.now(),
	}
}

func (m *Manager) bulkFailure(op domain.BulkOp, eventID, userID int64, started time.Time, message string) domain.BulkSeatLockResult {
	return domain.BulkSeatLockResult{
		EventID:    eventID,
		UserID:     userID,
		Op:         op,
		Success:    false,
		Message:    message,
		StartedAt:  started,
		FinishedAt: m.now(),
	}
}

func (m *Manager) bulkOutcome(op domain.BulkOp, eventID, userID int64, started time.Time, results []domain.SeatLockResult) domain.BulkSeatLockResult {
	out := domain.BulkSeatLockResult{
		EventID:    eventID,
		UserID:     userID,
		Op:         op,
		Success:    true,
		Seats:      results,
		StartedAt:  started,
		FinishedAt: m.now(),
	}
	for _, r := range results {
		if !r.Success {
			out.Success = false
		}
	}
	if out.Success {
		out.Message = "all seats processed"
	} else {
		out.Message = "one or more seats failed"
	}
	return out
}
