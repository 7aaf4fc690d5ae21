package seatcache

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/seatsurge/seatsurge/internal/domain"
	"github.com/seatsurge/seatsurge/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Store is the bulk side of the seat map: whole-map replace for warm-up,
// full scan for dashboard counts.
type Store interface {
	ReplaceAll(ctx context.Context, eventID int64, seats map[int64]domain.SeatStatus) error
	All(ctx context.Context, eventID int64) ([]domain.SeatStatus, error)
	Exists(ctx context.Context, eventID int64) (bool, error)
	Clear(ctx context.Context, eventID int64) (bool, error)
}

// Inventory is the persisted seat inventory consumed only during warm-up.
type Inventory interface {
	ListSeats(ctx context.Context, eventID int64) ([]domain.SeatInventoryRow, error)
	BookedSeatIDs(ctx context.Context, eventID int64) (map[int64]bool, error)
}

// CacheStatus is the aggregate seat-count view exposed for dashboards.
type CacheStatus struct {
	EventID   int64 `json:"event_id"`
	Exists    bool  `json:"exists"`
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
	Booked    int64 `json:"booked"`
}

type Service struct {
	store     Store
	inventory Inventory
	logger    observability.Logger
	now       func() time.Time
}

func NewService(store Store, inventory Inventory, logger observability.Logger) *Service {
	return &Service{
		store:     store,
		inventory: inventory,
		logger:    logger,
		now:       time.Now,
	}
}

// WarmUpFromInventory rebuilds the event's seat map from the persisted
// inventory: seats with an issued ticket come up BOOKED, everything else
// AVAILABLE. The whole map is swapped in one bulk replace.
func (s *Service) WarmUpFromInventory(ctx context.Context, eventID int64) (int, error) {
	var (
		rows   []domain.SeatInventoryRow
		booked map[int64]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.inventory.ListSeats(gctx, eventID)
		return err
	})
	g.Go(func() error {
		var err error
		booked, err = s.inventory.BookedSeatIDs(gctx, eventID)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, errors.Wrap(err, "fetch seat inventory")
	}
	if len(rows) == 0 {
		return 0, errors.WithDetailf(domain.ErrEventNotFound, "no inventory for event %d", eventID)
	}

	seats := make(map[int64]domain.SeatStatus, len(rows))
	for _, row := range rows {
		state := domain.SeatAvailable
		if booked[row.SeatID] {
			state = domain.SeatBooked
		}
		seats[row.SeatID] = domain.SeatStatus{
			EventID:   eventID,
			SeatID:    row.SeatID,
			State:     state,
			SeatLabel: row.Label(),
		}
	}
	if err := s.store.ReplaceAll(ctx, eventID, seats); err != nil {
		return 0, errors.Wrap(err, "replace seat map")
	}

	s.logger.WithField("event_id", eventID).WithField("seats", len(seats)).Info("seat cache warmed from inventory")
	return len(seats), nil
}

// WarmUpSynthetic fills the seat map with generated seats for load tests:
// 1-50 section A, 51-100 section B, the rest section C, all AVAILABLE.
func (s *Service) WarmUpSynthetic(ctx context.Context, eventID int64, totalSeats int) (int, error) {
	seats := make(map[int64]domain.SeatStatus, totalSeats)
	for i := 1; i <= totalSeats; i++ {
		seats[int64(i)] = domain.SeatStatus{
			EventID:   eventID,
			SeatID:    int64(i),
			State:     domain.SeatAvailable,
			SeatLabel: syntheticLabel(i),
		}
	}
	if err := s.store.ReplaceAll(ctx, eventID, seats); err != nil {
		return 0, errors.Wrap(err, "replace seat map")
	}

	s.logger.WithField("event_id", eventID).WithField("seats", totalSeats).Info("seat cache warmed with synthetic data")
	return totalSeats, nil
}

// Status counts seats per effective state. An expired temporary hold counts
// as available, matching what readers of individual seats see.
func (s *Service) Status(ctx context.Context, eventID int64) (CacheStatus, error) {
	exists, err := s.store.Exists(ctx, eventID)
	if err != nil {
		return CacheStatus{}, err
	}
	status := CacheStatus{EventID: eventID, Exists: exists}
	if !exists {
		return status, nil
	}

	seats, err := s.store.All(ctx, eventID)
	if err != nil {
		return CacheStatus{}, err
	}
	now := s.now()
	for _, seat := range seats {
		status.Total++
		switch seat.EffectiveState(now) {
		case domain.SeatAvailable:
			status.Available++
		case domain.SeatReserved:
			status.Reserved++
		case domain.SeatBooked:
			status.Booked++
		}
	}
	return status, nil
}

// Clear drops the event's seat map. Reports whether there was one to drop.
func (s *Service) Clear(ctx context.Context, eventID int64) (bool, error) {
	cleared, err := s.store.Clear(ctx, eventID)
	if err != nil {
		return false, errors.Wrap(err, "clear seat map")
	}
	s.logger.WithField("event_id", eventID).WithField("existed", cleared).Info("seat cache cleared")
	return cleared, nil
}

func syntheticLabel(seatNumber int) string {
	switch {
	case seatNumber <= 50:
		return fmt.Sprintf("A-%d", seatNumber)
	case seatNumber <= 100:
		return fmt.Sprintf("B-%d", seatNumber-50)
	default:
		return fmt.Sprintf("C-%d", seatNumber-100)
	}
}
