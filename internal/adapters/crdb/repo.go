package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/seatsurge/seatsurge/internal/domain"
)

// Repository reads the persisted sale-event config (the queue gating flag)
// and the seat inventory consumed by cache warm-up. The lock manager's hot
// path never touches it.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetSaleEvent(ctx context.Context, eventID int64) (*domain.SaleEvent, error) {
	var ev domain.SaleEvent
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, queue_active
		FROM sale_events WHERE id = $1
	`, eventID).Scan(&ev.ID, &ev.Name, &ev.QueueActive)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *Repository) ListActiveSaleEvents(ctx context.Context) ([]domain.SaleEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, queue_active
		FROM sale_events WHERE queue_active = true
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.SaleEvent
	for rows.Next() {
		var ev domain.SaleEvent
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.QueueActive); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SetQueueActive flips the gating flag for a sale event.
func (r *Repository) SetQueueActive(ctx context.Context, eventID int64, active bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE sale_events SET queue_active = $2 WHERE id = $1
	`, eventID, active)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.WithDetailf(domain.ErrEventNotFound, "event %d", eventID)
	}
	return nil
}

// ListSeats returns the physical seat inventory for an event.
func (r *Repository) ListSeats(ctx context.Context, eventID int64) ([]domain.SeatInventoryRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seat_id, section, seat_row, seat_number
		FROM event_seats WHERE event_id = $1
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []domain.SeatInventoryRow
	for rows.Next() {
		var seat domain.SeatInventoryRow
		if err := rows.Scan(&seat.SeatID, &seat.Section, &seat.Row, &seat.Number); err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

// BookedSeatIDs returns the seats with an issued ticket, i.e. already sold
// before warm-up.
func (r *Repository) BookedSeatIDs(ctx context.Context, eventID int64) (map[int64]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT seat_id FROM tickets WHERE event_id = $1
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	booked := make(map[int64]bool)
	for rows.Next() {
		var seatID int64
		if err := rows.Scan(&seatID); err != nil {
			return nil, err
		}
		booked[seatID] = true
	}
	return booked, rows.Err()
}
