package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/seatsurge/seatsurge/internal/domain"
)

const (
	seatStatusKeyPrefix = "seat:status:"
	seatExpireKeyPrefix = "seat:expire:"
)

// SeatStore is the per-event seat map: one hash per sale event, field =
// seat id, value = JSON-encoded SeatStatus. Hold markers are separate
// plain keys whose native TTL drives temporary-hold expiry.
type SeatStore struct {
	client *redis.Client
}

func NewSeatStore(client *redis.Client) *SeatStore {
	return &SeatStore{client: client}
}

func seatMapKey(eventID int64) string {
	return seatStatusKeyPrefix + strconv.FormatInt(eventID, 10)
}

func markerKey(eventID, seatID int64) string {
	return seatExpireKeyPrefix + strconv.FormatInt(eventID, 10) + ":" + strconv.FormatInt(seatID, 10)
}

// Get returns the seat row, or nil when the seat is not in the map.
func (s *SeatStore) Get(ctx context.Context, eventID, seatID int64) (*domain.SeatStatus, error) {
	val, err := s.client.HGet(ctx, seatMapKey(eventID), strconv.FormatInt(seatID, 10)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var seat domain.SeatStatus
	if err := json.Unmarshal(val, &seat); err != nil {
		return nil, err
	}
	return &seat, nil
}

func (s *SeatStore) Update(ctx context.Context, seat domain.SeatStatus) error {
	data, err := json.Marshal(seat)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, seatMapKey(seat.EventID), strconv.FormatInt(seat.SeatID, 10), data).Err()
}

// ListHeldByUser returns every seat the user currently holds in the event,
// durably or temporarily. Expired temporary holds are filtered out.
func (s *SeatStore) ListHeldByUser(ctx context.Context, eventID, userID int64) ([]domain.SeatStatus, error) {
	all, err := s.All(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var held []domain.SeatStatus
	for _, seat := range all {
		if seat.HeldBy(userID, now) {
			held = append(held, seat)
		}
	}
	return held, nil
}

func (s *SeatStore) All(ctx context.Context, eventID int64) ([]domain.SeatStatus, error) {
	fields, err := s.client.HGetAll(ctx, seatMapKey(eventID)).Result()
	if err != nil {
		return nil, err
	}
	seats := make([]domain.SeatStatus, 0, len(fields))
	for _, raw := range fields {
		var seat domain.SeatStatus
		if err := json.Unmarshal([]byte(raw), &seat); err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, nil
}

// ReplaceAll swaps the whole seat map in one pipelined round-trip. Warm-up
// only; the lock manager never goes near this.
func (s *SeatStore) ReplaceAll(ctx context.Context, eventID int64, seats map[int64]domain.SeatStatus) error {
	fields := make(map[string]interface{}, len(seats))
	for seatID, seat := range seats {
		data, err := json.Marshal(seat)
		if err != nil {
			return err
		}
		fields[strconv.FormatInt(seatID, 10)] = data
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, seatMapKey(eventID))
	if len(fields) > 0 {
		pipe.HSet(ctx, seatMapKey(eventID), fields)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SeatStore) Exists(ctx context.Context, eventID int64) (bool, error) {
	n, err := s.client.Exists(ctx, seatMapKey(eventID)).Result()
	return n > 0, err
}

// Clear drops the event's seat map. Reports whether there was one.
func (s *SeatStore) Clear(ctx context.Context, eventID int64) (bool, error) {
	n, err := s.client.Del(ctx, seatMapKey(eventID)).Result()
	return n > 0, err
}

func (s *SeatStore) SetHoldMarker(ctx context.Context, eventID, seatID int64, ttl time.Duration) error {
	return s.client.Set(ctx, markerKey(eventID, seatID), "reserved", ttl).Err()
}

// RemoveHoldMarker deletes the seat's TTL marker. Reports whether the
// marker was actually present; its absence is not an error.
func (s *SeatStore) RemoveHoldMarker(ctx context.Context, eventID, seatID int64) (bool, error) {
	n, err := s.client.Del(ctx, markerKey(eventID, seatID)).Result()
	return n > 0, err
}
