package domain

import (
	"fmt"
	"time"
)

type SeatState string

const (
	SeatAvailable SeatState = "AVAILABLE"
	SeatReserved  SeatState = "RESERVED"
	SeatBooked    SeatState = "BOOKED"
)

// HoldKind distinguishes the two flavors of RESERVED. The wire encoding stays
// "RESERVED with nil ExpiresAt means durable" for compatibility with the seat
// hash, but callers go through HoldKind instead of testing the nil sentinel.
type HoldKind string

const (
	HoldNone      HoldKind = "NONE"
	HoldTemporary HoldKind = "TEMPORARY_HOLD"
	HoldDurable   HoldKind = "DURABLE_LOCK"
)

// SeatStatus is one row of the per-event seat map. UserID is set iff the seat
// is RESERVED or BOOKED.
type SeatStatus struct {
	EventID    int64      `json:"event_id"`
	SeatID     int64      `json:"seat_id"`
	State      SeatState  `json:"state"`
	UserID     *int64     `json:"user_id,omitempty"`
	ReservedAt *time.Time `json:"reserved_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	SeatLabel  string     `json:"seat_label,omitempty"`
}

func (s SeatStatus) IsReserved() bool {
	return s.State == SeatReserved
}

func (s SeatStatus) IsBooked() bool {
	return s.State == SeatBooked
}

// IsExpired reports whether a temporary hold has passed its expiry. Durable
// locks and non-reserved seats never expire.
func (s SeatStatus) IsExpired(now time.Time) bool {
	return s.State == SeatReserved && s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

func (s SeatStatus) Hold() HoldKind {
	if s.State != SeatReserved {
		return HoldNone
	}
	if s.ExpiresAt == nil {
		return HoldDurable
	}
	return HoldTemporary
}

// HeldBy reports whether userID currently holds the seat, durably or
// temporarily. An expired temporary hold no longer counts.
func (s SeatStatus) HeldBy(userID int64, now time.Time) bool {
	if s.State != SeatReserved || s.UserID == nil || *s.UserID != userID {
		return false
	}
	return !s.IsExpired(now)
}

// EffectiveState is what a reader should see: an expired temporary hold is
// AVAILABLE, not an error.
func (s SeatStatus) EffectiveState(now time.Time) SeatState {
	if s.IsExpired(now) {
		return SeatAvailable
	}
	return s.State
}

// RemainingHold returns the seconds left on a temporary hold, 0 otherwise.
func (s SeatStatus) RemainingHold(now time.Time) int64 {
	if s.Hold() != HoldTemporary {
		return 0
	}
	rem := s.ExpiresAt.Sub(now)
	if rem < 0 {
		return 0
	}
	return int64(rem.Seconds())
}

// SeatInventoryRow is one physical seat as persisted in the inventory,
// consumed only by cache warm-up.
type SeatInventoryRow struct {
	SeatID  int64
	Section string
	Row     string
	Number  int
}

func (r SeatInventoryRow) Label() string {
	return fmt.Sprintf("%s-%s-%d", r.Section, r.Row, r.Number)
}
