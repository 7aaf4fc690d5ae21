package domain

import "time"

// SeatLockResult records the outcome of a single lock or restore. Failures
// are values, not errors: the reason code and message travel with the result.
type SeatLockResult struct {
	EventID       int64     `json:"event_id"`
	SeatID        int64     `json:"seat_id"`
	UserID        int64     `json:"user_id"`
	Success       bool      `json:"success"`
	Reason        Reason    `json:"reason,omitempty"`
	Message       string    `json:"message,omitempty"`
	PreviousState SeatState `json:"previous_state,omitempty"`
	NewState      SeatState `json:"new_state,omitempty"`
	MarkerRemoved bool      `json:"ttl_marker_removed"`
	SeatLabel     string    `json:"seat_label,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

type BulkOp string

const (
	BulkLock    BulkOp = "LOCK"
	BulkRestore BulkOp = "RESTORE"
)

// BulkSeatLockResult aggregates per-seat outcomes of a bulk operation.
// Success means every per-seat call succeeded; a failed aggregate still
// carries every per-seat result for diagnostics.
type BulkSeatLockResult struct {
	EventID    int64            `json:"event_id"`
	UserID     int64            `json:"user_id"`
	Op         BulkOp           `json:"op"`
	Success    bool             `json:"success"`
	Message    string           `json:"message,omitempty"`
	Seats      []SeatLockResult `json:"seats,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

func (b BulkSeatLockResult) Succeeded() int {
	n := 0
	for _, r := range b.Seats {
		if r.Success {
			n++
		}
	}
	return n
}

func (b BulkSeatLockResult) Failed() int {
	return len(b.Seats) - b.Succeeded()
}

// SeatLockCheckResult is the pure-validation answer used for UI hinting.
type SeatLockCheckResult struct {
	EventID      int64     `json:"event_id"`
	SeatID       int64     `json:"seat_id"`
	UserID       int64     `json:"user_id"`
	Eligible     bool      `json:"eligible"`
	CurrentState SeatState `json:"current_state,omitempty"`
	RemainingTTL int64     `json:"remaining_ttl_seconds"`
	SeatLabel    string    `json:"seat_label,omitempty"`
	Message      string    `json:"message"`
}
