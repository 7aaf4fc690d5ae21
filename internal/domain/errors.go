package domain

import "github.com/cockroachdb/errors"

var (
	ErrAlreadyJoined   = errors.New("already joined queue")
	ErrTooManyRequests = errors.New("sequence space exhausted")
	ErrServerError     = errors.New("internal server error")

	ErrSeatNotFound   = errors.New("seat not found")
	ErrSeatWrongState = errors.New("seat in wrong state")
	ErrSeatExpired    = errors.New("seat hold expired")
	ErrSeatNotOwner   = errors.New("seat held by another user")

	ErrEventNotFound = errors.New("sale event not found")
)

// Reason is the machine-readable code carried in failure results and API
// responses.
type Reason string

const (
	ReasonAlreadyJoined   Reason = "ALREADY_JOINED"
	ReasonTooManyRequests Reason = "TOO_MANY_REQUESTS"
	ReasonServerError     Reason = "SERVER_ERROR"
	ReasonSeatNotFound    Reason = "SEAT_NOT_FOUND"
	ReasonSeatWrongState  Reason = "SEAT_WRONG_STATE"
	ReasonSeatExpired     Reason = "SEAT_EXPIRED"
	ReasonSeatNotOwner    Reason = "SEAT_NOT_OWNER"
)

// ReasonOf maps a validation error to its reason code. Anything unrecognized
// is a SERVER_ERROR: unexpected faults never leak their own taxonomy.
func ReasonOf(err error) Reason {
	switch {
	case errors.Is(err, ErrAlreadyJoined):
		return ReasonAlreadyJoined
	case errors.Is(err, ErrTooManyRequests):
		return ReasonTooManyRequests
	case errors.Is(err, ErrSeatNotFound):
		return ReasonSeatNotFound
	case errors.Is(err, ErrSeatWrongState):
		return ReasonSeatWrongState
	case errors.Is(err, ErrSeatExpired):
		return ReasonSeatExpired
	case errors.Is(err, ErrSeatNotOwner):
		return ReasonSeatNotOwner
	default:
		return ReasonServerError
	}
}
