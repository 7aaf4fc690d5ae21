package domain

const (
	// SequenceBits is the width reserved for the per-millisecond sequence in
	// a queue score. 21 bits leaves room for ~2 million joins per millisecond
	// per event before the join path itself is declared overloaded.
	SequenceBits = 21
	MaxSequence  = (1 << SequenceBits) - 1
)

// QueueEntry is one live member of an event's admission queue. Score totally
// orders arrivals: lower score entered first.
type QueueEntry struct {
	EventID int64 `json:"event_id"`
	UserID  int64 `json:"user_id"`
	Score   int64 `json:"score"`
}

// ComposeScore packs a millisecond timestamp and a per-millisecond sequence
// number into a single sortable value.
func ComposeScore(unixMillis, sequence int64) int64 {
	return unixMillis<<SequenceBits | sequence
}

type AdmissionStatus string

const (
	AdmissionWaiting        AdmissionStatus = "WAITING"
	AdmissionImmediateEntry AdmissionStatus = "IMMEDIATE_ENTRY"
	AdmissionError          AdmissionStatus = "ERROR"
)

// AdmissionResult is the three-variant outcome of a queue apply. Exactly one
// of Rank and AccessKey is meaningful, selected by Status.
type AdmissionResult struct {
	Status    AdmissionStatus `json:"status"`
	Rank      int64           `json:"rank,omitempty"`
	AccessKey string          `json:"accessKey,omitempty"`
	Reason    Reason          `json:"reason,omitempty"`
	Message   string          `json:"message"`
}

func Waiting(rank int64) AdmissionResult {
	return AdmissionResult{
		Status:  AdmissionWaiting,
		Rank:    rank,
		Message: "joined the waiting queue",
	}
}

func ImmediateEntry(accessKey string) AdmissionResult {
	return AdmissionResult{
		Status:    AdmissionImmediateEntry,
		AccessKey: accessKey,
		Message:   "immediate entry granted",
	}
}

func AdmissionFailure(reason Reason, message string) AdmissionResult {
	return AdmissionResult{
		Status:  AdmissionError,
		Reason:  reason,
		Message: message,
	}
}
