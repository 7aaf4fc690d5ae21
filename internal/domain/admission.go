package domain

import "time"

// AccessGrant is the short-lived bearer credential proving queue admission.
// One live grant per user; a reissue overwrites the previous key.
type AccessGrant struct {
	UserID    int64     `json:"user_id"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (g AccessGrant) IsExpired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// Matches checks the bearer-token contract: exact key match and non-expiry.
func (g AccessGrant) Matches(claimed string, now time.Time) bool {
	return claimed != "" && g.Key == claimed && !g.IsExpired(now)
}

// SaleEvent is the persisted sale-event config consumed by the queue: the
// gating flag decides whether joins wait in line or enter immediately.
type SaleEvent struct {
	ID          int64
	Name        string
	QueueActive bool
}
