package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/seatsurge/seatsurge/internal/domain"
	"github.com/seatsurge/seatsurge/internal/observability"
)

// GrantStore holds access grants (one per user, overwritten on reissue) and
// the global counter of admitted users.
type GrantStore interface {
	Set(ctx context.Context, userID int64, key string, ttl time.Duration) error
	Get(ctx context.Context, userID int64) (domain.AccessGrant, bool, error)
	Delete(ctx context.Context, userID int64) (bool, error)
	IncrActive(ctx context.Context) (int64, error)
	DecrActive(ctx context.Context) (int64, error)
	ActiveCount(ctx context.Context) (int64, error)
}

// Issuer grants and verifies the short-lived bearer credentials that gate
// the checkout path.
type Issuer struct {
	store  GrantStore
	ttl    time.Duration
	logger observability.Logger
	now    func() time.Time
}

func NewIssuer(store GrantStore, ttl time.Duration, logger observability.Logger) *Issuer {
	return &Issuer{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// GrantImmediateAccess issues a fresh opaque key, stores it with the fixed
// expiry and bumps the active-user counter. Any previous grant for the user
// is overwritten.
func (i *Issuer) GrantImmediateAccess(ctx context.Context, userID int64) (domain.AccessGrant, error) {
	grant := domain.AccessGrant{
		UserID:    userID,
		Key:       uuid.New().String(),
		ExpiresAt: i.now().Add(i.ttl),
	}
	if err := i.store.Set(ctx, userID, grant.Key, i.ttl); err != nil {
		return domain.AccessGrant{}, err
	}
	active, err := i.store.IncrActive(ctx)
	if err != nil {
		// The grant stands; a stale counter corrects itself on release.
		i.logger.WithError(err).WithField("user_id", userID).Warn("active user increment failed")
	} else {
		observability.ActiveUsers.Set(float64(active))
	}
	i.logger.WithField("user_id", userID).Info("access key granted")
	return grant, nil
}

// Verify checks the bearer-token contract: the claimed key must exactly
// match the user's live grant and the grant must not be expired. Any
// mismatch is a hard rejection.
func (i *Issuer) Verify(ctx context.Context, userID int64, claimed string) (bool, error) {
	grant, found, err := i.store.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return grant.Matches(claimed, i.now()), nil
}

// ReleaseAccess drops the user's grant and frees their admission slot.
func (i *Issuer) ReleaseAccess(ctx context.Context, userID int64) error {
	deleted, err := i.store.Delete(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}
	active, err := i.store.DecrActive(ctx)
	if err != nil {
		i.logger.WithError(err).WithField("user_id", userID).Warn("active user decrement failed")
		return nil
	}
	observability.ActiveUsers.Set(float64(active))
	return nil
}

// ActiveUsers returns the number of users currently inside the checkout path.
func (i *Issuer) ActiveUsers(ctx context.Context) (int64, error) {
	return i.store.ActiveCount(ctx)
}
