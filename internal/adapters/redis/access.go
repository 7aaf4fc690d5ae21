package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/seatsurge/seatsurge/internal/domain"
)

const (
	accessKeyPrefix = "accesskey:"
	activeUsersKey  = "active_users_count"
)

// AccessStore keeps one live access grant per user (the key's TTL is the
// grant's expiry) and the global counter of admitted users.
type AccessStore struct {
	client *redis.Client
}

func NewAccessStore(client *redis.Client) *AccessStore {
	return &AccessStore{client: client}
}

func grantKey(userID int64) string {
	return accessKeyPrefix + strconv.FormatInt(userID, 10)
}

// Set stores the grant, overwriting any previous one.
func (a *AccessStore) Set(ctx context.Context, userID int64, key string, ttl time.Duration) error {
	return a.client.Set(ctx, grantKey(userID), key, ttl).Err()
}

// Get returns the live grant for the user, reconstructing its expiry from
// the key's remaining TTL. Found is false when no grant exists or it has
// already expired out of the store.
func (a *AccessStore) Get(ctx context.Context, userID int64) (domain.AccessGrant, bool, error) {
	pipe := a.client.Pipeline()
	get := pipe.Get(ctx, grantKey(userID))
	ttl := pipe.PTTL(ctx, grantKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		if err == redis.Nil {
			return domain.AccessGrant{}, false, nil
		}
		return domain.AccessGrant{}, false, err
	}
	return domain.AccessGrant{
		UserID:    userID,
		Key:       get.Val(),
		ExpiresAt: time.Now().Add(ttl.Val()),
	}, true, nil
}

func (a *AccessStore) Delete(ctx context.Context, userID int64) (bool, error) {
	n, err := a.client.Del(ctx, grantKey(userID)).Result()
	return n > 0, err
}

func (a *AccessStore) IncrActive(ctx context.Context) (int64, error) {
	return a.client.Incr(ctx, activeUsersKey).Result()
}

// DecrActive decrements the admitted-user counter, clamping at zero so a
// double release cannot drive it negative.
func (a *AccessStore) DecrActive(ctx context.Context) (int64, error) {
	n, err := a.client.Decr(ctx, activeUsersKey).Result()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		if err := a.client.Set(ctx, activeUsersKey, 0, 0).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return n, nil
}

func (a *AccessStore) ActiveCount(ctx context.Context) (int64, error) {
	val, err := a.client.Get(ctx, activeUsersKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
