package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKeyPrefix   = "waitqueue:"
	sequenceKeyInfix = ":seq:"
)

// Queue is the ordered, score-keyed membership set behind the admission
// queue, one sorted set per sale event. All operations are single Redis
// commands and therefore atomic.
type Queue struct {
	client    *redis.Client
	seqExpiry time.Duration
}

func NewQueue(client *redis.Client, seqExpiry time.Duration) *Queue {
	return &Queue{client: client, seqExpiry: seqExpiry}
}

func queueKey(eventID int64) string {
	return queueKeyPrefix + strconv.FormatInt(eventID, 10)
}

// AddIfAbsent inserts the user with the given score unless a live entry for
// the user already exists. Reports whether the insert happened.
func (q *Queue) AddIfAbsent(ctx context.Context, eventID, userID int64, score int64) (bool, error) {
	res := q.client.ZAddNX(ctx, queueKey(eventID), redis.Z{
		Score:  float64(score),
		Member: strconv.FormatInt(userID, 10),
	})
	return res.Val() == 1, res.Err()
}

// Rank returns the zero-based arrival position of the user. The second
// return is false when the user is not in the set.
func (q *Queue) Rank(ctx context.Context, eventID, userID int64) (int64, bool, error) {
	res := q.client.ZRank(ctx, queueKey(eventID), strconv.FormatInt(userID, 10))
	if res.Err() == redis.Nil {
		return 0, false, nil
	}
	if res.Err() != nil {
		return 0, false, res.Err()
	}
	return res.Val(), true, nil
}

// PopMin atomically removes and returns up to count members in ascending
// score order.
func (q *Queue) PopMin(ctx context.Context, eventID int64, count int) ([]int64, error) {
	res := q.client.ZPopMin(ctx, queueKey(eventID), int64(count))
	if res.Err() != nil {
		return nil, res.Err()
	}
	users := make([]int64, 0, len(res.Val()))
	for _, z := range res.Val() {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	return users, nil
}

func (q *Queue) Size(ctx context.Context, eventID int64) (int64, error) {
	return q.client.ZCard(ctx, queueKey(eventID)).Result()
}

// NextSequence atomically increments the per-(event, millisecond) counter.
// The key gets its expiry on first creation only, so a busy millisecond
// cannot keep extending the counter's life.
func (q *Queue) NextSequence(ctx context.Context, eventID, unixMillis int64) (int64, error) {
	key := queueKeyPrefix + strconv.FormatInt(eventID, 10) + sequenceKeyInfix + strconv.FormatInt(unixMillis, 10)

	pipe := q.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, q.seqExpiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
