package redis_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	redisadapter "github.com/seatsurge/seatsurge/internal/adapters/redis"
	"github.com/seatsurge/seatsurge/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	return redisclient.NewClient(&redisclient.Options{Addr: addr})
}

func TestQueue_ArrivalOrdering(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	queue := redisadapter.NewQueue(client, 2*time.Second)

	base := time.Now().UnixMilli()
	for i, userID := range []int64{100, 200, 300} {
		seq, err := queue.NextSequence(ctx, 1, base)
		if err != nil {
			t.Fatal(err)
		}
		added, err := queue.AddIfAbsent(ctx, 1, userID, domain.ComposeScore(base, seq))
		if err != nil {
			t.Fatal(err)
		}
		if !added {
			t.Fatalf("user %d: expected insert", userID)
		}
		rank, found, err := queue.Rank(ctx, 1, userID)
		if err != nil {
			t.Fatal(err)
		}
		if !found || rank != int64(i) {
			t.Errorf("user %d: expected rank %d, got %d (found=%v)", userID, i, rank, found)
		}
	}

	added, err := queue.AddIfAbsent(ctx, 1, 200, domain.ComposeScore(base+1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("re-adding a queued user must be rejected")
	}
	if rank, _, _ := queue.Rank(ctx, 1, 200); rank != 1 {
		t.Errorf("rejected re-add must keep the original rank, got %d", rank)
	}

	size, err := queue.Size(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if size != 3 {
		t.Fatalf("expected size 3, got %d", size)
	}

	users, err := queue.PopMin(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0] != 100 || users[1] != 200 {
		t.Fatalf("expected [100 200], got %v", users)
	}

	if _, found, _ := queue.Rank(ctx, 1, 999); found {
		t.Error("unknown user must not have a rank")
	}
}

func TestQueue_SequenceCounter(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	queue := redisadapter.NewQueue(client, 2*time.Second)

	ms := time.Now().UnixMilli()
	for want := int64(1); want <= 3; want++ {
		seq, err := queue.NextSequence(ctx, 1, ms)
		if err != nil {
			t.Fatal(err)
		}
		if seq != want {
			t.Errorf("expected sequence %d, got %d", want, seq)
		}
	}

	// A different millisecond starts its own counter.
	seq, err := queue.NextSequence(ctx, 1, ms+1)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 1 {
		t.Errorf("expected fresh counter, got %d", seq)
	}

	// The counter key carries a finite TTL.
	ttl, err := client.TTL(ctx, "waitqueue:1:seq:"+strconv.FormatInt(ms, 10)).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("expected TTL within (0, 2s], got %v", ttl)
	}
}

func TestAccessStore_GrantLifecycle(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := redisadapter.NewAccessStore(client)

	if err := store.Set(ctx, 7, "key-one", time.Minute); err != nil {
		t.Fatal(err)
	}
	grant, found, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !found || grant.Key != "key-one" {
		t.Fatalf("expected stored grant, got found=%v key=%q", found, grant.Key)
	}
	if time.Until(grant.ExpiresAt) <= 0 {
		t.Errorf("expected a future expiry, got %v", grant.ExpiresAt)
	}

	if _, found, _ := store.Get(ctx, 8); found {
		t.Error("unknown user must have no grant")
	}

	deleted, err := store.Delete(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Error("expected deletion of the stored grant")
	}
	if deleted, _ := store.Delete(ctx, 7); deleted {
		t.Error("second delete must report nothing removed")
	}
}

func TestAccessStore_ActiveCounterClamp(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := redisadapter.NewAccessStore(client)

	if n, _ := store.ActiveCount(ctx); n != 0 {
		t.Fatalf("expected empty counter, got %d", n)
	}

	store.IncrActive(ctx)
	store.IncrActive(ctx)
	if n, _ := store.ActiveCount(ctx); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}

	store.DecrActive(ctx)
	store.DecrActive(ctx)
	n, err := store.DecrActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("counter must clamp at zero, got %d", n)
	}
	if n, _ := store.ActiveCount(ctx); n != 0 {
		t.Errorf("stored counter must clamp at zero, got %d", n)
	}
}

func TestSeatStore_MapAndMarkers(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := redisadapter.NewSeatStore(client)

	userID := int64(7)
	expires := time.Now().Add(time.Minute).UTC()
	seat := domain.SeatStatus{
		EventID:   1,
		SeatID:    10,
		State:     domain.SeatReserved,
		UserID:    &userID,
		ExpiresAt: &expires,
		SeatLabel: "A-1",
	}

	if got, err := store.Get(ctx, 1, 10); err != nil || got != nil {
		t.Fatalf("expected no seat yet, got %+v err %v", got, err)
	}

	if err := store.Update(ctx, seat); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.State != domain.SeatReserved || *got.UserID != userID {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	held, err := store.ListHeldByUser(ctx, 1, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 1 || held[0].SeatID != 10 {
		t.Fatalf("expected one held seat, got %+v", held)
	}

	if err := store.SetHoldMarker(ctx, 1, 10, time.Minute); err != nil {
		t.Fatal(err)
	}
	removed, err := store.RemoveHoldMarker(ctx, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("expected marker removal")
	}
	if removed, _ := store.RemoveHoldMarker(ctx, 1, 10); removed {
		t.Error("second removal must report no marker")
	}
}

func TestSeatStore_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	store := redisadapter.NewSeatStore(client)

	if exists, _ := store.Exists(ctx, 1); exists {
		t.Fatal("expected no map yet")
	}

	first := map[int64]domain.SeatStatus{
		1: {EventID: 1, SeatID: 1, State: domain.SeatAvailable},
		2: {EventID: 1, SeatID: 2, State: domain.SeatBooked},
	}
	if err := store.ReplaceAll(ctx, 1, first); err != nil {
		t.Fatal(err)
	}

	second := map[int64]domain.SeatStatus{
		3: {EventID: 1, SeatID: 3, State: domain.SeatAvailable},
	}
	if err := store.ReplaceAll(ctx, 1, second); err != nil {
		t.Fatal(err)
	}

	all, err := store.All(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].SeatID != 3 {
		t.Fatalf("replace must drop the previous map, got %+v", all)
	}

	cleared, err := store.Clear(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !cleared {
		t.Error("expected clear to drop the map")
	}
	if exists, _ := store.Exists(ctx, 1); exists {
		t.Error("map must be gone after clear")
	}
}
