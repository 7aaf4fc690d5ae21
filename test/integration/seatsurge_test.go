package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/seatsurge/seatsurge/internal/adapters/crdb"
	mongoadapter "github.com/seatsurge/seatsurge/internal/adapters/mongo"
	"github.com/seatsurge/seatsurge/internal/adapters/rabbit"
	redisadapter "github.com/seatsurge/seatsurge/internal/adapters/redis"
	"github.com/seatsurge/seatsurge/internal/admission"
	"github.com/seatsurge/seatsurge/internal/config"
	"github.com/seatsurge/seatsurge/internal/domain"
	httphandler "github.com/seatsurge/seatsurge/internal/http"
	"github.com/seatsurge/seatsurge/internal/idempotency"
	"github.com/seatsurge/seatsurge/internal/observability"
	"github.com/seatsurge/seatsurge/internal/queue"
	"github.com/seatsurge/seatsurge/internal/rateLimit"
	"github.com/seatsurge/seatsurge/internal/seatcache"
	"github.com/seatsurge/seatsurge/internal/seatlock"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestIntegration_QueueAndSeatLockFlow(t *testing.T) {
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer crdbContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongo", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	crdbHost, err := crdbContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	crdbPort, err := crdbContainer.MappedPort(ctx, "26257")
	if err != nil {
		t.Fatal(err)
	}
	mongoHost, err := mongoContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatal(err)
	}
	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}
	rabbitHost, err := rabbitContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rabbitPort, err := rabbitContainer.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		CRDBDSN:        "postgresql://root@" + crdbHost + ":" + crdbPort.Port() + "/seatsurge?sslmode=disable",
		MongoURI:       "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:      redisHost + ":" + redisPort.Port(),
		RabbitURL:      "amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/",
		OTLPEndpoint:   "", // Skip otel for test
		HoldTTL:        5 * time.Minute,
		AccessKeyTTL:   10 * time.Minute,
		SequenceExpiry: 2 * time.Second,
		MaxActiveUsers: 100,
		AdmitBatch:     10,
	}

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	_, err = pool.Exec(ctx, `
		CREATE DATABASE IF NOT EXISTS seatsurge;
		CREATE TABLE IF NOT EXISTS seatsurge.sale_events (
			id INT PRIMARY KEY,
			name TEXT NOT NULL,
			queue_active BOOL NOT NULL DEFAULT true
		);
		CREATE TABLE IF NOT EXISTS seatsurge.event_seats (
			event_id INT NOT NULL,
			seat_id INT NOT NULL,
			section TEXT NOT NULL,
			seat_row TEXT NOT NULL,
			seat_number INT NOT NULL,
			PRIMARY KEY (event_id, seat_id)
		);
		CREATE TABLE IF NOT EXISTS seatsurge.tickets (
			event_id INT NOT NULL,
			seat_id INT NOT NULL,
			user_id INT NOT NULL,
			PRIMARY KEY (event_id, seat_id)
		);
	`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = pool.Exec(ctx, `INSERT INTO seatsurge.sale_events (id, name, queue_active) VALUES (1, 'Integration Sale', true)`)
	if err != nil {
		t.Fatal(err)
	}
	crdbRepo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	logger := observability.NewLogger()
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("seatsurge"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	queueStore := redisadapter.NewQueue(redisClient, cfg.SequenceExpiry)
	accessStore := redisadapter.NewAccessStore(redisClient)
	seatStore := redisadapter.NewSeatStore(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisClient)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}

	issuer := admission.NewIssuer(accessStore, cfg.AccessKeyTTL, logger)
	queueSvc := queue.NewService(queueStore, crdbRepo, issuer, logger)
	locks := seatlock.NewManager(seatStore, seatStore, rabbitPub, cfg.HoldTTL, logger)
	cache := seatcache.NewService(seatStore, crdbRepo, logger)

	handlers := httphandler.NewHandlers(cfg, queueSvc, issuer, locks, cache, crdbRepo, audit, idemp, logger)
	r := httphandler.SetupRouter(handlers, logger, rl, issuer)

	srv := &http.Server{Addr: ":8080", Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Error(err)
		}
	}()
	defer srv.Shutdown(ctx)
	time.Sleep(100 * time.Millisecond)

	base := "http://localhost:8080"
	userID := int64(7)

	// Warm the seat map with synthetic seats.
	warmBody, _ := json.Marshal(map[string]interface{}{"total_seats": 10})
	resp := doReq(t, "POST", base+"/v1/admin/events/1/cache/warmup", warmBody, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("warmup failed: status %d", resp.StatusCode)
	}

	// Join the gated queue.
	headers := map[string]string{
		"X-User-ID":       strconv.FormatInt(userID, 10),
		"Idempotency-Key": uuid.New().String(),
	}
	resp = doReq(t, "POST", base+"/v1/queue/1/apply", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("apply failed: status %d", resp.StatusCode)
	}
	var applyResp domain.AdmissionResult
	json.NewDecoder(resp.Body).Decode(&applyResp)
	if applyResp.Status != domain.AdmissionWaiting || applyResp.Rank != 1 {
		t.Fatalf("expected WAITING rank 1, got %+v", applyResp)
	}

	// Duplicate join is rejected.
	headers["Idempotency-Key"] = uuid.New().String()
	resp = doReq(t, "POST", base+"/v1/queue/1/apply", nil, headers)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate join, got %d", resp.StatusCode)
	}

	resp = doReq(t, "GET", base+"/v1/queue/1", nil, nil)
	var queueResp struct {
		Waiting int64 `json:"waiting"`
	}
	json.NewDecoder(resp.Body).Decode(&queueResp)
	if queueResp.Waiting != 1 {
		t.Fatalf("expected 1 waiting, got %d", queueResp.Waiting)
	}

	// Admit the head of the queue.
	pollBody, _ := json.Marshal(map[string]interface{}{"count": 5})
	resp = doReq(t, "POST", base+"/v1/admin/queue/1/poll", pollBody, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll failed: status %d", resp.StatusCode)
	}
	var pollResp struct {
		Admitted []struct {
			UserID    int64  `json:"user_id"`
			AccessKey string `json:"access_key"`
		} `json:"admitted"`
	}
	json.NewDecoder(resp.Body).Decode(&pollResp)
	if len(pollResp.Admitted) != 1 || pollResp.Admitted[0].UserID != userID {
		t.Fatalf("expected user %d admitted, got %+v", userID, pollResp.Admitted)
	}
	accessKey := pollResp.Admitted[0].AccessKey

	authed := map[string]string{
		"X-User-ID":    strconv.FormatInt(userID, 10),
		"X-Access-Key": accessKey,
	}

	// A wrong key is rejected at the door.
	badAuth := map[string]string{"X-User-ID": strconv.FormatInt(userID, 10), "X-Access-Key": "bogus"}
	resp = doReq(t, "GET", base+"/v1/events/1/seats/3/eligibility", nil, badAuth)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", resp.StatusCode)
	}

	// Seed a temporary hold for the user, then promote it.
	expires := time.Now().Add(time.Minute).UTC()
	reserved := time.Now().UTC()
	hold := domain.SeatStatus{
		EventID:    1,
		SeatID:     3,
		State:      domain.SeatReserved,
		UserID:     &userID,
		ReservedAt: &reserved,
		ExpiresAt:  &expires,
		SeatLabel:  "A-3",
	}
	if err := seatStore.Update(ctx, hold); err != nil {
		t.Fatal(err)
	}
	if err := seatStore.SetHoldMarker(ctx, 1, 3, time.Minute); err != nil {
		t.Fatal(err)
	}

	resp = doReq(t, "POST", base+"/v1/events/1/seats/3/lock", nil, authed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lock failed: status %d", resp.StatusCode)
	}
	var lockResp domain.SeatLockResult
	json.NewDecoder(resp.Body).Decode(&lockResp)
	if !lockResp.Success || !lockResp.MarkerRemoved {
		t.Fatalf("expected successful lock with marker removal, got %+v", lockResp)
	}
	locked, err := seatStore.Get(ctx, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if locked.ExpiresAt != nil {
		t.Fatalf("durable lock must have no expiry, got %v", locked.ExpiresAt)
	}

	// Locking someone else's seat is forbidden.
	foreign := map[string]string{"X-User-ID": "8", "X-Access-Key": accessKey}
	resp = doReq(t, "POST", base+"/v1/events/1/seats/3/lock", nil, foreign)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for borrowed key, got %d", resp.StatusCode)
	}

	// Restore the lock back to a temporary hold.
	restoreBody, _ := json.Marshal(map[string]interface{}{"with_ttl": true})
	resp = doReq(t, "POST", base+"/v1/events/1/seats/3/restore", restoreBody, authed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore failed: status %d", resp.StatusCode)
	}
	restored, err := seatStore.Get(ctx, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if restored.ExpiresAt == nil {
		t.Fatal("restore with TTL must set an expiry")
	}

	// Seat map dashboard reflects the hold.
	resp = doReq(t, "GET", base+"/v1/events/1/seats/", nil, nil)
	var statusResp seatcache.CacheStatus
	json.NewDecoder(resp.Body).Decode(&statusResp)
	if statusResp.Total != 10 || statusResp.Reserved != 1 {
		t.Fatalf("expected 10 total / 1 reserved, got %+v", statusResp)
	}

	// Flip the gate off: next join enters immediately.
	gateBody, _ := json.Marshal(map[string]interface{}{"active": false})
	resp = doReq(t, "POST", base+"/v1/admin/events/1/gate", gateBody, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("gate flip failed: status %d", resp.StatusCode)
	}
	headers = map[string]string{
		"X-User-ID":       "9",
		"Idempotency-Key": uuid.New().String(),
	}
	resp = doReq(t, "POST", base+"/v1/queue/1/apply", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ungated apply failed: status %d", resp.StatusCode)
	}
	var entryResp domain.AdmissionResult
	json.NewDecoder(resp.Body).Decode(&entryResp)
	if entryResp.Status != domain.AdmissionImmediateEntry || entryResp.AccessKey == "" {
		t.Fatalf("expected IMMEDIATE_ENTRY with key, got %+v", entryResp)
	}

	// Release the admission slot.
	resp = doReq(t, "POST", base+"/v1/access/release", nil, authed)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("release failed: status %d", resp.StatusCode)
	}
}

func doReq(t *testing.T, method, url string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader([]byte("{}"))
	} else {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}
