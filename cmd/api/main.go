package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/seatsurge/seatsurge/internal/adapters/crdb"
	mongoadapter "github.com/seatsurge/seatsurge/internal/adapters/mongo"
	"github.com/seatsurge/seatsurge/internal/adapters/rabbit"
	redisadapter "github.com/seatsurge/seatsurge/internal/adapters/redis"
	"github.com/seatsurge/seatsurge/internal/admission"
	"github.com/seatsurge/seatsurge/internal/config"
	httphandler "github.com/seatsurge/seatsurge/internal/http"
	"github.com/seatsurge/seatsurge/internal/idempotency"
	"github.com/seatsurge/seatsurge/internal/observability"
	"github.com/seatsurge/seatsurge/internal/queue"
	"github.com/seatsurge/seatsurge/internal/rateLimit"
	"github.com/seatsurge/seatsurge/internal/seatcache"
	"github.com/seatsurge/seatsurge/internal/seatlock"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("seatsurge")
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	queueStore := redisadapter.NewQueue(redisClient, cfg.SequenceExpiry)
	accessStore := redisadapter.NewAccessStore(redisClient)
	seatStore := redisadapter.NewSeatStore(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(redisClient)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	issuer := admission.NewIssuer(accessStore, cfg.AccessKeyTTL, logger)
	queueSvc := queue.NewService(queueStore, crdbRepo, issuer, logger)
	locks := seatlock.NewManager(seatStore, seatStore, rabbitPub, cfg.HoldTTL, logger)
	cache := seatcache.NewService(seatStore, crdbRepo, logger)

	handlers := httphandler.NewHandlers(cfg, queueSvc, issuer, locks, cache, crdbRepo, audit, idemp, logger)

	r := httphandler.SetupRouter(handlers, logger, rl, issuer)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
