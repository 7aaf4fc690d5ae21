package main

import (
	"context"
	"fmt"
	"log"
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
	"github.com/seatsurge/seatsurge/internal/observability"
	"github.com/seatsurge/seatsurge/internal/queue"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database("seatsurge"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	queueStore := redisadapter.NewQueue(redisClient, cfg.SequenceExpiry)
	accessStore := redisadapter.NewAccessStore(redisClient)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}

	issuer := admission.NewIssuer(accessStore, cfg.AccessKeyTTL, logger)
	queueSvc := queue.NewService(queueStore, repo, issuer, logger)

	worker := NewAdmissionWorker(repo, queueSvc, issuer, rabbitPub, audit, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.WorkerInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown admission worker")
}

// AdmissionWorker drains the head of each active queue on a fixed interval,
// admitting only as many users as the active-user cap leaves room for.
type AdmissionWorker struct {
	repo      *crdb.Repository
	queue     *queue.Service
	issuer    *admission.Issuer
	rabbitPub *rabbit.Publisher
	audit     *mongoadapter.AuditLogger
	cfg       *config.Config
	logger    observability.Logger
}

func NewAdmissionWorker(repo *crdb.Repository, q *queue.Service, issuer *admission.Issuer, rabbitPub *rabbit.Publisher, audit *mongoadapter.AuditLogger, cfg *config.Config, logger observability.Logger) *AdmissionWorker {
	return &AdmissionWorker{repo: repo, queue: q, issuer: issuer, rabbitPub: rabbitPub, audit: audit, cfg: cfg, logger: logger}
}

func (w *AdmissionWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.logger.WithError(err).Error("admission tick failed")
			}
		}
	}
}

func (w *AdmissionWorker) tick(ctx context.Context) error {
	events, err := w.repo.ListActiveSaleEvents(ctx)
	if err != nil {
		return err
	}

	active, err := w.issuer.ActiveUsers(ctx)
	if err != nil {
		return err
	}
	capacity := int(w.cfg.MaxActiveUsers - active)
	if capacity <= 0 {
		w.logger.WithField("active", active).Debug("active-user cap reached, skipping tick")
		return nil
	}

	for _, event := range events {
		batch := w.cfg.AdmitBatch
		if batch > capacity {
			batch = capacity
		}
		if batch == 0 {
			break
		}

		users, err := w.queue.Poll(ctx, event.ID, batch)
		if err != nil {
			w.logger.WithError(err).WithField("event_id", event.ID).Error("poll failed")
			continue
		}
		for _, userID := range users {
			if err := w.admitWithRetry(ctx, event.ID, userID); err != nil {
				w.logger.WithError(err).WithField("user_id", userID).Error("admit failed after retries")
				continue
			}
			capacity--
		}
	}
	return nil
}

func (w *AdmissionWorker) admitWithRetry(ctx context.Context, eventID, userID int64) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		grant, err := w.issuer.GrantImmediateAccess(ctx, userID)
		if err != nil {
			backoff := time.Duration(1<<i) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}

		w.rabbitPub.PublishAdmission(ctx, eventID, userID, grant.Key)
		w.audit.LogEvent(ctx, "queue.admitted", userID, map[string]interface{}{
			"event_id":   eventID,
			"expires_at": grant.ExpiresAt,
		})
		return nil
	}
	return fmt.Errorf("failed after %d retries", maxRetries)
}
