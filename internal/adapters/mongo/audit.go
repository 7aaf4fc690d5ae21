package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/seatsurge/seatsurge/internal/domain"
	"github.com/seatsurge/seatsurge/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger records admission grants and seat-state transitions for
// after-the-fact dispute handling. Best-effort: callers log and move on
// when a write fails.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    int64     `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, userID int64, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) LogAdmission(ctx context.Context, eventID int64, result domain.AdmissionResult, userID int64) error {
	data := map[string]interface{}{
		"event_id": eventID,
		"status":   string(result.Status),
		"rank":     result.Rank,
	}
	return a.LogEvent(ctx, "queue.apply", userID, data)
}

func (a *AuditLogger) LogSeatTransition(ctx context.Context, result domain.SeatLockResult) error {
	data := map[string]interface{}{
		"event_id":       result.EventID,
		"seat_id":        result.SeatID,
		"success":        result.Success,
		"reason":         string(result.Reason),
		"previous_state": string(result.PreviousState),
		"new_state":      string(result.NewState),
	}
	return a.LogEvent(ctx, "seat.transition", result.UserID, data)
}
