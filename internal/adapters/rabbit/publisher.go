package rabbit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/seatsurge/seatsurge/internal/domain"
)

const exchange = "seatsurge.events"

// Publisher notifies downstream consumers of seat-state transitions and
// queue admissions. Fire-and-forget: no confirms are awaited.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}

// PublishSeatUpdate emits the full seat row under "seat.updated".
func (p *Publisher) PublishSeatUpdate(ctx context.Context, seat domain.SeatStatus) error {
	payload, err := json.Marshal(seat)
	if err != nil {
		return err
	}
	return p.Publish(ctx, "seat.updated", amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        payload,
	})
}

// PublishAdmission emits one "queue.admitted" message per admitted user.
func (p *Publisher) PublishAdmission(ctx context.Context, eventID, userID int64, accessKey string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"event_id":   eventID,
		"user_id":    userID,
		"access_key": accessKey,
	})
	if err != nil {
		return err
	}
	return p.Publish(ctx, "queue.admitted", amqp.Publishing{
		MessageId:   uuid.New().String(),
		ContentType: "application/json",
		Body:        payload,
	})
}
