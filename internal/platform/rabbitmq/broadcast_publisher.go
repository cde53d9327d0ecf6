package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// BroadcastEvent is the body of every message on the broadcast exchange.
// Origin is the instance id of the publisher so it can skip its own frames.
type BroadcastEvent struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

type BroadcastPublisher struct {
	conn     *amqp.Connection
	exchange string
	origin   string
}

func NewBroadcastPublisher(conn *amqp.Connection, exchange, origin string) *BroadcastPublisher {
	return &BroadcastPublisher{
		conn:     conn,
		exchange: exchange,
		origin:   origin,
	}
}

func (p *BroadcastPublisher) Publish(ctx context.Context, frame []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	payload, err := json.Marshal(BroadcastEvent{Origin: p.origin, Frame: frame})
	if err != nil {
		return fmt.Errorf("marshal broadcast event failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		p.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Transient,
			AppId:        p.origin,
		},
	); err != nil {
		return fmt.Errorf("publish broadcast event failed: %w", err)
	}
	return nil
}
