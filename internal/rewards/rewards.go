// Package rewards is the shim to the user-progression subsystem. Grants are
// fire and forget: a failed grant is logged and never rolls back the
// operation that earned it.
package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Experience amounts awarded by the core's operations.
const (
	RewardJoinServer = 10
	RewardUpdate     = 5
	RewardDelete     = 1
)

// Granter awards experience to a user.
type Granter interface {
	Grant(ctx context.Context, userID string, amount int) error
}

const (
	exchangeName = "experience"
	routingKey   = "experience.grant"
)

// Publisher forwards grants to the progression service over rabbitmq.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewPublisher(rabbitMQURL string) (*Publisher, error) {
	conn, err := amqp.Dial(rabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: ch}, nil
}

func (p *Publisher) Grant(ctx context.Context, userID string, amount int) error {
	body, err := json.Marshal(map[string]interface{}{
		"user_id":    userID,
		"experience": amount,
		"granted_at": time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
