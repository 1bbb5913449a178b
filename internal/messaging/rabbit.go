// internal/messaging/rabbit.go
package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"tenancy/internal/model"
)

// WarningQueue carries TenancyWarning JSON emitted by application nodes
// that run outside this process (the CRUD monolith's own guards). The
// engine's consumer drains it into the health tracker.
const (
	WarningQueue = "tenancy_warnings"
	WarningDLQ   = "tenancy_warnings_dlq"
)

type RabbitClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	URL     string
}

func NewRabbitClient(url string) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return &RabbitClient{
		conn:    conn,
		channel: ch,
		URL:     url,
	}, nil
}

func (r *RabbitClient) GetChannel() *amqp.Channel {
	return r.channel
}

func (r *RabbitClient) GetConnection() *amqp.Connection {
	return r.conn
}

// DeclareWarningQueue creates the durable warning queue with undecodable
// payloads dead-lettered aside for inspection.
func (r *RabbitClient) DeclareWarningQueue() error {
	_, err := r.channel.QueueDeclare(
		WarningDLQ,
		true, false, false, false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": WarningDLQ,
	}
	_, err = r.channel.QueueDeclare(
		WarningQueue,
		true, false, false, false,
		args,
	)
	if err != nil {
		return fmt.Errorf("declare warning queue: %w", err)
	}
	return nil
}

// PublishWarning sends one warning onto the queue. Application nodes link
// this package to emit; the engine itself records locally and never
// round-trips through the broker.
func (r *RabbitClient) PublishWarning(w model.TenancyWarning) error {
	body, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode warning: %w", err)
	}
	err = r.channel.Publish(
		"",           // default exchange
		WarningQueue, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish warning: %w", err)
	}
	return nil
}

// Close cleans up connection and channel
func (r *RabbitClient) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	if err := r.conn.Close(); err != nil {
		return err
	}
	return nil
}
