// internal/consumer/consumer.go
package consumer

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"tenancy/internal/messaging"
	"tenancy/internal/metrics"
	"tenancy/internal/model"
)

// Recorder is where ingested warnings land; both health tracker backends
// satisfy it.
type Recorder interface {
	Record(w model.TenancyWarning)
}

// Consumer drains remotely emitted tenancy warnings into the tracker.
type Consumer struct {
	Channel     *amqp.Channel
	StopChan    chan struct{}
	DoneChan    chan struct{}
	ConsumerTag string

	recorder Recorder
	logger   *zap.Logger
}

// StartConsumer begins draining the warning queue on its own goroutine.
func StartConsumer(conn *amqp.Connection, recorder Recorder, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	const consumerTag = "tenancy-warning-ingest"
	msgs, err := ch.Consume(
		messaging.WarningQueue,
		consumerTag,
		false, // autoAck: false to handle manually
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming warnings: %w", err)
	}

	c := &Consumer{
		Channel:     ch,
		StopChan:    make(chan struct{}),
		DoneChan:    make(chan struct{}),
		ConsumerTag: consumerTag,
		recorder:    recorder,
		logger:      logger,
	}

	go c.consumeLoop(msgs)

	logger.Info("warning ingest consumer started")
	return c, nil
}

// consumeLoop processes messages until StopChan is closed. Payloads that do
// not decode are rejected to the DLQ rather than retried.
func (c *Consumer) consumeLoop(msgs <-chan amqp.Delivery) {
	defer close(c.DoneChan)

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("warning delivery channel closed")
				return
			}
			var w model.TenancyWarning
			if err := json.Unmarshal(msg.Body, &w); err != nil {
				c.logger.Warn("undecodable warning payload", zap.Error(err))
				_ = msg.Nack(false, false)
				continue
			}
			c.recorder.Record(w)
			metrics.WarningsRecorded.WithLabelValues(string(w.WarnType)).Inc()
			_ = msg.Ack(false)

		case <-c.StopChan:
			_ = c.Channel.Cancel(c.ConsumerTag, false)
			return
		}
	}
}

// Stop signals the consumer to stop and waits for cleanup
func (c *Consumer) Stop() {
	close(c.StopChan)
	<-c.DoneChan
	_ = c.Channel.Close()
	c.logger.Info("warning ingest consumer stopped")
}
