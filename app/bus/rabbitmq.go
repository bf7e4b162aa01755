package bus

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// RabbitMQPublisher publishes domain events to a durable topic exchange.
// Routing key is the event type; the aggregate id rides along as the
// correlation id so partitioned consumers can keep per-aggregate ordering.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRabbitMQPublisher(url string, exchange string) (*RabbitMQPublisher, error) {
	var conn *amqp.Connection
	var err error

	// The broker can be slower to come up than this process.
	for i := 0; i < 10; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logrus.WithError(err).WithField("attempt", i+1).Warn("RabbitMQ connect failed, retrying")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
	}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, messageID string, topic string, key string, payload []byte) error {
	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange,
		topic, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:     messageID,
			CorrelationId: key,
			ContentType:   "application/json",
			Body:          payload,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now().UTC(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for broker confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message %s", messageID)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() {
	_ = p.channel.Close()
	_ = p.conn.Close()
}
