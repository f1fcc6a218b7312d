package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const notificationQueueName = "booking.notifications"

// Publisher publishes notification events to the broker. It attempts
// to be robust and to never panic; any error is logged and returned so
// the caller can choose to ignore it. Messages are marked persistent.
type Publisher struct {
	url string
	log *zap.SugaredLogger
}

// NewPublisher returns a publisher for the given broker URL.
func NewPublisher(url string, log *zap.SugaredLogger) *Publisher {
	return &Publisher{url: url, log: log}
}

// Publish sends one event to the booking.notifications queue. The
// queue is declared durable on every publish so ordering between
// publisher and consumer startup does not matter.
func (p *Publisher) Publish(ctx context.Context, event NotificationEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warnw("rabbitmq dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warnw("rabbitmq channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(notificationQueueName, true, false, false, false, nil); err != nil {
		p.log.Warnw("rabbitmq queue declare failed", "err", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", notificationQueueName, false, false, pub); err != nil {
		p.log.Warnw("rabbitmq publish failed", "err", err)
		return err
	}
	return nil
}
