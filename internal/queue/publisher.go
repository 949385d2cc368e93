package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Publisher sends card events to a durable RabbitMQ queue.  It dials per
// publish: lifecycle events are rare (a handful per visit) and a fresh
// connection survives broker restarts without reconnect bookkeeping.
type Publisher struct {
	url     string
	queue   string
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewPublisher returns a publisher whose dial and publish together are
// bounded by timeout (2s when zero).
func NewPublisher(url, queue string, timeout time.Duration, log logrus.FieldLogger) *Publisher {
	if queue == "" {
		queue = "card.events"
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{url: url, queue: queue, timeout: timeout, log: log.WithField("component", "rabbitmq")}
}

// dialTimeout is the publisher timeout, shortened to ctx's deadline.
func (p *Publisher) dialTimeout(ctx context.Context) time.Duration {
	d := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	return d
}

// Publish declares the queue (idempotent) and publishes evt as a
// persistent JSON message on the default exchange.  Errors are logged
// and returned; callers treat them as non-fatal.
func (p *Publisher) Publish(ctx context.Context, evt CardEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.dialTimeout(ctx)),
	})
	if err != nil {
		p.log.WithError(err).Warn("dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		p.log.WithError(err).Warn("queue declare failed")
		return err
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(evt.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.log.WithError(err).WithField("event", evt.Type).Warn("publish failed")
		return err
	}
	return nil
}
