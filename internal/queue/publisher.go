package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/compsoc-edinburgh/events.comp-soc.com-sub000/internal/config"
)

// Publisher sends RegistrationStatusChanged messages to a durable queue on
// the default exchange. Each Publish call dials its own connection; the
// engine publishes once per committed operation, so connections are short
// lived.
type Publisher struct {
	url   string
	queue string
	log   *slog.Logger
}

// NewPublisher returns a Publisher for cfg, or nil when AMQP is disabled.
func NewPublisher(cfg config.AMQPConfig, logger *slog.Logger) *Publisher {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: cfg.URL, queue: cfg.Queue, log: logger}
}

// Publish sends every event as a persistent JSON message. Failures are logged
// and returned so the caller may ignore them without failing the request.
func (p *Publisher) Publish(ctx context.Context, events ...RegistrationStatusChanged) error {
	if p == nil || len(events) == 0 {
		return nil
	}
	cfg, err := dialConfig(ctx)
	if err != nil {
		return err
	}
	conn, err := amqp.DialConfig(p.url, cfg)
	if err != nil {
		p.log.Warn("rabbitmq: dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn("rabbitmq: channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		p.log.Warn("rabbitmq: queue declare failed", "queue", p.queue, "err", err)
		return err
	}

	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		pub := amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Type:         string(ev.Action),
			Body:         body,
		}
		if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
			p.log.Warn("rabbitmq: publish failed", "event_id", ev.EventID, "user_id", ev.UserID, "err", err)
			return err
		}
	}
	return nil
}

// dialTimeout is amqp091's own default, used when ctx has no deadline.
const dialTimeout = 30 * time.Second

// dialConfig bounds the TCP connect and the AMQP handshake by ctx's
// deadline.
func dialConfig(ctx context.Context) (amqp.Config, error) {
	timeout := dialTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d < timeout {
			timeout = d
		}
	}
	if err := ctx.Err(); err != nil {
		return amqp.Config{}, err
	}
	if timeout <= 0 {
		return amqp.Config{}, context.DeadlineExceeded
	}
	return amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	}, nil
}
