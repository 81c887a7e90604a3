package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler receives decoded commands.
type Handler interface {
	Handle(ctx context.Context, cmd Command) error
}

type ConsumerConfig struct {
	URL      string
	Queue    string
	Prefetch int
}

// Consumer reads commands from a durable queue.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) (*Consumer, error) {
	conn, ch, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 10
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		conn:    conn,
		channel: ch,
		queue:   cfg.Queue,
		handler: handler,
		logger:  logger.With("component", "consumer", "queue", cfg.Queue),
	}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	const tag = "wpsync"

	deliveries, err := c.channel.Consume(c.queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("consumer started")

	for {
		select {
		case <-ctx.Done():
			_ = c.channel.Cancel(tag, false)
			c.logger.Info("consumer stopped")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	if err := c.process(ctx, d.Body); err != nil {
		c.logger.Error("command rejected", "error", err, "body", string(d.Body))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// process decodes and hands off one message. Any error drops the message:
// retries happen in the scheduler, not through redelivery.
func (c *Consumer) process(ctx context.Context, body []byte) error {
	cmd, err := DecodeCommand(body)
	if err != nil {
		return err
	}

	c.logger.Debug("received command",
		"action", cmd.Action,
		"content_type", cmd.ContentType,
		"id", cmd.ID,
	)

	if err := c.handler.Handle(ctx, cmd); err != nil {
		return fmt.Errorf("handle %s: %w", cmd.Action, err)
	}
	return nil
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
