package messaging

import (
	"context"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var connectRetryInterval = 5 * time.Second

// Connection owns one long-lived AMQP connection and channel for the whole
// process. Publishers and consumers receive it explicitly instead of sharing
// a package-level singleton.
type Connection struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker, retrying every 5 seconds until it succeeds or
// ctx is cancelled. Services are expected to start before the broker is
// ready, so there is no retry cap and no backoff growth.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Connection, error) {
	return dialWithRetry(ctx, logger, func() (*Connection, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, err
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, err
		}

		return &Connection{conn: conn, ch: ch}, nil
	})
}

func dialWithRetry(ctx context.Context, logger *slog.Logger, connect func() (*Connection, error)) (*Connection, error) {
	for {
		conn, err := connect()
		if err == nil {
			logger.Info("connected to broker")
			return conn, nil
		}

		logger.Warn("broker not ready, retrying", "error", err, "retry_in", connectRetryInterval)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectRetryInterval):
		}
	}
}

func (c *Connection) Channel() *amqp.Channel {
	return c.ch
}

// NewChannel opens an additional channel on the shared connection. Each
// consumer loop gets its own channel so Qos and acknowledgments stay
// independent of the publishing channel.
func (c *Connection) NewChannel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

func (c *Connection) Close() error {
	if err := c.ch.Close(); err != nil {
		_ = c.conn.Close()
		return err
	}
	return c.conn.Close()
}
