package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

// Connection is a hub dealing with a single RabbitMQ connection, lazily
// dialing on first use and reconnecting with bounded exponential backoff on
// loss, grounded on common/mrabbitmq/rabbitmq.go's RabbitMQConnection.
type Connection struct {
	URL    string
	Logger mlog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	closeCh chan *amqp.Error
}

// NewConnection builds a Connection that dials lazily.
func NewConnection(url string, logger mlog.Logger) *Connection {
	return &Connection{URL: url, Logger: logger}
}

// Channel opens a fresh AMQP channel on the (possibly newly dialed)
// connection, in confirm mode. Each consumer/publisher owns its own channel
// so that one channel error never tears down others (spec §4.2).
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return ch, nil
}

func (c *Connection) connect(ctx context.Context) (*amqp.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	var (
		conn *amqp.Connection
		err  error
	)

	backoff := 500 * time.Millisecond

	for attempt := 0; attempt < 10; attempt++ {
		conn, err = amqp.Dial(c.URL)
		if err == nil {
			break
		}

		c.Logger.Warnf("rabbitmq dial attempt %d failed: %v", attempt+1, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jitter(backoff)):
		}

		backoff = minDuration(backoff*2, 30*time.Second)
	}

	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	c.conn = conn
	c.closeCh = make(chan *amqp.Error, 1)
	conn.NotifyClose(c.closeCh)

	c.Logger.Info("connected to rabbitmq")

	return conn, nil
}

// Declare declares the fixed exchange/queue topology (spec §4.2), including
// each queue's paired retry (TTL + dead-letter back to primary) and DLQ.
func (c *Connection) Declare(ctx context.Context) error {
	ch, err := c.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	for _, ex := range []string{
		ExchangePaymentsTopic, ExchangePaymentsSaga, ExchangeNotificationsTopic,
		ExchangeCRMEmailTopic, ExchangeEventsTopic, ExchangePaymentsDLX, ExchangeCRMEmailDLX,
	} {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	for _, q := range Topology {
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DLQ(q.Name),
		}); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}

		for _, rk := range q.RoutingKeys {
			if err := ch.QueueBind(q.Name, rk, q.Exchange, false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", q.Name, rk, err)
			}
		}

		if _, err := ch.QueueDeclare(RetryQueue(q.Name), true, false, false, false, amqp.Table{
			"x-message-ttl":             int32(BackoffCap.Milliseconds()),
			"x-dead-letter-exchange":    q.Exchange,
			"x-dead-letter-routing-key": q.RoutingKeys[0],
		}); err != nil {
			return fmt.Errorf("declare retry queue for %s: %w", q.Name, err)
		}

		if _, err := ch.QueueDeclare(DLQ(q.Name), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dlq for %s: %w", q.Name, err)
		}
	}

	return nil
}

// Publish sends message to exchange/routingKey and blocks for the
// publisher confirmation, returning an error if it is not confirmed (spec
// §4.2: "publish(...) returns true only after publisher confirmation").
func (c *Connection) Publish(ctx context.Context, ch *amqp.Channel, exchange, routingKey string, message []byte, headers amqp.Table) error {
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         message,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	select {
	case confirm := <-confirms:
		if !confirm.Ack {
			return fmt.Errorf("publish to %s/%s was nacked by broker", exchange, routingKey)
		}

		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return fmt.Errorf("publish confirm timed out for %s/%s", exchange, routingKey)
	}
}

func jitter(base time.Duration) time.Duration {
	delta := float64(base) * BackoffJitter
	offset := (rand.Float64()*2 - 1) * delta

	return time.Duration(float64(base) + offset)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}

	return b
}
