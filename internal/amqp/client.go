// Package amqp connects hisab processes through RabbitMQ: a fanout
// exchange broadcasts collection-change notifications so every instance
// refreshes its live snapshots, and a durable queue feeds the sheets
// export worker.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
)

const (
	maxFailures     = 5
	openProbeAfter  = 30 * time.Second
	publishTimeout  = 5 * time.Second
	maxBackoff      = 30 * time.Second
	changesExchange = ".changes"
)

type Client struct {
	url          string
	exchangeName string
	queueName    string

	conn    *amqp091.Connection
	channel *amqp091.Channel

	// Circuit breaker state, touched only through atomics.
	failureCount int64
	lastFailure  int64 // unix nanos
	state        int32
}

// NewClient dials the broker and declares the export exchange/queue plus
// the fanout change exchange.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		conn:         conn,
		channel:      channel,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	// Durable direct exchange for export messages
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	// Fanout exchange for change notifications: every bound instance gets
	// every message.
	err = c.channel.ExchangeDeclare(
		c.exchangeName+changesExchange,
		"fanout",
		false, // transient: a missed notification only delays convergence
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare changes exchange: %w", err)
	}

	return nil
}

// PublishChange broadcasts a collection-change notification to all other
// running instances.
func (c *Client) PublishChange(ctx context.Context, collection string) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("amqp circuit open, dropping change notification")
	}

	body, err := NewChangeMessage(collection).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName+changesExchange,
		"", // fanout ignores the routing key
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish change: %w", err)
	}

	c.recordSuccess()
	slog.DebugContext(ctx, "Published change notification", "collection", collection)
	return nil
}

// PublishExport queues one transaction for the sheets export worker.
func (c *Client) PublishExport(ctx context.Context, id string) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("amqp circuit open, dropping export message")
	}

	body, err := NewExportMessage(id).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName,
		c.queueName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish export: %w", err)
	}

	c.recordSuccess()
	slog.InfoContext(ctx, "Published export message",
		"id", id,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// ConsumeChanges binds a private queue to the fanout exchange and calls
// handler for every notification until the context ends. Handler errors
// are logged, never fatal: the next notification re-converges state.
func (c *Client) ConsumeChanges(ctx context.Context, handler func(*ChangeMessage) error) error {
	q, err := c.channel.QueueDeclare(
		"",    // broker-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive to this instance
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare changes queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, "", c.exchangeName+changesExchange, false, nil); err != nil {
		return fmt.Errorf("bind changes queue: %w", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming changes: %w", err)
	}

	slog.InfoContext(ctx, "Listening for change notifications", "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("changes channel closed")
			}
			msg, err := ChangeMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal change message", "error", err)
				continue
			}
			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Change handler failed",
					"collection", msg.Collection, "error", err)
			}
		}
	}
}

// ConsumeExports processes export messages with manual acks. A handler
// error nacks and requeues so no recorded transaction is silently lost.
func (c *Client) ConsumeExports(ctx context.Context, handler func(*ExportMessage) error) error {
	msgs, err := c.channel.Consume(
		c.queueName,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming export messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			msg, err := ExportMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle export message",
					"error", err, "id", msg.ID)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
		}
	}
}

// runResilient keeps consume alive across broker outages. When consume
// fails with a connection error it reconnects (with backoff) and starts
// over; any other error is returned to the caller.
func runResilient(ctx context.Context, consume, reconnect func(context.Context) error) error {
	for {
		err := consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}
		slog.WarnContext(ctx, "AMQP consumer lost connection, reconnecting", "error", err)
		if err := reconnect(ctx); err != nil {
			return err
		}
	}
}

// RunChangesConsumer is ConsumeChanges wrapped in reconnect-on-outage.
func (c *Client) RunChangesConsumer(ctx context.Context, handler func(*ChangeMessage) error) error {
	return runResilient(ctx, func(ctx context.Context) error {
		return c.ConsumeChanges(ctx, handler)
	}, c.Reconnect)
}

// RunExportsConsumer is ConsumeExports wrapped in reconnect-on-outage.
func (c *Client) RunExportsConsumer(ctx context.Context, handler func(*ExportMessage) error) error {
	return runResilient(ctx, func(ctx context.Context) error {
		return c.ConsumeExports(ctx, handler)
	}, c.Reconnect)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// isCircuitOpen reports whether publishes should be short-circuited. The
// circuit half-opens after openProbeAfter to let one publish probe the
// broker.
func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	last := atomic.LoadInt64(&c.lastFailure)
	if time.Since(time.Unix(0, last)) > openProbeAfter {
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	atomic.StoreInt64(&c.lastFailure, time.Now().UnixNano())
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns the delay before reconnect attempt n, capped
// at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	d := time.Second << uint(attempt)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// isConnectionError distinguishes broker connectivity failures, which are
// worth a reconnect, from application errors, which are not.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, probe := range []string{
		"connection refused",
		"connection closed",
		"channel closed",
		"EOF",
		"broken pipe",
		"use of closed network connection",
	} {
		if strings.Contains(msg, probe) {
			return true
		}
	}
	return false
}

// Reconnect redials and redeclares topology with exponential backoff until
// it succeeds or the context ends.
func (c *Client) Reconnect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(exponentialBackoff(attempt)):
		}

		conn, err := amqp091.Dial(c.url)
		if err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed", "attempt", attempt, "error", err)
			continue
		}
		channel, err := conn.Channel()
		if err != nil {
			conn.Close()
			slog.WarnContext(ctx, "AMQP channel reopen failed", "attempt", attempt, "error", err)
			continue
		}

		c.Close()
		c.conn = conn
		c.channel = channel
		if err := c.setup(); err != nil {
			slog.WarnContext(ctx, "AMQP topology redeclare failed", "attempt", attempt, "error", err)
			continue
		}

		c.recordSuccess()
		slog.InfoContext(ctx, "AMQP reconnected", "attempt", attempt)
		return nil
	}
}
