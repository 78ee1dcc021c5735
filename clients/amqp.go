package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/videonest/videonest/errors"
	"github.com/videonest/videonest/log"
)

const publishTimeout = 10 * time.Second

// QueuePublisher is the producer half of the broker client. Consumers of the
// pipeline take this narrow interface so tests can swap in a recorder.
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// HandleFunc processes one delivery. The consumer loop translates the return
// value into an acknowledgement decision:
//
//	nil                      -> ack
//	errors.IsUnretriable     -> nack without requeue (poisoned or reproducibly broken)
//	anything else            -> nack with requeue (transient, broker redelivers)
//
// Handlers that want to swallow a poison message entirely (ack and drop)
// should log it and return nil.
type HandleFunc func(ctx context.Context, body []byte) error

// AMQPClient is a thin re-connecting RabbitMQ client. All queues it touches
// are durable, non-exclusive and non-auto-delete; publishes are persistent.
// Reconnection is transparent to handlers: on connection loss the client
// re-dials, re-declares its queues and resumes consuming. Unacknowledged
// in-flight deliveries are redelivered by the broker.
type AMQPClient struct {
	url    string
	queues []string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPClient dials the broker and declares the given queues.
func NewAMQPClient(url string, queues ...string) (*AMQPClient, error) {
	c := &AMQPClient{url: url, queues: queues}
	if err := c.connect(); err != nil {
		return nil, err
	}
	log.LogNoVideoID("connected to RabbitMQ", "url", log.RedactURL(url), "queues", fmt.Sprintf("%v", queues))
	return c, nil
}

// connect (re-)establishes the shared connection and publish channel and
// re-declares every queue. Callers must not hold c.mu.
func (c *AMQPClient) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dialling RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("opening channel: %w", err)
	}
	for _, q := range c.queues {
		if err := declareQueue(ch, q); err != nil {
			conn.Close()
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}
	c.conn, c.ch = conn, ch
	return nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	// durable, not auto-delete, not exclusive
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring queue %s: %w", name, err)
	}
	return nil
}

// Publish sends a persistent JSON message to the given queue via the default
// exchange. On a broken connection it re-dials and retries with exponential
// backoff before giving up.
func (c *AMQPClient) Publish(ctx context.Context, queue string, body []byte) error {
	operation := func() error {
		c.mu.Lock()
		ch := c.ch
		c.mu.Unlock()
		if ch == nil || ch.IsClosed() {
			if err := c.connect(); err != nil {
				return err
			}
			c.mu.Lock()
			ch = c.ch
			c.mu.Unlock()
		}

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		err := ch.PublishWithContext(pubCtx, "", queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
		if err != nil {
			// force a reconnect on the next attempt
			c.mu.Lock()
			if c.conn != nil {
				c.conn.Close()
			}
			c.mu.Unlock()
			return fmt.Errorf("publishing to %s: %w", queue, err)
		}
		return nil
	}
	return backoff.Retry(operation, backoff.WithContext(publishRetries(), ctx))
}

// Consume runs a consumer loop on the given queue until ctx is cancelled.
// prefetch bounds the number of unacknowledged deliveries held at once; the
// pipeline uses 1 so each worker owns a single job at a time.
func (c *AMQPClient) Consume(ctx context.Context, queue, consumerTag string, prefetch int, handler HandleFunc) error {
	reconnect := consumeRetries()
	for {
		err := c.consumeOnce(ctx, queue, consumerTag, prefetch, handler)
		if ctx.Err() != nil {
			return nil
		}
		wait := reconnect.NextBackOff()
		log.LogNoVideoID("consumer disconnected, reconnecting", "queue", queue, "err", err.Error(), "backoff", wait.String())
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
		if err := c.connect(); err != nil {
			continue
		}
		reconnect.Reset()
	}
}

func (c *AMQPClient) consumeOnce(ctx context.Context, queue, consumerTag string, prefetch int, handler HandleFunc) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("connection not open")
	}

	// Consumers get their own channel so that prefetch limits and channel
	// failures never interfere with the shared publish channel.
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("setting prefetch on %s: %w", queue, err)
	}
	if err := declareQueue(ch, queue); err != nil {
		return err
	}

	// manual ack, not exclusive
	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("starting consumer on %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}
			c.handleDelivery(ctx, queue, msg, handler)
		}
	}
}

func (c *AMQPClient) handleDelivery(ctx context.Context, queue string, msg amqp.Delivery, handler HandleFunc) {
	err := handler(ctx, msg.Body)
	switch {
	case err == nil:
		if err := msg.Ack(false); err != nil {
			log.LogNoVideoID("failed to ack delivery", "queue", queue, "err", err.Error())
		}
	case errors.IsUnretriable(err):
		log.LogNoVideoID("dropping unretriable delivery", "queue", queue, "err", err.Error())
		if err := msg.Nack(false, false); err != nil {
			log.LogNoVideoID("failed to nack delivery", "queue", queue, "err", err.Error())
		}
	default:
		log.LogNoVideoID("requeueing delivery after transient failure", "queue", queue, "err", err.Error())
		if err := msg.Nack(false, true); err != nil {
			log.LogNoVideoID("failed to nack delivery", "queue", queue, "err", err.Error())
		}
	}
}

// Close shuts the connection down. In-flight unacknowledged deliveries are
// returned to the broker for redelivery elsewhere.
func (c *AMQPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

func publishRetries() backoff.BackOff {
	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 5 * time.Second
	backOff.MaxElapsedTime = 0 // retries are bounded by count, not time
	return backoff.WithMaxRetries(backOff, 5)
}

func consumeRetries() backoff.BackOff {
	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 1 * time.Second
	backOff.MaxInterval = 30 * time.Second
	backOff.MaxElapsedTime = 0 // keep reconnecting for as long as we run
	return backOff
}
