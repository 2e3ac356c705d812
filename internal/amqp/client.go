package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fintrix/internal/jobs"
	applog "fintrix/internal/log"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// Client publishes and consumes recurring units over RabbitMQ. Publishing is
// guarded by a circuit breaker; consuming reconnects with exponential
// backoff until stopped.
type Client struct {
	url          string
	exchangeName string
	queueName    string
	policy       jobs.RetryPolicy
	prefetch     int

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	failMu       sync.Mutex
	lastFailure  time.Time

	consumeMu     sync.Mutex
	consumeCancel context.CancelFunc
	wg            sync.WaitGroup

	// republish sends a retried unit back to the exchange. Nil means
	// PublishRecurringDue.
	republish func(ctx context.Context, job *jobs.RecurringDue) error
}

var (
	_ jobs.Publisher = (*Client)(nil)
	_ jobs.Consumer  = (*Client)(nil)
)

// NewClient dials the broker and declares the exchange and queue. prefetch
// bounds how many unacknowledged units one consumer holds, and is also the
// number of concurrent handlers.
func NewClient(url, exchangeName, queueName string, policy jobs.RetryPolicy, prefetch int) (*Client, error) {
	if prefetch < 1 {
		prefetch = 1
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		policy:       policy,
		prefetch:     prefetch,
	}

	c.mu.Lock()
	err := c.connectLocked()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	slog.Info("Connected to AMQP broker",
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

func setup(ch *amqp091.Channel, exchangeName, queueName string) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key is the queue name on the direct exchange.
	if err := ch.QueueBind(queueName, queueName, exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// liveConnection returns an open connection and publish channel, redialing
// if either was closed.
func (c *Client) liveConnection() (*amqp091.Connection, *amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() || c.channel == nil || c.channel.IsClosed() {
		c.closeLocked()
		if err := c.connectLocked(); err != nil {
			return nil, nil, err
		}
	}
	return c.conn, c.channel, nil
}

// PublishRecurringDue implements jobs.Publisher.
func (c *Client) PublishRecurringDue(ctx context.Context, job *jobs.RecurringDue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, refusing to publish unit for transaction %s", job.TransactionID)
	}

	body, err := encodeRecurringDue(job)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, ch, err := c.liveConnection()
	if err != nil {
		c.recordFailure()
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		pubCtx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    job.JobID,
			Timestamp:    job.EnqueuedAt,
			Headers:      amqp091.Table{attemptHeader: int32(job.Attempt)},
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.mu.Lock()
			c.closeLocked()
			c.mu.Unlock()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	slog.DebugContext(ctx, "Published recurring unit",
		"job_id", job.JobID,
		applog.FieldTransactionID, job.TransactionID,
		"attempt", job.Attempt)

	return nil
}

// Start implements jobs.Consumer. It verifies the broker is reachable, then
// consumes in the background until ctx ends or Stop is called.
func (c *Client) Start(ctx context.Context, handler jobs.Handler) error {
	if _, _, err := c.liveConnection(); err != nil {
		return err
	}

	c.consumeMu.Lock()
	defer c.consumeMu.Unlock()
	if c.consumeCancel != nil {
		return errors.New("consumer already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.consumeCancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx, handler)
	return nil
}

func (c *Client) consumeLoop(ctx context.Context, handler jobs.Handler) {
	defer c.wg.Done()

	attempt := 0
	for {
		established, err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		if established {
			attempt = 0
		}

		delay := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "AMQP consumer interrupted, reconnecting",
			applog.FieldError, err,
			"backoff", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// consume runs one consumer session. established reports whether the
// session got as far as receiving deliveries.
func (c *Client) consume(ctx context.Context, handler jobs.Handler) (established bool, err error) {
	conn, _, err := c.liveConnection()
	if err != nil {
		return false, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return false, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return false, fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming recurring units",
		"queue", c.queueName,
		"workers", c.prefetch)

	var workers sync.WaitGroup
	for i := 0; i < c.prefetch; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.handleDelivery(ctx, ch, d, handler)
				}
			}
		}()
	}
	workers.Wait()

	if ctx.Err() != nil {
		return true, ctx.Err()
	}
	return true, errors.New("delivery channel closed")
}

func (c *Client) handleDelivery(ctx context.Context, ch *amqp091.Channel, d amqp091.Delivery, handler jobs.Handler) {
	job, err := decodeRecurringDue(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to unmarshal recurring unit", applog.FieldError, err)
		d.Nack(false, false) // reject and don't requeue
		return
	}
	job.Attempt = attemptFromHeaders(d.Headers, job.Attempt)

	err = handler(ctx, job)
	switch {
	case err == nil:
		d.Ack(false)
		return
	case jobs.IsPermanent(err):
		slog.WarnContext(ctx, "Dropping recurring unit",
			"job_id", job.JobID,
			applog.FieldTransactionID, job.TransactionID,
			applog.FieldError, err)
		d.Nack(false, false)
		return
	case !c.policy.ShouldRetry(err, job.Attempt):
		slog.ErrorContext(ctx, "Recurring unit permanently failed",
			"job_id", job.JobID,
			applog.FieldTransactionID, job.TransactionID,
			applog.FieldUserID, job.UserID,
			"attempts", job.Attempt,
			applog.FieldError, err)
		d.Nack(false, false)
		return
	}

	delay := c.policy.Backoff(job.Attempt)
	slog.WarnContext(ctx, "Retrying recurring unit",
		"job_id", job.JobID,
		applog.FieldTransactionID, job.TransactionID,
		"attempt", job.Attempt+1,
		"backoff", delay,
		applog.FieldError, err)

	select {
	case <-ctx.Done():
		d.Nack(false, true) // shutting down, hand it back
		return
	case <-time.After(delay):
	}

	publish := c.republish
	if publish == nil {
		publish = c.PublishRecurringDue
	}
	retry := *job
	retry.Attempt++
	if err := publish(ctx, &retry); err != nil {
		slog.ErrorContext(ctx, "Failed to republish recurring unit",
			"job_id", job.JobID,
			applog.FieldError, err)
		d.Nack(false, true) // reject and requeue
		return
	}
	d.Ack(false)
}

// Stop implements jobs.Consumer.
func (c *Client) Stop(ctx context.Context) error {
	c.consumeMu.Lock()
	cancel := c.consumeCancel
	c.consumeCancel = nil
	c.consumeMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher. It also stops a running consumer.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopErr := c.Stop(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(stopErr, c.closeLocked())
}

func (c *Client) closeLocked() error {
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		if !c.conn.IsClosed() {
			err = c.conn.Close()
		}
		c.conn = nil
	}
	return err
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.failMu.Lock()
		last := c.lastFailure
		c.failMu.Unlock()
		if time.Since(last) > openTimeout {
			// Let one probe through.
			atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.failMu.Lock()
	c.lastFailure = time.Now()
	c.failMu.Unlock()

	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			slog.Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

// exponentialBackoff returns 1s doubled per attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << uint(attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
