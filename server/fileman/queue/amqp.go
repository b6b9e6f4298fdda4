package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	commonlog "files_manager/server/common/log"
	"files_manager/server/fileman/domain"
)

const (
	JobsQueue  = "thumbnail.jobs"
	RetryQueue = "thumbnail.jobs.retry"
	DeadQueue  = "thumbnail.jobs.dead"

	attemptHeader   = "x-attempt"
	lastErrorHeader = "x-last-error"
	settleTimeout   = 5 * time.Second
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPQueue keeps jobs in a durable LavinMQ/RabbitMQ queue. Retries go through
// a TTL queue that dead-letters back into the jobs queue once the per-message
// expiration elapses.
type AMQPQueue struct {
	conn     *amqp.Connection
	policy   RetryPolicy
	prefetch int

	pubMu  sync.Mutex
	pubCh  *amqp.Channel
	pub    publisher
	closed bool

	consumeMu  sync.Mutex
	consumeCh  *amqp.Channel
	deliveries <-chan amqp.Delivery
}

func NewAMQPQueue(conn *amqp.Connection, policy RetryPolicy, prefetch int) (*AMQPQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := DeclareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	q := newAMQPQueue(ch, policy, prefetch)
	q.conn = conn
	q.pubCh = ch
	return q, nil
}

func newAMQPQueue(pub publisher, policy RetryPolicy, prefetch int) *AMQPQueue {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &AMQPQueue{pub: pub, policy: policy, prefetch: prefetch}
}

func DeclareTopology(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(JobsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", JobsQueue, err)
	}
	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": JobsQueue,
	}
	if _, err := ch.QueueDeclare(RetryQueue, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("declare %s: %w", RetryQueue, err)
	}
	if _, err := ch.QueueDeclare(DeadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DeadQueue, err)
	}
	return nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, job domain.ThumbnailJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.publish(ctx, JobsQueue, body, amqp.Table{attemptHeader: int32(1)}, "")
}

func (q *AMQPQueue) publish(ctx context.Context, queueName string, body []byte, headers amqp.Table, expiration string) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if q.closed {
		return ErrClosed
	}
	err := q.pub.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Expiration:   expiration,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}

func (q *AMQPQueue) startConsumer() (<-chan amqp.Delivery, error) {
	q.consumeMu.Lock()
	defer q.consumeMu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	if q.conn == nil {
		return nil, ErrClosed
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	deliveries, err := ch.Consume(JobsQueue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", JobsQueue, err)
	}
	q.consumeCh = ch
	q.deliveries = deliveries
	return deliveries, nil
}

func (q *AMQPQueue) Consume(ctx context.Context) (Delivery, error) {
	deliveries, err := q.startConsumer()
	if err != nil {
		return nil, err
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return nil, ErrClosed
			}
			if delivery, ok := q.accept(d); ok {
				return delivery, nil
			}
		}
	}
}

// accept decodes a raw delivery. Undecodable payloads can never succeed, so
// they skip the retry queue and go straight to the dead-letter queue.
func (q *AMQPQueue) accept(d amqp.Delivery) (Delivery, bool) {
	attempt := attemptFromHeaders(d.Headers)
	var job domain.ThumbnailJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		commonlog.Errorf("drop malformed thumbnail job (attempt %d): %v", attempt, err)
		ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
		defer cancel()
		headers := amqp.Table{attemptHeader: int32(attempt), lastErrorHeader: err.Error()}
		if perr := q.publish(ctx, DeadQueue, d.Body, headers, ""); perr != nil {
			commonlog.Errorf("dead-letter malformed job: %v", perr)
			_ = d.Nack(false, true)
			return nil, false
		}
		_ = d.Ack(false)
		return nil, false
	}
	return &amqpDelivery{queue: q, raw: d, job: job, attempt: attempt}, true
}

func (q *AMQPQueue) Close() error {
	q.pubMu.Lock()
	q.closed = true
	q.pubMu.Unlock()

	q.consumeMu.Lock()
	defer q.consumeMu.Unlock()
	if q.consumeCh != nil {
		_ = q.consumeCh.Close()
	}
	if q.pubCh != nil {
		return q.pubCh.Close()
	}
	return nil
}

func attemptFromHeaders(headers amqp.Table) int {
	var n int64
	switch v := headers[attemptHeader].(type) {
	case int8:
		n = int64(v)
	case int16:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case int:
		n = int64(v)
	case uint8:
		n = int64(v)
	case uint16:
		n = int64(v)
	case uint32:
		n = int64(v)
	case string:
		n, _ = strconv.ParseInt(v, 10, 64)
	}
	if n < 1 {
		return 1
	}
	return int(n)
}

type amqpDelivery struct {
	queue   *AMQPQueue
	raw     amqp.Delivery
	job     domain.ThumbnailJob
	attempt int
}

func (d *amqpDelivery) Job() domain.ThumbnailJob { return d.job }
func (d *amqpDelivery) Attempt() int             { return d.attempt }

func (d *amqpDelivery) Ack() error {
	return d.raw.Ack(false)
}

// Fail republishes the job to the retry or dead-letter queue and only then
// acknowledges the original, so a crash in between duplicates the job rather
// than losing it.
func (d *amqpDelivery) Fail(cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	q := d.queue
	var err error
	if q.policy.ShouldRetry(d.attempt) {
		delay := q.policy.Backoff(d.attempt)
		headers := amqp.Table{attemptHeader: int32(d.attempt + 1), lastErrorHeader: reason(cause)}
		err = q.publish(ctx, RetryQueue, d.raw.Body, headers, strconv.FormatInt(delay.Milliseconds(), 10))
	} else {
		headers := amqp.Table{attemptHeader: int32(d.attempt), lastErrorHeader: reason(cause)}
		err = q.publish(ctx, DeadQueue, d.raw.Body, headers, "")
	}
	if err != nil {
		_ = d.raw.Nack(false, true)
		return err
	}
	return d.raw.Ack(false)
}
