package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vitovidale/video-insight-service/domain"
	"github.com/vitovidale/video-insight-service/logger"
)

// RabbitMQQueue publishes jobs and dead letters to durable queues and
// consumes jobs with manual acknowledgement.
type RabbitMQQueue struct {
	conn       *amqp.Connection
	jobQueue   string
	deadLetter string
	log        *logger.Logger

	mu   sync.Mutex
	pub  publisher
	open func() (publisher, error)
}

// publisher is the part of *amqp.Channel used for sending.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

func NewRabbitMQQueue(conn *amqp.Connection, jobQueue, deadLetter string, log *logger.Logger) (*RabbitMQQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	for _, name := range []string{jobQueue, deadLetter} {
		if err := declareQueue(ch, name); err != nil {
			ch.Close()
			return nil, err
		}
	}
	return &RabbitMQQueue{
		conn:       conn,
		jobQueue:   jobQueue,
		deadLetter: deadLetter,
		log:        log.With("component", "RabbitMQQueue"),
		pub:        ch,
		open: func() (publisher, error) {
			return conn.Channel()
		},
	}, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

func (q *RabbitMQQueue) Publish(ctx context.Context, job domain.Job) error {
	return q.publish(ctx, q.jobQueue, job.VideoID, job)
}

func (q *RabbitMQQueue) PublishDeadLetter(ctx context.Context, letter domain.DeadLetter) error {
	return q.publish(ctx, q.deadLetter, letter.VideoID, letter)
}

func (q *RabbitMQQueue) publish(ctx context.Context, queue, messageID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, err := q.channelLocked()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  domain.ContentTypeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	q.log.Debug("message published", "queue", queue, "video_id", messageID)
	return nil
}

// channelLocked returns the publish channel, reopening it when the broker
// closed it after a channel exception. q.mu must be held.
func (q *RabbitMQQueue) channelLocked() (publisher, error) {
	if q.pub != nil && !q.pub.IsClosed() {
		return q.pub, nil
	}
	ch, err := q.open()
	if err != nil {
		return nil, fmt.Errorf("failed to reopen publish channel: %w", err)
	}
	q.log.Warn("publish channel reopened")
	q.pub = ch
	return ch, nil
}

// Consume delivers jobs one at a time on a dedicated channel until ctx is
// done. Run several Consume calls for parallel workers.
func (q *RabbitMQQueue) Consume(ctx context.Context, handler domain.JobHandler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel for consumer: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	msgs, err := ch.Consume(
		q.jobQueue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	q.log.Info("waiting for jobs", "queue", q.jobQueue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", q.jobQueue)
			}
			q.handleDelivery(ctx, d, handler)
		}
	}
}

// handleDelivery acks processed and undecodable messages and requeues the
// ones whose handler asked for redelivery.
func (q *RabbitMQQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handler domain.JobHandler) {
	var job domain.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.log.Error("dropping undecodable job", "error", err, "body", string(d.Body))
		if err := d.Reject(false); err != nil {
			q.log.Warn("reject failed", "error", err)
		}
		return
	}
	if err := handler(ctx, job); err != nil {
		q.log.Warn("job will be redelivered", "video_id", job.VideoID, "error", err)
		if err := d.Nack(false, true); err != nil {
			q.log.Warn("nack failed", "video_id", job.VideoID, "error", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		q.log.Warn("ack failed", "video_id", job.VideoID, "error", err)
	}
}

// Healthy reports whether jobs can be published: the publish channel is
// open, or can be reopened, and the connection is up.
func (q *RabbitMQQueue) Healthy() error {
	q.mu.Lock()
	_, err := q.channelLocked()
	q.mu.Unlock()
	if err != nil {
		return err
	}
	if q.conn != nil && q.conn.IsClosed() {
		return fmt.Errorf("rabbitmq disconnected")
	}
	return nil
}

func (q *RabbitMQQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pub == nil {
		return nil
	}
	return q.pub.Close()
}
