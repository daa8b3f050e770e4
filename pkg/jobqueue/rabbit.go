package jobqueue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const attemptHeader = "x-genbot-attempt"

type RabbitConfig struct {
	URL   string
	Queue string
	// Visibility becomes the queue's consumer timeout: a delivery held longer
	// closes the channel and is requeued.
	Visibility time.Duration
	Prefetch   int
}

// RabbitBroker keeps durable jobs on a quorum queue. Nacks with a delay go
// through a TTL retry queue that dead-letters back to the main queue;
// terminated jobs land on the DLQ.
type RabbitBroker struct {
	cfg    RabbitConfig
	conn   *amqp.Connection
	pubMu  sync.Mutex
	pubCh  *amqp.Channel
	consCh *amqp.Channel
	logger logger.ILogger
}

func NewRabbitBroker(cfg RabbitConfig, log logger.ILogger) (*RabbitBroker, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	b := &RabbitBroker{cfg: cfg, conn: conn, pubCh: pubCh, logger: log}
	if err := b.declare(pubCh); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *RabbitBroker) retryQueue() string { return b.cfg.Queue + ".retry" }
func (b *RabbitBroker) deadQueue() string  { return b.cfg.Queue + ".dlq" }

func (b *RabbitBroker) declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(b.deadQueue(), true, false, false, false, amqp.Table{
		"x-queue-type": "quorum",
	}); err != nil {
		return fmt.Errorf("declare %s: %w", b.deadQueue(), err)
	}
	if _, err := ch.QueueDeclare(b.retryQueue(), true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": b.cfg.Queue,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", b.retryQueue(), err)
	}
	args := amqp.Table{
		"x-queue-type":              "quorum",
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": b.deadQueue(),
	}
	if b.cfg.Visibility > 0 {
		args["x-consumer-timeout"] = b.cfg.Visibility.Milliseconds()
	}
	if _, err := ch.QueueDeclare(b.cfg.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare %s: %w", b.cfg.Queue, err)
	}
	return nil
}

func (b *RabbitBroker) publish(ctx context.Context, queue string, body []byte, attempt int, expiration time.Duration) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{attemptHeader: int64(attempt)},
	}
	if expiration > 0 {
		msg.Expiration = strconv.FormatInt(expiration.Milliseconds(), 10)
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	return b.pubCh.PublishWithContext(cctx, "", queue, false, false, msg)
}

func (b *RabbitBroker) Publish(ctx context.Context, job *entity.Job) error {
	body, err := encode(job)
	if err != nil {
		return err
	}
	return b.publish(ctx, b.cfg.Queue, body, 1, 0)
}

// Consume stops taking new deliveries when ctx is done but keeps the channel
// open, so in-flight handlers can still ack. Close releases it.
func (b *RabbitBroker) Consume(ctx context.Context, handler Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbit channel: %w", err)
	}
	b.consCh = ch
	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	const tag = "genbot-durable"
	msgs, err := ch.Consume(b.cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(tag, false)
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("rabbit delivery channel closed")
			}
			handler(ctx, &rabbitDelivery{broker: b, d: d})
		}
	}
}

func (b *RabbitBroker) Pending(ctx context.Context) (int, error) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	q, err := b.pubCh.QueueDeclarePassive(b.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	return q.Messages, nil
}

func (b *RabbitBroker) Close() error {
	if b.consCh != nil {
		_ = b.consCh.Close()
	}
	if b.pubCh != nil {
		_ = b.pubCh.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

type rabbitDelivery struct {
	broker *RabbitBroker
	d      amqp.Delivery
}

func (r *rabbitDelivery) Job() (*entity.Job, error) { return decode(r.d.Body) }

// Attempt combines the attempt carried through the retry queue with the
// quorum queue's redelivery count.
func (r *rabbitDelivery) Attempt() int {
	base := headerInt(r.d.Headers, attemptHeader)
	if base <= 0 {
		base = 1
	}
	return base + headerInt(r.d.Headers, "x-delivery-count")
}

func headerInt(h amqp.Table, key string) int {
	switch v := h[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}

func (r *rabbitDelivery) Ack() error { return r.d.Ack(false) }

func (r *rabbitDelivery) Nak(delay time.Duration) error {
	if delay <= 0 {
		return r.d.Nack(false, true)
	}
	if err := r.broker.publish(context.Background(), r.broker.retryQueue(), r.d.Body, r.Attempt()+1, delay); err != nil {
		return r.d.Nack(false, true)
	}
	return r.d.Ack(false)
}

func (r *rabbitDelivery) Term() error { return r.d.Nack(false, false) }

// InProgress is a no-op: the consumer timeout cannot be extended, so the
// prefetch is kept at the worker count instead.
func (r *rabbitDelivery) InProgress() error { return nil }
