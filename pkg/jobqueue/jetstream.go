package jobqueue

import (
	"context"
	"fmt"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	gnats "ai-genbot-gateway/pkg/nats"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	jetStreamName    = "GENBOT_JOBS"
	jetStreamSubject = "genbot.jobs.durable"
	jetStreamDurable = "genbot-durable-workers"
)

type JetStreamConfig struct {
	URL string
	// Visibility becomes the consumer AckWait.
	Visibility time.Duration
	MaxDeliver int
	// MaxAckPending caps claimed but unsettled jobs; set it to the worker
	// count so nothing waits for a slot while its AckWait runs.
	MaxAckPending int
}

// JetStreamBroker keeps durable jobs on a file-backed work-queue stream with
// one durable pull consumer shared by every gateway instance.
type JetStreamBroker struct {
	cfg    JetStreamConfig
	nc     *nats.Conn
	js     jetstream.JetStream
	pub    *gnats.Publisher
	sub    *gnats.Subscriber
	logger logger.ILogger
}

func NewJetStreamBroker(ctx context.Context, cfg JetStreamConfig, log logger.ILogger) (*JetStreamBroker, error) {
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1
	}
	nc, js, err := gnats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	if _, err := gnats.EnsureStream(ctx, js, gnats.StreamConfig{
		Name:     jetStreamName,
		Subjects: []string{"genbot.jobs.>"},
		MaxAge:   24 * time.Hour,
	}); err != nil {
		nc.Close()
		return nil, err
	}
	return &JetStreamBroker{
		cfg:    cfg,
		nc:     nc,
		js:     js,
		pub:    gnats.NewPublisher(js),
		sub:    gnats.NewSubscriber(js),
		logger: log,
	}, nil
}

func (b *JetStreamBroker) Publish(ctx context.Context, job *entity.Job) error {
	data, err := encode(job)
	if err != nil {
		return err
	}
	return b.pub.Publish(ctx, jetStreamSubject, job.ID, data)
}

func (b *JetStreamBroker) Consume(ctx context.Context, handler Handler) error {
	return b.sub.Subscribe(ctx, gnats.ConsumerConfig{
		Stream:        jetStreamName,
		Durable:       jetStreamDurable,
		FilterSubject: jetStreamSubject,
		AckWait:       b.cfg.Visibility,
		MaxDeliver:    b.cfg.MaxDeliver,
		MaxAckPending: b.cfg.MaxAckPending,
	}, func(msg jetstream.Msg) {
		handler(ctx, &jetStreamDelivery{msg: msg})
	})
}

func (b *JetStreamBroker) Pending(ctx context.Context) (int, error) {
	consumer, err := b.js.Consumer(ctx, jetStreamName, jetStreamDurable)
	if err != nil {
		return 0, fmt.Errorf("failed to look up consumer: %w", err)
	}
	info, err := consumer.Info(ctx)
	if err != nil {
		return 0, err
	}
	return int(info.NumPending) + info.NumAckPending, nil
}

func (b *JetStreamBroker) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}

type jetStreamDelivery struct {
	msg jetstream.Msg
}

func (d *jetStreamDelivery) Job() (*entity.Job, error) { return decode(d.msg.Data()) }

func (d *jetStreamDelivery) Attempt() int {
	meta, err := d.msg.Metadata()
	if err != nil || meta.NumDelivered == 0 {
		return 1
	}
	return int(meta.NumDelivered)
}

func (d *jetStreamDelivery) Ack() error { return d.msg.Ack() }

func (d *jetStreamDelivery) Nak(delay time.Duration) error {
	if delay <= 0 {
		return d.msg.Nak()
	}
	return d.msg.NakWithDelay(delay)
}

func (d *jetStreamDelivery) Term() error { return d.msg.Term() }

func (d *jetStreamDelivery) InProgress() error { return d.msg.InProgress() }
