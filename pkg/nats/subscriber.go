package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerConfig describes a durable pull consumer with explicit acks.
type ConsumerConfig struct {
	Stream        string
	Durable       string
	FilterSubject string
	// AckWait is the visibility timeout of a delivered message.
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// Subscriber consumes a durable consumer until its context ends.
type Subscriber struct {
	js jetstream.JetStream
}

func NewSubscriber(js jetstream.JetStream) *Subscriber {
	return &Subscriber{js: js}
}

// Subscribe creates or updates the consumer and hands each message to
// handler. The handler owns the ack. It blocks until ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, cfg ConsumerConfig, handler func(msg jetstream.Msg)) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		FilterSubject: cfg.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: cfg.MaxAckPending,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", cfg.Durable, err)
	}

	cc, err := consumer.Consume(handler)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", cfg.Durable, err)
	}
	<-ctx.Done()
	cc.Stop()
	return nil
}
