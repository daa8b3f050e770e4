package events

import (
	"context"
	"encoding/json"
	"fmt"

	"ai-genbot-gateway/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Bus is the in-process event bus. Publishing never waits for subscribers.
type Bus struct {
	pubSub *gochannel.GoChannel
	logger logger.ILogger
}

func NewBus(log logger.ILogger) *Bus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 1024},
		watermill.NopLogger{},
	)
	return &Bus{pubSub: pubSub, logger: log}
}

func (b *Bus) Publish(topic string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("event_type", event.EventType())
	return b.pubSub.Publish(topic, msg)
}

// PublishJob is the fire-and-forget form used on hot paths.
func (b *Bus) PublishJob(event JobEvent) {
	if err := b.Publish(TopicJobLifecycle, event); err != nil {
		b.logger.Warn("EVENTS", "Failed to publish job event", map[string]interface{}{
			"jobId": event.JobID,
			"type":  event.Type,
			"error": err.Error(),
		})
	}
}

// SubscribeJobs decodes lifecycle events and hands them to fn until ctx is
// done. Undecodable messages are acked and dropped.
func (b *Bus) SubscribeJobs(ctx context.Context, fn func(ctx context.Context, event JobEvent)) error {
	messages, err := b.pubSub.Subscribe(ctx, TopicJobLifecycle)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event JobEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.logger.Error("EVENTS", "Failed to unmarshal job event", map[string]interface{}{
					"messageId": msg.UUID,
					"error":     err.Error(),
				})
				msg.Ack()
				continue
			}
			fn(ctx, event)
			msg.Ack()
		}
	}()
	return nil
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}
