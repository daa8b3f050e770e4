package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-genbot-gateway/internal/entity"
)

// Delivery is one claimed message. Until it is acked, nacked or terminated
// the broker keeps it invisible for the visibility timeout; after that it is
// redelivered with a higher attempt.
type Delivery interface {
	Job() (*entity.Job, error)
	// Attempt is 1 on the first delivery.
	Attempt() int
	Ack() error
	Nak(delay time.Duration) error
	// Term drops the message for good (dead-lettered where supported).
	Term() error
	// InProgress restarts the visibility timeout. It fails when the claim
	// was already lost to expiry.
	InProgress() error
}

type Handler func(ctx context.Context, d Delivery)

// Broker is the out-of-process transport of durable jobs.
type Broker interface {
	Publish(ctx context.Context, job *entity.Job) error
	// Consume hands deliveries to handler until ctx is done.
	Consume(ctx context.Context, handler Handler) error
	Pending(ctx context.Context) (int, error)
	Close() error
}

// Envelope is the wire form of a durable job.
type Envelope struct {
	Job         entity.Job `json:"job"`
	PublishedAt time.Time  `json:"published_at"`
}

func encode(job *entity.Job) ([]byte, error) {
	data, err := json.Marshal(Envelope{Job: *job, PublishedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*entity.Job, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode job envelope: %w", err)
	}
	if env.Job.ID == "" {
		return nil, fmt.Errorf("job envelope without id")
	}
	return &env.Job, nil
}
