package jobqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-genbot-gateway/internal/entity"
)

var errClaimLost = errors.New("delivery is no longer claimed")

type memMessage struct {
	seq         uint64
	data        []byte
	deliveries  int
	notBefore   time.Time
	deliveredAt time.Time
}

// MemoryBroker is a single-process broker with the same claim, visibility
// and redelivery rules as the real ones. It backs development runs without
// a broker and the tests.
type MemoryBroker struct {
	visibility time.Duration
	mu         sync.Mutex
	seq        uint64
	ready      []*memMessage
	inflight   map[uint64]*memMessage
	dead       [][]byte
	wake       chan struct{}
}

func NewMemoryBroker(visibility time.Duration) *MemoryBroker {
	return &MemoryBroker{
		visibility: visibility,
		inflight:   make(map[uint64]*memMessage),
		wake:       make(chan struct{}, 1),
	}
}

func (b *MemoryBroker) notify() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *MemoryBroker) Publish(_ context.Context, job *entity.Job) error {
	data, err := encode(job)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.seq++
	b.ready = append(b.ready, &memMessage{seq: b.seq, data: data})
	b.mu.Unlock()
	b.notify()
	return nil
}

// claim returns the first ready message and requeues in-flight messages
// whose visibility expired.
func (b *MemoryBroker) claim(now time.Time) *memMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.visibility > 0 {
		for seq, m := range b.inflight {
			if now.Sub(m.deliveredAt) >= b.visibility {
				delete(b.inflight, seq)
				b.ready = append(b.ready, m)
			}
		}
	}
	for i, m := range b.ready {
		if m.notBefore.After(now) {
			continue
		}
		b.ready = append(b.ready[:i], b.ready[i+1:]...)
		m.deliveries++
		m.deliveredAt = now
		b.inflight[m.seq] = m
		return m
	}
	return nil
}

func (b *MemoryBroker) Consume(ctx context.Context, handler Handler) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		for {
			if ctx.Err() != nil {
				return nil
			}
			m := b.claim(time.Now())
			if m == nil {
				break
			}
			handler(ctx, &memDelivery{broker: b, msg: m, attempt: m.deliveries})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-b.wake:
		case <-ticker.C:
		}
	}
}

func (b *MemoryBroker) Pending(context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready) + len(b.inflight), nil
}

// Dead returns how many messages were terminated.
func (b *MemoryBroker) Dead() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dead)
}

func (b *MemoryBroker) Close() error { return nil }

type memDelivery struct {
	broker  *MemoryBroker
	msg     *memMessage
	attempt int
}

func (d *memDelivery) Job() (*entity.Job, error) { return decode(d.msg.data) }

func (d *memDelivery) Attempt() int { return d.attempt }

// held reports whether this delivery still owns the message. A message
// reclaimed after expiry keeps its seq but counts one more delivery.
func (d *memDelivery) held() bool {
	m, ok := d.broker.inflight[d.msg.seq]
	return ok && m.deliveries == d.attempt
}

func (d *memDelivery) settle(requeue bool, delay time.Duration, dead bool) error {
	b := d.broker
	b.mu.Lock()
	if !d.held() {
		b.mu.Unlock()
		return nil
	}
	delete(b.inflight, d.msg.seq)
	switch {
	case requeue:
		d.msg.notBefore = time.Now().Add(delay)
		b.ready = append(b.ready, d.msg)
	case dead:
		b.dead = append(b.dead, d.msg.data)
	}
	b.mu.Unlock()
	if requeue {
		b.notify()
	}
	return nil
}

func (d *memDelivery) InProgress() error {
	b := d.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if !d.held() {
		return errClaimLost
	}
	now := time.Now()
	if b.visibility > 0 && now.Sub(d.msg.deliveredAt) >= b.visibility {
		delete(b.inflight, d.msg.seq)
		b.ready = append(b.ready, d.msg)
		b.notify()
		return errClaimLost
	}
	d.msg.deliveredAt = now
	return nil
}

func (d *memDelivery) Ack() error                    { return d.settle(false, 0, false) }
func (d *memDelivery) Nak(delay time.Duration) error { return d.settle(true, delay, false) }
func (d *memDelivery) Term() error                   { return d.settle(false, 0, true) }
