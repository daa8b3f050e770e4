package telegram

import (
	"context"
	"sync"
)

// lanes runs updates from different senders concurrently and updates from
// one sender in arrival order.
type lanes struct {
	handler UpdateHandler

	mu      sync.Mutex
	pending map[int64][]Update
	wg      sync.WaitGroup
}

func newLanes(handler UpdateHandler) *lanes {
	return &lanes{handler: handler, pending: make(map[int64][]Update)}
}

func (l *lanes) dispatch(ctx context.Context, u Update) {
	key := u.SenderID()
	l.mu.Lock()
	q, running := l.pending[key]
	l.pending[key] = append(q, u)
	l.mu.Unlock()
	if running {
		return
	}
	l.wg.Add(1)
	go l.drain(ctx, key)
}

// A key stays in pending while its drain goroutine runs, even with an
// empty queue, so dispatch never starts a second one.
func (l *lanes) drain(ctx context.Context, key int64) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		q := l.pending[key]
		if len(q) == 0 {
			delete(l.pending, key)
			l.mu.Unlock()
			return
		}
		u := q[0]
		l.pending[key] = q[1:]
		l.mu.Unlock()
		l.handler(ctx, u)
	}
}

func (l *lanes) wait() { l.wg.Wait() }
