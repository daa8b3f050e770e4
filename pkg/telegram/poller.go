package telegram

import (
	"context"
	"errors"
	"net"
	"time"

	"ai-genbot-gateway/internal/pkg/logger"
)

// UpdateHandler may block; the poller keeps fetching while it runs. Slow
// generation work still belongs on a queue.
type UpdateHandler func(ctx context.Context, update Update)

type Poller struct {
	client  *Client
	logger  logger.ILogger
	handler UpdateHandler
	timeout time.Duration
}

func NewPoller(client *Client, log logger.ILogger, handler UpdateHandler) *Poller {
	return &Poller{client: client, logger: log, handler: handler, timeout: 30 * time.Second}
}

// Run long-polls until ctx is done. Updates from one sender are handled in
// order; different senders do not wait on each other. Run returns after the
// handlers it started have returned.
func (p *Poller) Run(ctx context.Context) error {
	l := newLanes(p.handler)
	defer l.wait()

	var offset int64
	wait := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, next, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !isPollTimeout(err) {
				p.logger.Warn("TELEGRAM", "getUpdates failed", map[string]interface{}{
					"error":   err.Error(),
					"retryIn": wait.String(),
				})
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
				if wait < 30*time.Second {
					wait *= 2
				}
			}
			continue
		}
		wait = time.Second
		offset = next
		for _, u := range updates {
			l.dispatch(ctx, u)
		}
	}
}

func isPollTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
