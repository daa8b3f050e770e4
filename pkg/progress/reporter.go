package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/pkg/telegram"
)

const MaxFailureText = 400

// Editor is the part of the chat client the reporter needs.
type Editor interface {
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Reporter owns one progress message. It edits it at most once per
// interval, skips edits that would not change the text, and deletes or
// rewrites it when the job ends.
type Reporter struct {
	editor    Editor
	logger    logger.ILogger
	chatID    int64
	messageID int64
	interval  time.Duration
	pulse     *PulseRenderer

	mu         sync.Mutex
	pending    string
	structured bool
	rendered   string
	lastEdit   time.Time
	edits      int
	started    bool

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

type Option func(*Reporter)

// WithPulse animates the given steps until the job reports real progress.
func WithPulse(p *PulseRenderer) Option {
	return func(r *Reporter) { r.pulse = p }
}

// WithInitialText tells the reporter what the placeholder already shows.
func WithInitialText(text string) Option {
	return func(r *Reporter) { r.rendered = text }
}

func NewReporter(editor Editor, log logger.ILogger, chatID, messageID int64, interval time.Duration, opts ...Option) *Reporter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	r := &Reporter{
		editor:    editor,
		logger:    log,
		chatID:    chatID,
		messageID: messageID,
		interval:  interval,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report records the newest token; only the latest one per interval is shown.
func (r *Reporter) Report(t Token) {
	text := t.Render()
	if text == "" {
		return
	}
	r.mu.Lock()
	r.pending = text
	r.structured = true
	r.mu.Unlock()
}

// Start runs the edit loop until Done, Fail or ctx cancellation.
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	go func() {
		defer close(r.stopped)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

func (r *Reporter) tick(ctx context.Context) {
	r.mu.Lock()
	if !r.structured && r.pulse != nil {
		r.pending = r.pulse.Next()
	}
	text := r.pending
	r.mu.Unlock()

	r.edit(ctx, text)
}

// edit applies text unless it equals what is shown or the interval since
// the last edit has not elapsed.
func (r *Reporter) edit(ctx context.Context, text string) {
	r.mu.Lock()
	if text == "" || text == r.rendered || time.Since(r.lastEdit) < r.interval {
		r.mu.Unlock()
		return
	}
	r.lastEdit = time.Now()
	r.mu.Unlock()

	err := r.editor.EditMessageText(ctx, r.chatID, r.messageID, text)
	if err != nil && !errors.Is(err, telegram.ErrMessageNotModified) {
		r.logger.Warn("PROGRESS", "Failed to edit progress message", map[string]interface{}{
			"chatId":    r.chatID,
			"messageId": r.messageID,
			"error":     err.Error(),
		})
		return
	}

	r.mu.Lock()
	r.rendered = text
	r.edits++
	r.mu.Unlock()
}

func (r *Reporter) halt() bool {
	first := false
	r.once.Do(func() {
		first = true
		close(r.stop)
	})
	return first
}

// Done deletes the progress message.
func (r *Reporter) Done(ctx context.Context) {
	if !r.halt() {
		return
	}
	r.wait()
	if err := r.editor.DeleteMessage(ctx, r.chatID, r.messageID); err != nil {
		r.logger.Warn("PROGRESS", "Failed to delete progress message", map[string]interface{}{
			"chatId":    r.chatID,
			"messageId": r.messageID,
			"error":     err.Error(),
		})
	}
}

// Fail replaces the progress message with text, cut to MaxFailureText
// runes. The final edit still honours the edit interval.
func (r *Reporter) Fail(ctx context.Context, text string) {
	if !r.halt() {
		return
	}
	r.wait()
	text = Truncate(text, MaxFailureText)

	r.mu.Lock()
	wait := r.interval - time.Since(r.lastEdit)
	r.mu.Unlock()
	if wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	r.edit(ctx, text)
}

// Release stops the edit loop without touching the message and waits out
// the rest of the edit interval, so the caller can make the final edit.
func (r *Reporter) Release(ctx context.Context) {
	if !r.halt() {
		return
	}
	r.wait()

	r.mu.Lock()
	wait := r.interval - time.Since(r.lastEdit)
	r.mu.Unlock()
	if wait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}
}

func (r *Reporter) wait() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return
	}
	select {
	case <-r.stopped:
	case <-time.After(r.interval):
	}
}

// Edits returns how many edits reached the chat.
func (r *Reporter) Edits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.edits
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
