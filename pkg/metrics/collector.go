package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/pkg/events"

	"github.com/google/uuid"
)

const (
	DefaultFlushInterval = time.Hour
	maxSamples           = 10000
)

// Sink persists flushes. Apply must be a no-op for a flush id it has
// already applied.
type Sink interface {
	Apply(ctx context.Context, flush *entity.MetricsFlush) (bool, error)
	Totals(ctx context.Context, windows int) (*entity.UsageTotals, error)
}

// Collector keeps counters and response-time samples in memory and flushes
// them to the sink. A flush that fails is retried with the same id, so it is
// never counted twice.
type Collector struct {
	sink   Sink
	logger logger.ILogger

	mu          sync.Mutex
	commands    map[string]int64
	models      map[string]int64
	errors      map[string]int64
	samples     []float64
	windowStart time.Time
	pending     *entity.MetricsFlush

	flushMu sync.Mutex
}

func NewCollector(sink Sink, log logger.ILogger) *Collector {
	c := &Collector{sink: sink, logger: log}
	c.reset(time.Now())
	return c
}

func (c *Collector) reset(now time.Time) {
	c.commands = make(map[string]int64)
	c.models = make(map[string]int64)
	c.errors = make(map[string]int64)
	c.samples = nil
	c.windowStart = now
}

func (c *Collector) CountCommand(command string) {
	if command == "" {
		return
	}
	c.mu.Lock()
	c.commands[command]++
	c.mu.Unlock()
}

func (c *Collector) CountModel(model string) {
	if model == "" {
		return
	}
	c.mu.Lock()
	c.models[model]++
	c.mu.Unlock()
}

func (c *Collector) CountError(kind string) {
	if kind == "" {
		return
	}
	c.mu.Lock()
	c.errors[kind]++
	c.mu.Unlock()
}

// ObserveResponse records the duration of a successful job.
func (c *Collector) ObserveResponse(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) >= maxSamples {
		c.samples = c.samples[1:]
	}
	c.samples = append(c.samples, d.Seconds())
}

// HandleJobEvent folds a lifecycle event into the counters.
func (c *Collector) HandleJobEvent(_ context.Context, e events.JobEvent) {
	if e.Type != events.JobFinished {
		return
	}
	switch e.State {
	case entity.JobCompleted:
		c.CountModel(e.Model)
		if e.Elapsed > 0 {
			c.ObserveResponse(e.Elapsed)
		}
	case entity.JobFailed:
		c.CountError(string(e.ErrorKind))
	}
}

// Subscribe feeds the collector from the event bus.
func (c *Collector) Subscribe(ctx context.Context, bus *events.Bus) error {
	return bus.SubscribeJobs(ctx, c.HandleJobEvent)
}

func summarize(samples []float64, start, end time.Time) *entity.ResponseWindow {
	if len(samples) == 0 {
		return nil
	}
	w := &entity.ResponseWindow{Start: start, End: end, Samples: len(samples), Min: samples[0], Max: samples[0]}
	var sum float64
	for _, s := range samples {
		sum += s
		if s < w.Min {
			w.Min = s
		}
		if s > w.Max {
			w.Max = s
		}
	}
	w.Avg = sum / float64(len(samples))
	return w
}

// cut moves the live counters into a pending flush unless one is already
// waiting to be retried.
func (c *Collector) cut(now time.Time) *entity.MetricsFlush {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return c.pending
	}
	flush := &entity.MetricsFlush{
		ID:       uuid.NewString(),
		Commands: c.commands,
		Models:   c.models,
		Errors:   c.errors,
		Window:   summarize(c.samples, c.windowStart, now),
		Created:  now,
	}
	c.reset(now)
	if flush.Empty() {
		return nil
	}
	c.pending = flush
	return flush
}

// Flush writes everything collected so far.
func (c *Collector) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	flush := c.cut(time.Now())
	if flush == nil {
		return nil
	}
	applied, err := c.sink.Apply(ctx, flush)
	if err != nil {
		c.logger.Warn("METRICS", "Flush failed, will retry", map[string]interface{}{
			"flushId": flush.ID,
			"error":   err.Error(),
		})
		return fmt.Errorf("metrics flush %s: %w", flush.ID, err)
	}

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	c.logger.Debug("METRICS", "Flushed metrics", map[string]interface{}{
		"flushId":  flush.ID,
		"applied":  applied,
		"commands": len(flush.Commands),
	})
	return nil
}

// Snapshot forces a flush and reads the persisted totals back.
func (c *Collector) Snapshot(ctx context.Context) (*entity.UsageTotals, error) {
	if err := c.Flush(ctx); err != nil {
		return nil, err
	}
	return c.sink.Totals(ctx, 24)
}

// Run flushes on every tick and once more when ctx ends.
func (c *Collector) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = DefaultFlushInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := c.Flush(final)
			cancel()
			return err
		case <-ticker.C:
			_ = c.Flush(ctx)
		}
	}
}

type kv struct {
	key   string
	count int64
}

func top(m map[string]int64, n int) []kv {
	out := make([]kv, 0, len(m))
	for k, v := range m {
		out = append(out, kv{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Render formats totals as the plain-text performance report.
func Render(t *entity.UsageTotals) string {
	var b strings.Builder
	b.WriteString("Performance report\n")

	section := func(title string, m map[string]int64) {
		b.WriteString("\n" + title + ":\n")
		rows := top(m, 10)
		if len(rows) == 0 {
			b.WriteString("  none\n")
			return
		}
		for _, r := range rows {
			fmt.Fprintf(&b, "  %s: %d\n", r.key, r.count)
		}
	}
	section("Commands", t.Commands)
	section("Models", t.Models)
	section("Errors", t.Errors)

	b.WriteString("\nResponse times:\n")
	if len(t.Windows) == 0 {
		b.WriteString("  no samples yet\n")
	}
	for _, w := range t.Windows {
		fmt.Fprintf(&b, "  %s  n=%d avg=%.1fs min=%.1fs max=%.1fs\n",
			w.Start.UTC().Format("2006-01-02 15:04"), w.Samples, w.Avg, w.Min, w.Max)
	}
	return b.String()
}
