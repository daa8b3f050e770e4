package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	fail    bool
	applied map[string]bool
	totals  entity.UsageTotals
	calls   []string
}

func newMemorySink() *memorySink {
	return &memorySink{
		applied: map[string]bool{},
		totals:  entity.UsageTotals{Commands: map[string]int64{}, Models: map[string]int64{}, Errors: map[string]int64{}},
	}
}

func (s *memorySink) Apply(_ context.Context, f *entity.MetricsFlush) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, f.ID)
	if s.fail {
		return false, errors.New("db down")
	}
	if s.applied[f.ID] {
		return false, nil
	}
	s.applied[f.ID] = true
	for k, v := range f.Commands {
		s.totals.Commands[k] += v
	}
	for k, v := range f.Models {
		s.totals.Models[k] += v
	}
	for k, v := range f.Errors {
		s.totals.Errors[k] += v
	}
	if f.Window != nil {
		s.totals.Windows = append(s.totals.Windows, *f.Window)
	}
	return true, nil
}

func (s *memorySink) Totals(context.Context, int) (*entity.UsageTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.totals
	return &t, nil
}

func TestCountersAreCommutativeAcrossWorkers(t *testing.T) {
	sink := newMemorySink()
	c := NewCollector(sink, logger.NewNopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.CountCommand("/flux")
			c.CountError("transient")
			c.ObserveResponse(2 * time.Second)
		}()
	}
	wg.Wait()

	totals, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(50), totals.Commands["/flux"])
	assert.Equal(t, int64(50), totals.Errors["transient"])
	require.Len(t, totals.Windows, 1)
	assert.Equal(t, 50, totals.Windows[0].Samples)
	assert.InDelta(t, 2.0, totals.Windows[0].Avg, 0.001)
}

func TestFailedFlushIsRetriedWithSameID(t *testing.T) {
	sink := newMemorySink()
	c := NewCollector(sink, logger.NewNopLogger())
	c.CountCommand("/tts")

	sink.fail = true
	require.Error(t, c.Flush(context.Background()))
	c.CountCommand("/tts")

	sink.fail = false
	require.NoError(t, c.Flush(context.Background()))
	require.NoError(t, c.Flush(context.Background()))

	require.Len(t, sink.calls, 3)
	assert.Equal(t, sink.calls[0], sink.calls[1])
	assert.NotEqual(t, sink.calls[1], sink.calls[2])
	assert.Equal(t, int64(2), sink.totals.Commands["/tts"])
}

func TestEmptyFlushWritesNothing(t *testing.T) {
	sink := newMemorySink()
	c := NewCollector(sink, logger.NewNopLogger())
	require.NoError(t, c.Flush(context.Background()))
	assert.Empty(t, sink.calls)
}

func TestJobEventsFeedCounters(t *testing.T) {
	sink := newMemorySink()
	c := NewCollector(sink, logger.NewNopLogger())

	c.HandleJobEvent(context.Background(), events.JobEvent{Type: events.JobStarted, Model: "ignored"})
	c.HandleJobEvent(context.Background(), events.JobEvent{Type: events.JobFinished, State: entity.JobCompleted, Model: "flux-schnell", Elapsed: 12 * time.Second})
	c.HandleJobEvent(context.Background(), events.JobEvent{Type: events.JobFinished, State: entity.JobFailed, ErrorKind: entity.ErrorQuota})
	c.HandleJobEvent(context.Background(), events.JobEvent{Type: events.JobFinished, State: entity.JobCancelled})

	totals, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"flux-schnell": 1}, totals.Models)
	assert.Equal(t, map[string]int64{"quota": 1}, totals.Errors)
	require.Len(t, totals.Windows, 1)
	assert.InDelta(t, 12.0, totals.Windows[0].Avg, 0.001)

	report := Render(totals)
	assert.Contains(t, report, "flux-schnell: 1")
	assert.Contains(t, report, "n=1 avg=12.0s")
}

func TestModelIsCountedOncePerCompletedJob(t *testing.T) {
	c := NewCollector(newMemorySink(), logger.NewNopLogger())
	job := &entity.Job{ID: "job-1", Kind: entity.KindImageGen, Provider: "flux"}

	for _, e := range []events.JobEvent{
		events.NewJobEvent(events.JobSubmitted, job, entity.JobQueued),
		events.NewJobEvent(events.JobStarted, job, entity.JobRunning),
		events.NewJobEvent(events.JobFinished, job, entity.JobCompleted),
	} {
		c.HandleJobEvent(context.Background(), e)
	}

	totals, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"flux": 1}, totals.Models)
}
