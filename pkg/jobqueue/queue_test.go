package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type finalCall struct {
	job   entity.Job
	state entity.JobState
	cause error
}

type fakeRunner struct {
	mu       sync.Mutex
	attempts []int
	finals   []finalCall
	started  chan *entity.Job
	finished chan finalCall
	run      func(ctx context.Context, job *entity.Job) error
}

func newFakeRunner(run func(ctx context.Context, job *entity.Job) error) *fakeRunner {
	return &fakeRunner{
		started:  make(chan *entity.Job, 16),
		finished: make(chan finalCall, 16),
		run:      run,
	}
}

func (r *fakeRunner) Run(ctx context.Context, job *entity.Job) error {
	r.mu.Lock()
	r.attempts = append(r.attempts, job.Attempt)
	r.mu.Unlock()
	r.started <- job
	return r.run(ctx, job)
}

func (r *fakeRunner) Finalize(_ context.Context, job *entity.Job, state entity.JobState, err error) {
	call := finalCall{job: *job, state: state, cause: err}
	r.mu.Lock()
	r.finals = append(r.finals, call)
	r.mu.Unlock()
	r.finished <- call
}

func (r *fakeRunner) finalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.finals)
}

// deliveries records delivered job ids, standing in for the generation
// records the executor writes.
type deliveries struct {
	mu   sync.Mutex
	done map[string]int
}

func newDeliveries() *deliveries { return &deliveries{done: make(map[string]int)} }

func (d *deliveries) record(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done[id]++
}

func (d *deliveries) Delivered(_ context.Context, jobID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done[jobID] > 0, nil
}

func videoJob(id string) *entity.Job {
	return &entity.Job{ID: id, UserID: 7, ChatID: 7, ProgressMessageID: 99, Kind: entity.KindVideoGen, Timeout: time.Second}
}

func runQueue(t *testing.T, q *Queue) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("durable queue did not stop")
		}
	}
}

func waitFinal(t *testing.T, r *fakeRunner) finalCall {
	t.Helper()
	select {
	case call := <-r.finished:
		return call
	case <-time.After(5 * time.Second):
		t.Fatal("job was not finalized")
		return finalCall{}
	}
}

func testConfig() Config {
	return Config{Workers: 2, Visibility: 5 * time.Second, RetryDelay: 10 * time.Millisecond}
}

func TestRestartRedeliversAndRecordsOnce(t *testing.T) {
	broker := NewMemoryBroker(0)
	guard := newDeliveries()
	log := logger.NewNopLogger()

	first := newFakeRunner(func(ctx context.Context, job *entity.Job) error {
		<-ctx.Done()
		return context.Cause(ctx)
	})
	q1 := New(testConfig(), broker, first, guard, nil, log)
	require.NoError(t, q1.Submit(context.Background(), videoJob("video-1")))

	stop1 := runQueue(t, q1)
	<-first.started
	stop1()
	assert.Zero(t, first.finalCount(), "a restart is not a terminal transition")

	second := newFakeRunner(func(ctx context.Context, job *entity.Job) error {
		guard.record(job.ID)
		return nil
	})
	q2 := New(testConfig(), broker, second, guard, nil, log)
	stop2 := runQueue(t, q2)
	defer stop2()

	call := waitFinal(t, second)
	assert.Equal(t, entity.JobCompleted, call.state)
	assert.Equal(t, 2, call.job.Attempt)
	assert.Equal(t, int64(99), call.job.ProgressMessageID)
	assert.Equal(t, 1, guard.done["video-1"])

	assert.Eventually(t, func() bool {
		n, _ := broker.Pending(context.Background())
		return n == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCrashedDeliveryReappearsAfterVisibility(t *testing.T) {
	broker := NewMemoryBroker(50 * time.Millisecond)
	require.NoError(t, broker.Publish(context.Background(), videoJob("video-2")))

	crashCtx, crash := context.WithCancel(context.Background())
	claimed := make(chan struct{})
	go func() {
		_ = broker.Consume(crashCtx, func(ctx context.Context, d Delivery) {
			close(claimed)
			crash()
		})
	}()
	<-claimed

	runner := newFakeRunner(func(ctx context.Context, job *entity.Job) error { return nil })
	q := New(testConfig(), broker, runner, newDeliveries(), nil, logger.NewNopLogger())
	stop := runQueue(t, q)
	defer stop()

	call := waitFinal(t, runner)
	assert.Equal(t, entity.JobCompleted, call.state)
	assert.Equal(t, 2, call.job.Attempt)
}

func TestAlreadyDeliveredJobIsAckedWithoutRunning(t *testing.T) {
	broker := NewMemoryBroker(0)
	guard := newDeliveries()
	guard.record("video-3")

	runner := newFakeRunner(func(ctx context.Context, job *entity.Job) error {
		t.Error("delivered job ran again")
		return nil
	})
	q := New(testConfig(), broker, runner, guard, nil, logger.NewNopLogger())
	require.NoError(t, q.Submit(context.Background(), videoJob("video-3")))
	stop := runQueue(t, q)
	defer stop()

	call := waitFinal(t, runner)
	assert.Equal(t, entity.JobCompleted, call.state)
	n, _ := broker.Pending(context.Background())
	assert.Zero(t, n)
}

func TestFailedJobIsTerminated(t *testing.T) {
	broker := NewMemoryBroker(0)
	runner := newFakeRunner(func(ctx context.Context, job *entity.Job) error {
		return &entity.JobError{Kind: entity.ErrorPermanent, Detail: "content policy"}
	})
	q := New(testConfig(), broker, runner, newDeliveries(), nil, logger.NewNopLogger())
	require.NoError(t, q.Submit(context.Background(), videoJob("video-4")))
	stop := runQueue(t, q)

	call := waitFinal(t, runner)
	stop()
	assert.Equal(t, entity.JobFailed, call.state)
	assert.Equal(t, entity.ErrorPermanent, entity.ErrorKindOf(call.cause))
	assert.Equal(t, 1, broker.Dead())
	assert.Equal(t, 1, runner.finalCount())
}

func TestAttemptsBeyondMaxAreDropped(t *testing.T) {
	broker := NewMemoryBroker(0)
	job := videoJob("video-5")
	job.MaxAttempts = 1
	job.Attempt = 1
	require.NoError(t, broker.Publish(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	claimed := make(chan struct{})
	go func() {
		_ = broker.Consume(ctx, func(_ context.Context, d Delivery) {
			_ = d.Nak(0)
			close(claimed)
			cancel()
		})
	}()
	<-claimed

	runner := newFakeRunner(func(ctx context.Context, job *entity.Job) error { return nil })
	q := New(testConfig(), broker, runner, newDeliveries(), nil, logger.NewNopLogger())
	stop := runQueue(t, q)
	defer stop()

	call := waitFinal(t, runner)
	assert.Equal(t, entity.JobFailed, call.state)
	runner.mu.Lock()
	assert.Empty(t, runner.attempts)
	runner.mu.Unlock()
	assert.Equal(t, 1, broker.Dead())
}

func TestCancelQueuedDurableJob(t *testing.T) {
	broker := NewMemoryBroker(0)
	runner := newFakeRunner(func(ctx context.Context, job *entity.Job) error { return nil })
	q := New(testConfig(), broker, runner, newDeliveries(), nil, logger.NewNopLogger())
	require.NoError(t, q.Submit(context.Background(), videoJob("video-6")))
	q.Cancel("video-6")

	stop := runQueue(t, q)
	defer stop()
	call := waitFinal(t, runner)
	assert.Equal(t, entity.JobCancelled, call.state)
	assert.ErrorIs(t, call.cause, entity.ErrJobCancelled)
}

func TestSubmitRejectsDeadlineBeyondVisibility(t *testing.T) {
	q := New(Config{Visibility: time.Minute}, NewMemoryBroker(0), newFakeRunner(nil), nil, nil, logger.NewNopLogger())
	job := videoJob("video-7")
	job.Timeout = 10 * time.Minute
	err := q.Submit(context.Background(), job)
	assert.ErrorIs(t, err, ErrDeadlineTooLong)
	assert.Equal(t, entity.ClassDurable, job.Class)
}

func TestJobsWaitingForAWorkerAreNotRedelivered(t *testing.T) {
	broker := NewMemoryBroker(300 * time.Millisecond)
	runner := newFakeRunner(func(ctx context.Context, job *entity.Job) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	})
	cfg := Config{Workers: 1, Visibility: 300 * time.Millisecond, RetryDelay: 10 * time.Millisecond}
	q := New(cfg, broker, runner, newDeliveries(), nil, logger.NewNopLogger())
	for _, id := range []string{"video-a", "video-b", "video-c"} {
		job := videoJob(id)
		job.Timeout = 250 * time.Millisecond
		require.NoError(t, q.Submit(context.Background(), job))
	}

	stop := runQueue(t, q)
	defer stop()
	for i := 0; i < 3; i++ {
		call := waitFinal(t, runner)
		assert.Equal(t, entity.JobCompleted, call.state, call.job.ID)
		assert.Equal(t, 1, call.job.Attempt, call.job.ID)
	}

	// Long enough for any stale claim to expire and come back.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 3, runner.finalCount())
	runner.mu.Lock()
	assert.Len(t, runner.attempts, 3)
	runner.mu.Unlock()
	n, _ := broker.Pending(context.Background())
	assert.Zero(t, n)
}

func TestRedeliveryWithoutMaxAttemptsUsesQueueDefault(t *testing.T) {
	broker := NewMemoryBroker(0)
	job := videoJob("video-8")
	require.Zero(t, job.MaxAttempts)
	require.NoError(t, broker.Publish(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	claimed := make(chan struct{})
	go func() {
		_ = broker.Consume(ctx, func(_ context.Context, d Delivery) {
			_ = d.Nak(0)
			close(claimed)
			cancel()
		})
	}()
	<-claimed

	runner := newFakeRunner(func(ctx context.Context, job *entity.Job) error { return nil })
	q := New(testConfig(), broker, runner, newDeliveries(), nil, logger.NewNopLogger())
	stop := runQueue(t, q)
	defer stop()

	call := waitFinal(t, runner)
	assert.Equal(t, entity.JobCompleted, call.state)
	assert.Equal(t, 2, call.job.Attempt)
	assert.Equal(t, 3, call.job.MaxAttempts)
}

func TestMemoryDeliveryLosesClaimAfterExpiry(t *testing.T) {
	ctx := context.Background()
	broker := NewMemoryBroker(100 * time.Millisecond)
	require.NoError(t, broker.Publish(ctx, videoJob("video-9")))

	m := broker.claim(time.Now())
	require.NotNil(t, m)
	first := &memDelivery{broker: broker, msg: m, attempt: m.deliveries}

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, first.InProgress())
	time.Sleep(60 * time.Millisecond)
	// Extended: still held past the original deadline.
	assert.Nil(t, broker.claim(time.Now()))

	time.Sleep(150 * time.Millisecond)
	m = broker.claim(time.Now())
	require.NotNil(t, m)
	second := &memDelivery{broker: broker, msg: m, attempt: m.deliveries}
	assert.Equal(t, 1, first.Attempt())
	assert.Equal(t, 2, second.Attempt())

	assert.ErrorIs(t, first.InProgress(), errClaimLost)
	require.NoError(t, first.Ack())
	n, _ := broker.Pending(ctx)
	assert.Equal(t, 1, n, "a stale ack must not settle the new claim")

	require.NoError(t, second.Ack())
	n, _ = broker.Pending(ctx)
	assert.Zero(t, n)
}
