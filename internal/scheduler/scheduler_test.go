package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrapeworks/blogwatch/internal/scrape"
	"github.com/scrapeworks/blogwatch/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("job-%04d", g.n), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

// blockingRunner parks every job until released, so tests can observe how
// many run concurrently.
type blockingRunner struct {
	mu      sync.Mutex
	running map[string]bool
	started chan string
	release chan struct{}
	jobs    scrape.JobStore
}

func newBlockingRunner(jobs scrape.JobStore) *blockingRunner {
	return &blockingRunner{
		running: make(map[string]bool),
		started: make(chan string, 16),
		release: make(chan struct{}),
		jobs:    jobs,
	}
}

func (r *blockingRunner) Run(ctx context.Context, job scrape.Job, cancelled func() bool) {
	r.mu.Lock()
	r.running[job.ID] = true
	r.mu.Unlock()
	_ = r.jobs.UpdateJobStatus(ctx, job.ID, scrape.JobStatusRunning, "", scrape.JobCounters{})
	r.started <- job.ID

	select {
	case <-r.release:
	case <-ctx.Done():
	}

	status := scrape.JobStatusCompleted
	if cancelled() {
		status = scrape.JobStatusCancelled
	}
	r.mu.Lock()
	delete(r.running, job.ID)
	r.mu.Unlock()
	_ = r.jobs.UpdateJobStatus(context.WithoutCancel(ctx), job.ID, status, "", scrape.JobCounters{})
}

func (r *blockingRunner) runningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

func newScheduler(t *testing.T, cfg Config) (*Scheduler, *memory.JobStore, *blockingRunner) {
	t.Helper()
	jobs := memory.NewJobStore()
	runner := newBlockingRunner(jobs)
	sched := New(jobs, runner, &seqIDs{}, fixedClock{now: time.Now().UTC()}, cfg, zap.NewNop())
	return sched, jobs, runner
}

func waitStarted(t *testing.T, runner *blockingRunner, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		select {
		case id := <-runner.started:
			ids = append(ids, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d jobs started", i, n)
		}
	}
	return ids
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	sched, _, _ := newScheduler(t, Config{})
	_, err := sched.Submit(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptySeed)

	sched.Close()
	_, err = sched.Submit(context.Background(), "https://blog.example.com/")
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestSubmitIDGenerationFailure(t *testing.T) {
	t.Parallel()

	jobs := memory.NewJobStore()
	sched := New(jobs, newBlockingRunner(jobs), failingIDs{}, fixedClock{now: time.Now().UTC()}, Config{}, zap.NewNop())
	_, err := sched.Submit(context.Background(), "https://blog.example.com/")
	require.Error(t, err)
	require.Contains(t, err.Error(), "generate job id")
}

func TestConcurrencyBound(t *testing.T) {
	t.Parallel()

	sched, jobs, runner := newScheduler(t, Config{MaxConcurrentJobs: 3})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		id, err := sched.Submit(ctx, fmt.Sprintf("https://blog.example.com/%d", i))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	waitStarted(t, runner, 3)
	require.Equal(t, 3, runner.runningCount())

	// The two remaining jobs are queued, still pending.
	pending := 0
	for _, id := range ids {
		job, err := jobs.GetJob(ctx, id)
		require.NoError(t, err)
		if job.Status == scrape.JobStatusPending {
			pending++
		}
	}
	require.Equal(t, 2, pending)

	// Freeing one slot lets exactly one queued job start.
	runner.release <- struct{}{}
	waitStarted(t, runner, 1)
	require.Equal(t, 3, runner.runningCount())

	close(runner.release)
	cancel()
	sched.Wait()
}

func TestSubmitFIFOOrder(t *testing.T) {
	t.Parallel()

	sched, _, runner := newScheduler(t, Config{MaxConcurrentJobs: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	var submitted []string
	for i := 0; i < 4; i++ {
		id, err := sched.Submit(ctx, fmt.Sprintf("https://blog.example.com/%d", i))
		require.NoError(t, err)
		submitted = append(submitted, id)
	}

	var started []string
	for i := 0; i < 4; i++ {
		started = append(started, waitStarted(t, runner, 1)...)
		runner.release <- struct{}{}
	}
	require.Equal(t, submitted, started)

	cancel()
	sched.Wait()
}

func TestQueueFullRejectsSubmission(t *testing.T) {
	t.Parallel()

	// No workers started, capacity 2: the third submission must bounce.
	sched, jobs, _ := newScheduler(t, Config{QueueCapacity: 2})
	ctx := context.Background()

	_, err := sched.Submit(ctx, "https://blog.example.com/1")
	require.NoError(t, err)
	_, err = sched.Submit(ctx, "https://blog.example.com/2")
	require.NoError(t, err)

	_, err = sched.Submit(ctx, "https://blog.example.com/3")
	require.ErrorIs(t, err, ErrQueueFull)

	// The rejected job is observable as failed, not stuck pending.
	listed, err := jobs.ListJobs(ctx)
	require.NoError(t, err)
	failed := 0
	for _, job := range listed {
		if job.Status == scrape.JobStatusFailed {
			failed++
			require.Contains(t, job.ErrorText, "queue is full")
		}
	}
	require.Equal(t, 1, failed)
}

func TestCancelRunningJob(t *testing.T) {
	t.Parallel()

	sched, jobs, runner := newScheduler(t, Config{MaxConcurrentJobs: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	id, err := sched.Submit(ctx, "https://blog.example.com/")
	require.NoError(t, err)
	waitStarted(t, runner, 1)

	require.NoError(t, sched.Cancel(id))
	close(runner.release)

	require.Eventually(t, func() bool {
		job, err := jobs.GetJob(context.Background(), id)
		return err == nil && job.Status == scrape.JobStatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	// Once terminal, the job is no longer tracked.
	require.ErrorIs(t, sched.Cancel(id), ErrNotCancellable)

	cancel()
	sched.Wait()
}

func TestCancelUnknownJob(t *testing.T) {
	t.Parallel()

	sched, _, _ := newScheduler(t, Config{})
	require.ErrorIs(t, sched.Cancel("nope"), ErrNotCancellable)
}

func TestJobBudgetCancelsStalledJob(t *testing.T) {
	t.Parallel()

	sched, jobs, runner := newScheduler(t, Config{MaxConcurrentJobs: 1, JobBudget: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	id, err := sched.Submit(ctx, "https://blog.example.com/")
	require.NoError(t, err)
	waitStarted(t, runner, 1)

	// The runner never gets released; the budget must unblock it.
	require.Eventually(t, func() bool {
		job, err := jobs.GetJob(context.Background(), id)
		return err == nil && job.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	sched.Wait()
}
