// Package scheduler admits jobs, bounds how many run at once, and fans the
// queue out to runner workers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// Admission errors returned by Submit.
var (
	ErrQueueFull    = errors.New("job queue is full")
	ErrEmptySeed    = errors.New("seed url must not be empty")
	ErrShuttingDown = errors.New("scheduler is shutting down")
)

// ErrNotCancellable is returned by Cancel for jobs that are not tracked,
// typically because they already reached a terminal state.
var ErrNotCancellable = errors.New("job is not pending or running")

// JobRunner executes one job to a terminal status.
type JobRunner interface {
	Run(ctx context.Context, job scrape.Job, cancelled func() bool)
}

// Config controls the scheduler.
type Config struct {
	MaxConcurrentJobs int
	QueueCapacity     int
	JobBudget         time.Duration
}

// Scheduler owns the FIFO queue, the worker pool, and the per-job
// cancellation flags the runners poll.
type Scheduler struct {
	jobs   scrape.JobStore
	runner JobRunner
	ids    scrape.IDGenerator
	clock  scrape.Clock
	cfg    Config
	logger *zap.Logger

	queue chan scrape.Job
	wg    sync.WaitGroup

	mu      sync.Mutex
	flags   map[string]*atomic.Bool
	started bool
	closed  bool
}

// New constructs a Scheduler. Defaults: 3 concurrent jobs, queue capacity
// 100, a 10 minute wall-clock budget per job.
func New(
	jobs scrape.JobStore,
	runner JobRunner,
	ids scrape.IDGenerator,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 3
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 100
	}
	if cfg.JobBudget <= 0 {
		cfg.JobBudget = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:   jobs,
		runner: runner,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan scrape.Job, cfg.QueueCapacity),
		flags:  make(map[string]*atomic.Bool),
	}
}

// Start launches the worker pool. It returns immediately; workers drain the
// queue until ctx finishes.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.work(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) work(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.logger.Debug("worker picked up job",
				zap.Int("worker", id),
				zap.String("job_id", job.ID),
			)
			s.runJob(ctx, job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job scrape.Job) {
	defer s.forget(job.ID)

	// The budget keeps a stalled job from holding a worker slot forever.
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobBudget)
	defer cancel()

	flag := s.flag(job.ID)
	cancelled := func() bool { return flag != nil && flag.Load() }
	s.runner.Run(runCtx, job, cancelled)
}

// Submit shape-validates the seed, persists a pending job, and enqueues it.
// Admission is non-blocking: a full queue rejects the submission outright.
func (s *Scheduler) Submit(ctx context.Context, seedURL string) (string, error) {
	seedURL = strings.TrimSpace(seedURL)
	if seedURL == "" {
		return "", ErrEmptySeed
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrShuttingDown
	}
	s.mu.Unlock()

	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	job := scrape.Job{
		ID:        id,
		SeedURL:   seedURL,
		Status:    scrape.JobStatusPending,
		CreatedAt: s.clock.Now(),
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	s.track(job.ID)
	select {
	case s.queue <- job:
	default:
		s.forget(job.ID)
		if err := s.jobs.UpdateJobStatus(ctx, job.ID, scrape.JobStatusFailed, ErrQueueFull.Error(), scrape.JobCounters{}); err != nil {
			s.logger.Error("mark rejected job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
		return "", ErrQueueFull
	}

	s.logger.Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("seed_url", seedURL),
	)
	return job.ID, nil
}

// Status returns the current job snapshot.
func (s *Scheduler) Status(ctx context.Context, jobID string) (scrape.Job, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// Cancel marks a tracked job for cancellation. Queued jobs are cancelled
// before they start; running jobs stop at the next page boundary.
func (s *Scheduler) Cancel(jobID string) error {
	flag := s.flag(jobID)
	if flag == nil {
		return ErrNotCancellable
	}
	flag.Store(true)
	s.logger.Info("job cancellation requested", zap.String("job_id", jobID))
	return nil
}

// Close stops admitting new jobs. Queued and running jobs finish normally.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Scheduler) track(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[jobID] = &atomic.Bool{}
}

func (s *Scheduler) flag(jobID string) *atomic.Bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[jobID]
}

func (s *Scheduler) forget(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, jobID)
}
