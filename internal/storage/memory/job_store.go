// Package memory provides in-memory store implementations for development
// and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// Store errors shared by both memory stores.
var (
	ErrJobExists   = errors.New("job already exists")
	ErrJobNotFound = scrape.ErrJobNotFound
)

// JobStore keeps jobs in a map guarded by a RWMutex.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]scrape.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]scrape.Job),
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job scrape.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return ErrJobExists
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status, error text, and counters for a job.
// Timestamps are stamped on the running and terminal transitions.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status scrape.JobStatus,
	errText string,
	counters scrape.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := time.Now().UTC()
	if status == scrape.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = pointerTime(now)
	}
	if status.IsTerminal() && job.FinishedAt == nil {
		job.FinishedAt = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateJobProgress checkpoints counters without touching status.
func (s *JobStore) UpdateJobProgress(_ context.Context, jobID string, counters scrape.JobCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Counters = counters
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.Job{}, ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns all jobs, newest first.
func (s *JobStore) ListJobs(_ context.Context) ([]scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteJob removes a job by ID.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
