// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// Store errors.
var (
	ErrJobNotFound   = scrape.ErrJobNotFound
	ErrDuplicatePost = errors.New("post already exists for this job")
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the subset of pgxpool.Pool the stores use; pgxmock implements
// it for tests.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

func newPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore writes job rows into Postgres.
type JobStore struct {
	pool dbPool
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewJobStoreWithPool(pool dbPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a job row.
func (s *JobStore) CreateJob(ctx context.Context, job scrape.Job) error {
	query := `
INSERT INTO jobs (
	id, seed_url, status, pages_visited, posts_found, posts_skipped,
	error_text, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := s.pool.Exec(ctx, query,
		job.ID,
		job.SeedURL,
		string(job.Status),
		job.Counters.PagesVisited,
		job.Counters.PostsFound,
		job.Counters.PostsSkipped,
		job.ErrorText,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus updates status, error text, and counters, stamping
// started_at and finished_at exactly once on the corresponding transitions.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status scrape.JobStatus,
	errText string,
	counters scrape.JobCounters,
) error {
	query := `
UPDATE jobs SET
	status = $2,
	error_text = $3,
	pages_visited = $4,
	posts_found = $5,
	posts_skipped = $6,
	started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, now()) ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('completed','failed','cancelled') THEN COALESCE(finished_at, now()) ELSE finished_at END
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		jobID,
		string(status),
		errText,
		counters.PagesVisited,
		counters.PostsFound,
		counters.PostsSkipped,
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// UpdateJobProgress checkpoints counters without touching status.
func (s *JobStore) UpdateJobProgress(ctx context.Context, jobID string, counters scrape.JobCounters) error {
	query := `
UPDATE jobs SET
	pages_visited = $2,
	posts_found = $3,
	posts_skipped = $4
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		jobID,
		counters.PagesVisited,
		counters.PostsFound,
		counters.PostsSkipped,
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

const jobColumns = `id, seed_url, status, pages_visited, posts_found, posts_skipped,
	error_text, created_at, started_at, finished_at`

func scanJob(row pgx.Row) (scrape.Job, error) {
	var job scrape.Job
	var status string
	err := row.Scan(
		&job.ID,
		&job.SeedURL,
		&status,
		&job.Counters.PagesVisited,
		&job.Counters.PostsFound,
		&job.Counters.PostsSkipped,
		&job.ErrorText,
		&job.CreatedAt,
		&job.StartedAt,
		&job.FinishedAt,
	)
	if err != nil {
		return scrape.Job{}, err
	}
	job.Status = scrape.JobStatus(status)
	return job, nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (scrape.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Job{}, ErrJobNotFound
	}
	if err != nil {
		return scrape.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// ListJobs returns all jobs, newest first.
func (s *JobStore) ListJobs(ctx context.Context) ([]scrape.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()

	var jobs []scrape.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job row. Posts cascade at the schema level.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
