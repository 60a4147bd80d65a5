package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

func newJobStoreMock(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewJobStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestCreateJobInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)
	now := time.Unix(1700000000, 0).UTC()
	job := scrape.Job{
		ID:        "job-1",
		SeedURL:   "https://blog.example.com/",
		Status:    scrape.JobStatusPending,
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", "https://blog.example.com/", "pending", 0, 0, 0, "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobStatusStampsTransitions(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)
	counters := scrape.JobCounters{PagesVisited: 3, PostsFound: 15}

	mock.ExpectExec("UPDATE jobs SET").
		WithArgs("job-1", "completed", "", 3, 15, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateJobStatus(context.Background(), "job-1", scrape.JobStatusCompleted, "", counters)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobStatusUnknownJob(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)

	mock.ExpectExec("UPDATE jobs SET").
		WithArgs("missing", "failed", "boom", 0, 0, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateJobStatus(context.Background(), "missing", scrape.JobStatusFailed, "boom", scrape.JobCounters{})
	require.ErrorIs(t, err, ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateJobProgressCheckpointsCounters(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)

	mock.ExpectExec("UPDATE jobs SET").
		WithArgs("job-1", 2, 10, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateJobProgress(context.Background(), "job-1", scrape.JobCounters{
		PagesVisited: 2, PostsFound: 10, PostsSkipped: 1,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)
	created := time.Unix(1700000000, 0).UTC()
	started := created.Add(time.Second)

	rows := pgxmock.NewRows([]string{
		"id", "seed_url", "status", "pages_visited", "posts_found",
		"posts_skipped", "error_text", "created_at", "started_at", "finished_at",
	}).AddRow(
		"job-1", "https://blog.example.com/", "running", 1, 5, 0, "",
		created, &started, (*time.Time)(nil),
	)

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusRunning, job.Status)
	require.Equal(t, 5, job.Counters.PostsFound)
	require.NotNil(t, job.StartedAt)
	require.Nil(t, job.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)

	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "seed_url", "status", "pages_visited", "posts_found",
			"posts_skipped", "error_text", "created_at", "started_at", "finished_at",
		}))

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()

	store, mock := newJobStoreMock(t)

	mock.ExpectExec("DELETE FROM jobs").
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, store.DeleteJob(context.Background(), "job-1"))

	mock.ExpectExec("DELETE FROM jobs").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, store.DeleteJob(context.Background(), "missing"), ErrJobNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
