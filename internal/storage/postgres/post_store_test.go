package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

func newPostStoreMock(t *testing.T) (*PostStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewPostStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

var postCols = []string{
	"id", "job_id", "listing_url", "post_url", "title", "author",
	"published_at", "content", "excerpt", "images", "fetched_at",
}

func TestCreatePostInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newPostStoreMock(t)
	now := time.Unix(1700000000, 0).UTC()
	post := scrape.Post{
		ID:         "post-1",
		JobID:      "job-1",
		ListingURL: "https://blog.example.com/blog/",
		PostURL:    "https://blog.example.com/posts/1",
		Title:      "First",
		Content:    "Body",
		Images:     []string{"https://blog.example.com/a.png"},
		FetchedAt:  now,
	}

	mock.ExpectExec("INSERT INTO posts").
		WithArgs(
			"post-1", "job-1", "https://blog.example.com/blog/",
			"https://blog.example.com/posts/1", "First", "",
			(*time.Time)(nil), "Body", "",
			[]byte(`["https://blog.example.com/a.png"]`), now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreatePost(context.Background(), post))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePostDuplicateMapsToSentinel(t *testing.T) {
	t.Parallel()

	store, mock := newPostStoreMock(t)

	mock.ExpectExec("INSERT INTO posts").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	err := store.CreatePost(context.Background(), scrape.Post{
		ID: "post-1", JobID: "job-1", PostURL: "https://blog.example.com/posts/1",
	})
	require.ErrorIs(t, err, ErrDuplicatePost)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHasPost(t *testing.T) {
	t.Parallel()

	store, mock := newPostStoreMock(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("job-1", "https://blog.example.com/posts/1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := store.HasPost(context.Background(), "job-1", "https://blog.example.com/posts/1")
	require.NoError(t, err)
	require.True(t, has)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPostsFiltersByJob(t *testing.T) {
	t.Parallel()

	store, mock := newPostStoreMock(t)
	now := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows(postCols).AddRow(
		"post-1", "job-1", "https://blog.example.com/blog/",
		"https://blog.example.com/posts/1", "First", "Dana",
		(*time.Time)(nil), "Body", "Body",
		[]byte(`["https://blog.example.com/a.png"]`), now,
	)

	mock.ExpectQuery("SELECT (.+) FROM posts WHERE job_id").
		WithArgs("job-1").
		WillReturnRows(rows)

	posts, err := store.ListPosts(context.Background(), scrape.PostFilter{JobID: "job-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "First", posts[0].Title)
	require.Equal(t, []string{"https://blog.example.com/a.png"}, posts[0].Images)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPostsForJob(t *testing.T) {
	t.Parallel()

	store, mock := newPostStoreMock(t)

	mock.ExpectQuery("SELECT count").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(15))

	count, err := store.CountPostsForJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, 15, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportPostsReturnsAll(t *testing.T) {
	t.Parallel()

	store, mock := newPostStoreMock(t)
	now := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows(postCols).
		AddRow("post-1", "job-1", "l", "u1", "A", "", (*time.Time)(nil), "c", "e", []byte(`[]`), now).
		AddRow("post-2", "job-2", "l", "u2", "B", "", (*time.Time)(nil), "c", "e", []byte(`[]`), now)

	mock.ExpectQuery("SELECT (.+) FROM posts ORDER BY").
		WillReturnRows(rows)

	posts, err := store.ExportPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	require.Empty(t, posts[0].Images)
	require.NoError(t, mock.ExpectationsWereMet())
}
