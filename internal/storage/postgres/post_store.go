package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// uniqueViolation is the Postgres error code raised by the (job_id,
// post_url) unique index.
const uniqueViolation = "23505"

// PostStore writes post rows into Postgres.
type PostStore struct {
	pool dbPool
}

// NewPostStore creates a Postgres-backed PostStore using the provided config.
func NewPostStore(ctx context.Context, cfg Config) (*PostStore, error) {
	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &PostStore{pool: pool}, nil
}

// NewPostStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewPostStoreWithPool(pool dbPool) (*PostStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *PostStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreatePost inserts a post row. A duplicate post URL within the same job
// maps to ErrDuplicatePost.
func (s *PostStore) CreatePost(ctx context.Context, post scrape.Post) error {
	images, err := json.Marshal(post.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	query := `
INSERT INTO posts (
	id, job_id, listing_url, post_url, title, author, published_at,
	content, excerpt, images, fetched_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err = s.pool.Exec(ctx, query,
		post.ID,
		post.JobID,
		post.ListingURL,
		post.PostURL,
		post.Title,
		post.Author,
		post.PublishedAt,
		post.Content,
		post.Excerpt,
		images,
		post.FetchedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicatePost
		}
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// HasPost reports whether a post URL is already stored for the job.
func (s *PostStore) HasPost(ctx context.Context, jobID, postURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE job_id = $1 AND post_url = $2)`,
		jobID, postURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("post exists: %w", err)
	}
	return exists, nil
}

const postColumns = `id, job_id, listing_url, post_url, title, author,
	published_at, content, excerpt, images, fetched_at`

func scanPost(row pgx.Row) (scrape.Post, error) {
	var post scrape.Post
	var images []byte
	err := row.Scan(
		&post.ID,
		&post.JobID,
		&post.ListingURL,
		&post.PostURL,
		&post.Title,
		&post.Author,
		&post.PublishedAt,
		&post.Content,
		&post.Excerpt,
		&images,
		&post.FetchedAt,
	)
	if err != nil {
		return scrape.Post{}, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &post.Images); err != nil {
			return scrape.Post{}, fmt.Errorf("unmarshal images: %w", err)
		}
	}
	return post, nil
}

// ListPosts returns posts matching the filter, oldest first.
func (s *PostStore) ListPosts(ctx context.Context, filter scrape.PostFilter) ([]scrape.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts`
	var args []any
	if filter.JobID != "" {
		args = append(args, filter.JobID)
		query += ` WHERE job_id = $1`
	}
	query += ` ORDER BY fetched_at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + strconv.Itoa(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// CountPostsForJob returns how many posts a job has stored.
func (s *PostStore) CountPostsForJob(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM posts WHERE job_id = $1`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

// ExportPosts returns every stored post, oldest first.
func (s *PostStore) ExportPosts(ctx context.Context) ([]scrape.Post, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+postColumns+` FROM posts ORDER BY fetched_at, id`)
	if err != nil {
		return nil, fmt.Errorf("select posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

func collectPosts(rows pgx.Rows) ([]scrape.Post, error) {
	var posts []scrape.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}
