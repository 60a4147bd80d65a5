package scrape

import (
	"context"
	"time"
)

// JobStore persists job metadata. Implementations must be safe for
// concurrent use by multiple runners.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string, counters JobCounters) error
	UpdateJobProgress(ctx context.Context, jobID string, counters JobCounters) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// PostStore persists extracted posts.
type PostStore interface {
	CreatePost(ctx context.Context, post Post) error
	HasPost(ctx context.Context, jobID, postURL string) (bool, error)
	ListPosts(ctx context.Context, filter PostFilter) ([]Post, error)
	CountPostsForJob(ctx context.Context, jobID string) (int, error)
	ExportPosts(ctx context.Context) ([]Post, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Throttle suspends the caller between successive fetches. Wait returns the
// delay actually applied; it never fails, cancellation only cuts it short.
type Throttle interface {
	Wait(ctx context.Context) time.Duration
}

// HeadlessDetector decides whether a headless re-fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Hasher produces a stable digest of page bodies, used to name archive
// objects.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Publisher pushes job lifecycle events to an external consumer.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and post IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
