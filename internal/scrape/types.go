// Package scrape defines core types shared across subsystems.
package scrape

import "time"

// JobStatus represents the lifecycle state of a scraping job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status can never transition again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobCounters tracks per-job progress stats, checkpointed mid-run.
type JobCounters struct {
	PagesVisited int `json:"pages_visited"`
	PostsFound   int `json:"posts_found"`
	PostsSkipped int `json:"posts_skipped"`
}

// Job represents the metadata persisted for each submitted scrape request.
type Job struct {
	ID         string      `json:"id"`
	SeedURL    string      `json:"seed_url"`
	Status     JobStatus   `json:"status"`
	Counters   JobCounters `json:"counters"`
	ErrorText  string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Post is one extracted blog post. Posts are immutable after creation.
type Post struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	ListingURL  string     `json:"listing_url"`
	PostURL     string     `json:"post_url"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Content     string     `json:"content"`
	Excerpt     string     `json:"excerpt,omitempty"`
	Images      []string   `json:"images"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// Summary is the partial view of a post extracted from a listing page.
// Fields other than Title and PostURL are best-effort and may be empty.
type Summary struct {
	Title       string
	PostURL     string
	Author      string
	PublishedAt *time.Time
	Excerpt     string
	Images      []string
}

// FullPost is the result of extracting a post's own page.
type FullPost struct {
	Title       string
	Author      string
	PublishedAt *time.Time
	Content     string
	Excerpt     string
	Images      []string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID     string
	URL       string
	UserAgent string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// PostFilter narrows ListPosts queries.
type PostFilter struct {
	JobID  string
	Limit  int
	Offset int
}

// EventKind labels job lifecycle events sent through a Publisher.
type EventKind string

// Lifecycle event kinds.
const (
	EventJobStarted  EventKind = "job_started"
	EventJobFinished EventKind = "job_finished"
)

// Event is published when a job starts or reaches a terminal state.
type Event struct {
	Kind     EventKind   `json:"kind"`
	JobID    string      `json:"job_id"`
	SeedURL  string      `json:"seed_url"`
	Status   JobStatus   `json:"status"`
	Counters JobCounters `json:"counters"`
	At       time.Time   `json:"at"`
}
