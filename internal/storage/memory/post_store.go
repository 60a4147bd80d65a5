package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// ErrDuplicatePost is returned when a post URL is already stored for a job.
var ErrDuplicatePost = errors.New("post already exists for this job")

// PostStore keeps posts in insertion order with a per-job URL index for
// dedup lookups.
type PostStore struct {
	mu    sync.RWMutex
	posts []scrape.Post
	byJob map[string]map[string]struct{}
}

// NewPostStore constructs a PostStore.
func NewPostStore() *PostStore {
	return &PostStore{
		byJob: make(map[string]map[string]struct{}),
	}
}

// CreatePost appends a post. A duplicate post URL within the same job is
// rejected.
func (s *PostStore) CreatePost(_ context.Context, post scrape.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls, ok := s.byJob[post.JobID]
	if !ok {
		urls = make(map[string]struct{})
		s.byJob[post.JobID] = urls
	}
	if _, dup := urls[post.PostURL]; dup {
		return ErrDuplicatePost
	}
	urls[post.PostURL] = struct{}{}
	s.posts = append(s.posts, post)
	return nil
}

// HasPost reports whether a post URL is already stored for the job.
func (s *PostStore) HasPost(_ context.Context, jobID, postURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byJob[jobID][postURL]
	return ok, nil
}

// ListPosts returns posts matching the filter in insertion order.
func (s *PostStore) ListPosts(_ context.Context, filter scrape.PostFilter) ([]scrape.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []scrape.Post
	for _, post := range s.posts {
		if filter.JobID != "" && post.JobID != filter.JobID {
			continue
		}
		matched = append(matched, post)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	out := make([]scrape.Post, len(matched))
	copy(out, matched)
	return out, nil
}

// CountPostsForJob returns how many posts a job has stored.
func (s *PostStore) CountPostsForJob(_ context.Context, jobID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byJob[jobID]), nil
}

// ExportPosts returns every stored post in insertion order.
func (s *PostStore) ExportPosts(_ context.Context) ([]scrape.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Post, len(s.posts))
	copy(out, s.posts)
	return out, nil
}
