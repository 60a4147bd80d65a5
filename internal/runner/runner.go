// Package runner executes one scraping job: the sequential pagination loop
// over listing pages, per-post fetching, and checkpointed persistence.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrapeworks/blogwatch/internal/extract"
	"github.com/scrapeworks/blogwatch/internal/metrics"
	"github.com/scrapeworks/blogwatch/internal/scrape"
	"github.com/scrapeworks/blogwatch/internal/urlguard"
)

// Config controls Runner behavior.
type Config struct {
	MaxPages    int
	BlobPrefix  string
	ContentType string

	// ValidateURL overrides the default urlguard check, typically to add a
	// deployment blocklist. Nil means urlguard.Validate.
	ValidateURL func(string) error
}

// FetcherFactory builds the fetch pipeline for one job run. Each run gets
// its own pipeline so throttles pace jobs independently.
type FetcherFactory func() scrape.Fetcher

// Runner drives a single job from pending to a terminal status. It is safe
// to share one Runner across scheduler workers; all per-run state lives in
// Run's frame.
type Runner struct {
	jobs       scrape.JobStore
	posts      scrape.PostStore
	extractor  *extract.Extractor
	newFetcher FetcherFactory
	archive    scrape.BlobStore
	hasher     scrape.Hasher
	publisher  scrape.Publisher
	clock      scrape.Clock
	ids        scrape.IDGenerator
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Runner. archive, hasher, and publisher may be nil, which
// disables snapshotting and event publishing respectively.
func New(
	jobs scrape.JobStore,
	posts scrape.PostStore,
	extractor *extract.Extractor,
	newFetcher FetcherFactory,
	archive scrape.BlobStore,
	hasher scrape.Hasher,
	publisher scrape.Publisher,
	clock scrape.Clock,
	ids scrape.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.ValidateURL == nil {
		cfg.ValidateURL = urlguard.Validate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		jobs:       jobs,
		posts:      posts,
		extractor:  extractor,
		newFetcher: newFetcher,
		archive:    archive,
		hasher:     hasher,
		publisher:  publisher,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes the job to a terminal status. cancelled is polled at every
// page boundary; a nil func means the job cannot be cancelled externally.
// All outcomes are reported through the job store, never returned.
func (r *Runner) Run(ctx context.Context, job scrape.Job, cancelled func() bool) {
	metrics.IncActiveRunners()
	defer metrics.DecActiveRunners()

	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	counters := scrape.JobCounters{}

	if err := r.cfg.ValidateURL(job.SeedURL); err != nil {
		r.logger.Warn("seed url rejected",
			zap.String("job_id", job.ID),
			zap.String("url", job.SeedURL),
			zap.Error(err),
		)
		r.finish(ctx, job, scrape.JobStatusFailed, fmt.Sprintf("seed url rejected: %v", err), counters)
		return
	}

	if err := r.jobs.UpdateJobStatus(ctx, job.ID, scrape.JobStatusRunning, "", counters); err != nil {
		r.logger.Error("job status update failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}
	r.publish(ctx, scrape.EventJobStarted, job, scrape.JobStatusRunning, counters)

	fetch := r.newFetcher()
	visited := make(map[string]struct{})
	current := job.SeedURL
	status := scrape.JobStatusCompleted
	errText := ""

pages:
	for page := 0; page < r.cfg.MaxPages && current != ""; page++ {
		if cancelled() || ctx.Err() != nil {
			status = scrape.JobStatusCancelled
			break
		}

		// Listing pages can carry attacker-influenced next links, so every
		// page URL passes the guard, not just the seed. A rejection ends
		// pagination with the partial results kept.
		if err := r.cfg.ValidateURL(current); err != nil {
			errText = fmt.Sprintf("next link rejected %s: %v", current, err)
			r.logger.Warn("next link rejected",
				zap.String("job_id", job.ID),
				zap.String("url", current),
				zap.Error(err),
			)
			break
		}

		normalized, err := scrape.NormalizeURL(current)
		if err != nil {
			normalized = current
		}
		if _, seen := visited[normalized]; seen {
			r.logger.Debug("next link already visited, stopping",
				zap.String("job_id", job.ID),
				zap.String("url", current),
			)
			break
		}
		visited[normalized] = struct{}{}

		resp, err := fetch.Fetch(ctx, scrape.FetchRequest{JobID: job.ID, URL: current})
		if err != nil {
			metrics.ObservePage(current, "error")
			errText = fmt.Sprintf("listing fetch %s: %v", current, err)
			if counters.PagesVisited == 0 {
				status = scrape.JobStatusFailed
			}
			r.logger.Error("listing fetch failed",
				zap.String("job_id", job.ID),
				zap.String("url", current),
				zap.Int("pages_visited", counters.PagesVisited),
				zap.Error(err),
			)
			break
		}
		counters.PagesVisited++
		metrics.ObservePage(current, "success")
		r.archivePage(ctx, job.ID, resp)

		pageURL := resp.URL
		if pageURL == "" {
			pageURL = current
		}
		summaries, next := r.extractor.Listing(string(resp.Body), pageURL)
		r.logger.Debug("listing extracted",
			zap.String("job_id", job.ID),
			zap.String("url", pageURL),
			zap.Int("summaries", len(summaries)),
			zap.Bool("has_next", next != ""),
		)

		for _, summary := range summaries {
			if err := r.handlePost(ctx, fetch, job, pageURL, summary, &counters); err != nil {
				status = scrape.JobStatusFailed
				errText = fmt.Sprintf("persist post %s: %v", summary.PostURL, err)
				break pages
			}
		}

		if err := r.jobs.UpdateJobProgress(ctx, job.ID, counters); err != nil {
			status = scrape.JobStatusFailed
			errText = fmt.Sprintf("checkpoint progress: %v", err)
			r.logger.Error("progress checkpoint failed",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
			break
		}

		current = next
	}

	if status != scrape.JobStatusCancelled && (cancelled() || ctx.Err() != nil) {
		status = scrape.JobStatusCancelled
	}

	r.finish(ctx, job, status, errText, counters)
}

// handlePost fetches and persists one discovered post. Guard rejections,
// fetch failures, dedup hits, and empty extractions are absorbed here; only
// storage errors propagate and fail the job.
func (r *Runner) handlePost(
	ctx context.Context,
	fetch scrape.Fetcher,
	job scrape.Job,
	listingURL string,
	summary scrape.Summary,
	counters *scrape.JobCounters,
) error {
	if summary.PostURL == "" {
		counters.PostsSkipped++
		metrics.ObservePost("skipped")
		return nil
	}
	// Dedup keys on the normalized URL so fragment or default-port variants
	// of the same post cannot persist twice.
	if normalized, err := scrape.NormalizeURL(summary.PostURL); err == nil {
		summary.PostURL = normalized
	}
	if err := r.cfg.ValidateURL(summary.PostURL); err != nil {
		counters.PostsSkipped++
		metrics.ObservePost("skipped")
		r.logger.Warn("post url rejected",
			zap.String("job_id", job.ID),
			zap.String("url", summary.PostURL),
			zap.Error(err),
		)
		return nil
	}

	exists, err := r.posts.HasPost(ctx, job.ID, summary.PostURL)
	if err != nil {
		return fmt.Errorf("post lookup: %w", err)
	}
	if exists {
		counters.PostsSkipped++
		metrics.ObservePost("skipped")
		return nil
	}

	resp, err := fetch.Fetch(ctx, scrape.FetchRequest{JobID: job.ID, URL: summary.PostURL})
	if err != nil {
		counters.PostsSkipped++
		metrics.ObservePost("failed")
		r.logger.Warn("post fetch failed, skipping",
			zap.String("job_id", job.ID),
			zap.String("url", summary.PostURL),
			zap.Error(err),
		)
		return nil
	}

	post := r.mergePost(job, listingURL, summary, resp)
	if post.Title == "" && post.Content == "" {
		counters.PostsSkipped++
		metrics.ObservePost("skipped")
		r.logger.Debug("post yielded no title and no content, skipping",
			zap.String("job_id", job.ID),
			zap.String("url", summary.PostURL),
		)
		return nil
	}

	if err := r.posts.CreatePost(ctx, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	counters.PostsFound++
	metrics.ObservePost("persisted")
	return nil
}

// mergePost combines the listing summary with the post page extraction.
// The post page wins field by field; the summary fills gaps.
func (r *Runner) mergePost(
	job scrape.Job,
	listingURL string,
	summary scrape.Summary,
	resp scrape.FetchResponse,
) scrape.Post {
	pageURL := resp.URL
	if pageURL == "" {
		pageURL = summary.PostURL
	}
	full := r.extractor.Content(string(resp.Body), pageURL)

	post := scrape.Post{
		JobID:       job.ID,
		ListingURL:  listingURL,
		PostURL:     summary.PostURL,
		Title:       full.Title,
		Author:      full.Author,
		PublishedAt: full.PublishedAt,
		Content:     full.Content,
		Excerpt:     full.Excerpt,
		Images:      full.Images,
		FetchedAt:   r.clock.Now(),
	}
	if post.Title == "" {
		post.Title = summary.Title
	}
	if post.Author == "" {
		post.Author = summary.Author
	}
	if post.PublishedAt == nil {
		post.PublishedAt = summary.PublishedAt
	}
	if post.Excerpt == "" {
		post.Excerpt = summary.Excerpt
	}
	if len(post.Images) == 0 {
		post.Images = summary.Images
	}

	id, err := r.ids.NewID()
	if err != nil {
		// UUID generation failing means a broken entropy source; fall back
		// to a URL-derived identifier so the post is still addressable.
		id = fmt.Sprintf("%s-%d", job.ID, r.clock.Now().UnixNano())
	}
	post.ID = id
	return post
}

// archivePage snapshots the raw listing body. Failures are logged and
// swallowed; the archive is an observability aid, not part of the job.
func (r *Runner) archivePage(ctx context.Context, jobID string, resp scrape.FetchResponse) {
	if r.archive == nil || r.hasher == nil {
		return
	}
	digest, err := r.hasher.Hash(resp.Body)
	if err != nil {
		r.logger.Warn("hash listing body failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	uri, err := r.archive.PutObject(ctx, r.blobPath(jobID, digest), r.cfg.ContentType, resp.Body)
	if err != nil {
		r.logger.Warn("archive listing failed",
			zap.String("job_id", jobID),
			zap.String("url", resp.URL),
			zap.Error(err),
		)
		return
	}
	r.logger.Debug("listing archived",
		zap.String("job_id", jobID),
		zap.String("uri", uri),
	)
}

func (r *Runner) blobPath(jobID, digest string) string {
	prefix := strings.Trim(r.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", jobID, digest)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, jobID, digest)
}

// finish records the terminal status exactly once and emits the terminal
// event and metric.
func (r *Runner) finish(
	ctx context.Context,
	job scrape.Job,
	status scrape.JobStatus,
	errText string,
	counters scrape.JobCounters,
) {
	// The terminal write must land even when the run context is already
	// cancelled, otherwise a cancelled job would stay running forever.
	storeCtx := ctx
	if storeCtx.Err() != nil {
		var cancel context.CancelFunc
		storeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	if err := r.jobs.UpdateJobStatus(storeCtx, job.ID, status, errText, counters); err != nil {
		r.logger.Error("final job status update failed",
			zap.String("job_id", job.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveJob(string(status))
	r.publish(storeCtx, scrape.EventJobFinished, job, status, counters)
	r.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(status)),
		zap.Int("pages_visited", counters.PagesVisited),
		zap.Int("posts_found", counters.PostsFound),
		zap.Int("posts_skipped", counters.PostsSkipped),
	)
}

func (r *Runner) publish(ctx context.Context, kind scrape.EventKind, job scrape.Job, status scrape.JobStatus, counters scrape.JobCounters) {
	if r.publisher == nil {
		return
	}
	event := scrape.Event{
		Kind:     kind,
		JobID:    job.ID,
		SeedURL:  job.SeedURL,
		Status:   status,
		Counters: counters,
		At:       r.clock.Now(),
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("event publish failed",
			zap.String("job_id", job.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}
