package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

const (
	defaultPostLimit = 50
	maxPostLimit     = 500
)

type submitJobRequest struct {
	URL string `json:"url"`
}

type submitJobResponse struct {
	JobID string `json:"job_id"`
}

type jobListResponse struct {
	Jobs []scrape.Job `json:"jobs"`
}

type postListResponse struct {
	Posts []scrape.Post `json:"posts"`
}

// exportedPost is the export document shape. Optional fields are
// pointers so absent values serialize as explicit JSON nulls.
type exportedPost struct {
	ID            string     `json:"id"`
	BlogURL       string     `json:"blog_url"`
	Title         string     `json:"title"`
	Author        *string    `json:"author"`
	PublishedDate *time.Time `json:"published_date"`
	Content       string     `json:"content"`
	Excerpt       *string    `json:"excerpt"`
	Images        []string   `json:"images"`
	ScrapedAt     time.Time  `json:"scraped_at"`
}

type exportResponse struct {
	TotalPosts int            `json:"total_posts"`
	ExportedAt time.Time      `json:"exported_at"`
	Posts      []exportedPost `json:"posts"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	jobID, err := s.scheduler.Submit(r.Context(), req.URL)
	if err != nil {
		s.logger.Warn("job submission rejected", zap.Error(err))
		writeError(w, schedulerErrorStatus(err), err.Error())
		return
	}
	s.logger.Info("job submitted",
		zap.String("job_id", jobID),
		zap.String("seed_url", req.URL),
	)
	writeJSON(w, http.StatusAccepted, submitJobResponse{JobID: jobID})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs(r.Context())
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []scrape.Job{}
	}
	writeJSON(w, http.StatusOK, jobListResponse{Jobs: jobs})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to look up job")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// deleteJob cancels the job if it is still active and removes its record.
// Posts already persisted for the job are removed with it on backends
// that cascade.
func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	// Cancellation is best effort. A terminal job has nothing to cancel.
	if err := s.scheduler.Cancel(jobID); err == nil {
		s.logger.Info("job cancellation requested", zap.String("job_id", jobID))
	}

	if err := s.jobs.DeleteJob(r.Context(), jobID); err != nil {
		if errors.Is(err, scrape.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("delete job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "job_id": jobID})
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	filter, err := postFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	posts, err := s.posts.ListPosts(r.Context(), filter)
	if err != nil {
		s.logger.Error("list posts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	if posts == nil {
		posts = []scrape.Post{}
	}
	writeJSON(w, http.StatusOK, postListResponse{Posts: posts})
}

func (s *Server) exportPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.posts.ExportPosts(r.Context())
	if err != nil {
		s.logger.Error("export posts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export posts")
		return
	}
	out := exportResponse{
		TotalPosts: len(posts),
		ExportedAt: s.clock.Now(),
		Posts:      make([]exportedPost, 0, len(posts)),
	}
	for _, p := range posts {
		out.Posts = append(out.Posts, toExportedPost(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func toExportedPost(p scrape.Post) exportedPost {
	e := exportedPost{
		ID:            p.ID,
		BlogURL:       p.PostURL,
		Title:         p.Title,
		PublishedDate: p.PublishedAt,
		Content:       p.Content,
		Images:        p.Images,
		ScrapedAt:     p.FetchedAt,
	}
	if p.Author != "" {
		author := p.Author
		e.Author = &author
	}
	if p.Excerpt != "" {
		excerpt := p.Excerpt
		e.Excerpt = &excerpt
	}
	if e.Images == nil {
		e.Images = []string{}
	}
	return e
}

func postFilterFromQuery(r *http.Request) (scrape.PostFilter, error) {
	filter := scrape.PostFilter{
		JobID: r.URL.Query().Get("job_id"),
		Limit: defaultPostLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return scrape.PostFilter{}, errors.New("limit must be a positive integer")
		}
		if limit > maxPostLimit {
			limit = maxPostLimit
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return scrape.PostFilter{}, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}
