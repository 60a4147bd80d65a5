// Package main wires together the blogwatch service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/scrapeworks/blogwatch/internal/api"
	archivegcs "github.com/scrapeworks/blogwatch/internal/archive/gcs"
	archivelocal "github.com/scrapeworks/blogwatch/internal/archive/local"
	archivememory "github.com/scrapeworks/blogwatch/internal/archive/memory"
	"github.com/scrapeworks/blogwatch/internal/clock/system"
	"github.com/scrapeworks/blogwatch/internal/config"
	eventspubsub "github.com/scrapeworks/blogwatch/internal/events/pubsub"
	"github.com/scrapeworks/blogwatch/internal/extract"
	"github.com/scrapeworks/blogwatch/internal/fetcher"
	collyfetcher "github.com/scrapeworks/blogwatch/internal/fetcher/colly"
	"github.com/scrapeworks/blogwatch/internal/fetcher/detector"
	headlessfetcher "github.com/scrapeworks/blogwatch/internal/fetcher/headless"
	"github.com/scrapeworks/blogwatch/internal/hash/sha256"
	"github.com/scrapeworks/blogwatch/internal/id/uuid"
	"github.com/scrapeworks/blogwatch/internal/logging"
	"github.com/scrapeworks/blogwatch/internal/metrics"
	"github.com/scrapeworks/blogwatch/internal/runner"
	"github.com/scrapeworks/blogwatch/internal/scheduler"
	"github.com/scrapeworks/blogwatch/internal/scrape"
	memorystorage "github.com/scrapeworks/blogwatch/internal/storage/memory"
	"github.com/scrapeworks/blogwatch/internal/storage/postgres"
	"github.com/scrapeworks/blogwatch/internal/throttle"
	"github.com/scrapeworks/blogwatch/internal/urlguard"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, postStore, err := buildStores(ctx, cfg)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	publisher, cleanup, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("events init failed", zap.Error(err))
	}
	defer cleanup()

	clock := system.New()
	idGen := uuid.New()
	hasher := sha256.New()
	extractor := extract.New(cfg.Scraper.ExcerptLength)

	newFetcher := buildFetcherFactory(cfg, logger)

	run := runner.New(
		jobStore,
		postStore,
		extractor,
		newFetcher,
		archive,
		hasher,
		publisher,
		clock,
		idGen,
		runner.Config{
			MaxPages:    cfg.Scraper.MaxPages,
			BlobPrefix:  cfg.Archive.Prefix,
			ContentType: cfg.Archive.ContentType,
			ValidateURL: urlguard.NewGuard(cfg.Scraper.BlockedDomains).Validate,
		},
		logger.Named("runner"),
	)

	sched := scheduler.New(
		jobStore,
		run,
		idGen,
		clock,
		scheduler.Config{
			MaxConcurrentJobs: cfg.Scraper.MaxConcurrentJobs,
			QueueCapacity:     cfg.Scraper.QueueCapacity,
			JobBudget:         cfg.Scraper.JobBudget(),
		},
		logger.Named("scheduler"),
	)
	sched.Start(ctx)

	apiServer := api.NewServer(sched, jobStore, postStore, clock, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	sched.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	sched.Wait()
	logger.Info("shutdown complete")
}

func buildStores(ctx context.Context, cfg config.Config) (scrape.JobStore, scrape.PostStore, error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		pgCfg := postgres.Config{
			DSN:      cfg.Storage.DSN,
			MaxConns: int32(cfg.Storage.MaxConns),
			MinConns: int32(cfg.Storage.MinConns),
		}
		jobs, err := postgres.NewJobStore(ctx, pgCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres job store: %w", err)
		}
		posts, err := postgres.NewPostStore(ctx, pgCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres post store: %w", err)
		}
		return jobs, posts, nil
	default:
		return memorystorage.NewJobStore(), memorystorage.NewPostStore(), nil
	}
}

func buildArchive(ctx context.Context, cfg config.Config) (scrape.BlobStore, error) {
	switch cfg.Archive.Backend {
	case config.ArchiveMemory:
		return archivememory.NewBlobStore(), nil
	case config.ArchiveLocal:
		store, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive: %w", err)
		}
		return store, nil
	case config.ArchiveGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		store, err := archivegcs.New(client, archivegcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (scrape.Publisher, func(), error) {
	if cfg.Events.Backend != config.EventsPubSub {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Events.TopicName)
	cleanup := func() {
		topic.Stop()
		if closeErr := client.Close(); closeErr != nil {
			zap.L().Warn("pubsub client close failed", zap.Error(closeErr))
		}
	}
	return eventspubsub.New(topic), cleanup, nil
}

// buildFetcherFactory assembles the per-job fetch pipeline. Each call to the
// returned factory creates a fresh throttle so concurrent jobs pace
// themselves independently.
func buildFetcherFactory(cfg config.Config, logger *zap.Logger) runner.FetcherFactory {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgents: userAgents(cfg),
		Timeout:    cfg.Fetch.FetchTimeout(),
	})

	var headless scrape.Fetcher
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: cfg.Headless.NavTimeout(),
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			headless = hf
		}
	}
	detect := detector.NewHeuristic(cfg.Headless.BodyLenThresh)

	policy := scrape.RetryPolicy{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BaseDelay:   cfg.Fetch.BackoffInitial(),
		MaxDelay:    cfg.Fetch.BackoffMax(),
	}

	return func() scrape.Fetcher {
		base := fetcher.NewPromoting(probe, headless, detect, logger.Named("fetcher"))
		thr := throttle.New(throttle.Config{
			MinDelay: cfg.Scraper.MinDelay(),
			MaxDelay: cfg.Scraper.MaxDelay(),
		})
		return fetcher.NewRetrying(base, thr, policy, cfg.Fetch.FetchTimeout(), logger.Named("fetcher"))
	}
}

func userAgents(cfg config.Config) []string {
	if cfg.Scraper.UserAgent == "" {
		return nil
	}
	return []string{cfg.Scraper.UserAgent}
}
