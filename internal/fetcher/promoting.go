package fetcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// Promoting fetches with a cheap HTTP probe first and re-fetches through a
// headless browser when the detector decides the page is client-rendered.
// A failed promotion falls back to the probe response rather than failing
// the fetch.
type Promoting struct {
	probe    scrape.Fetcher
	headless scrape.Fetcher
	detector scrape.HeadlessDetector
	logger   *zap.Logger
}

// NewPromoting builds the composite. headless and detect may be nil, in
// which case every fetch is served by the probe alone.
func NewPromoting(probe, headless scrape.Fetcher, detect scrape.HeadlessDetector, logger *zap.Logger) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{
		probe:    probe,
		headless: headless,
		detector: detect,
		logger:   logger,
	}
}

// Fetch implements scrape.Fetcher.
func (p *Promoting) Fetch(ctx context.Context, request scrape.FetchRequest) (scrape.FetchResponse, error) {
	resp, err := p.probe.Fetch(ctx, request)
	if err != nil {
		return scrape.FetchResponse{}, err
	}
	if p.headless == nil || p.detector == nil || !p.detector.ShouldPromote(resp) {
		return resp, nil
	}

	headlessResp, err := p.headless.Fetch(ctx, request)
	if err != nil {
		p.logger.Warn("headless promotion failed, using probe response",
			zap.String("url", request.URL),
			zap.Error(err),
		)
		return resp, nil
	}
	headlessResp.UsedHeadless = true
	return headlessResp, nil
}
