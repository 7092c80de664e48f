package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"newsbits/internal/config"
	"newsbits/internal/domain"
)

// ErrUnableToLoad is returned when no source succeeded and there is neither
// a cache nor a placeholder set to fall back on.
var ErrUnableToLoad = errors.New("unable to load articles")

type Coordinator struct {
	sources    []domain.FeedSource
	transport  Transport
	parser     FeedParser
	store      ArticleStore
	summarizer Summarizer
	publisher  Publisher
	logger     *slog.Logger
	config     config.FetchConfig

	now          func() time.Time
	placeholders func(time.Time) []domain.Article
}

func NewCoordinator(
	sources []domain.FeedSource,
	transport Transport,
	parser FeedParser,
	store ArticleStore,
	summarizer Summarizer,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.FetchConfig,
) *Coordinator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Coordinator{
		sources:      sources,
		transport:    transport,
		parser:       parser,
		store:        store,
		summarizer:   summarizer,
		publisher:    publisher,
		logger:       logger.With("component", "coordinator"),
		config:       cfg,
		now:          time.Now,
		placeholders: domain.Placeholders,
	}
}

func (c *Coordinator) Sources() []domain.FeedSource {
	return c.sources
}

func (c *Coordinator) FetchAll(ctx context.Context) (*domain.Batch, error) {
	return c.FetchAllProgressive(ctx, nil)
}

// FetchAllProgressive fetches every source concurrently. onSourceReady, if
// set, is called once per source in completion order after that source's
// articles were merged. It is never called concurrently.
func (c *Coordinator) FetchAllProgressive(ctx context.Context, onSourceReady func(domain.SourceResult)) (*domain.Batch, error) {
	startTime := c.now()
	c.logger.Info("starting fetch", "sources", len(c.sources))

	results := make(chan fetchResult, len(c.sources))
	var wg sync.WaitGroup
	for _, src := range c.sources {
		wg.Add(1)
		go func(src domain.FeedSource) {
			defer wg.Done()
			results <- c.fetch(ctx, src)
		}(src)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// merges and announcements outlive cancellation so finished sources are kept
	storeCtx := context.WithoutCancel(ctx)

	batch := &domain.Batch{}
	var added []domain.Article
	for res := range results {
		if res.Err != nil {
			batch.Failures = append(batch.Failures, domain.SourceFailure{Source: res.Source, Err: res.Err})
			c.logger.Warn("source failed", "source", res.Source, "error", res.Err)
		} else {
			retained := c.commit(storeCtx, &res)
			added = append(added, retained...)
			batch.Succeeded++
		}
		if onSourceReady != nil {
			onSourceReady(res.SourceResult)
		}
	}

	batch.Duration = time.Since(startTime)

	if batch.Succeeded == 0 {
		return c.fallback(batch)
	}

	c.store.MarkFirstFetchComplete(storeCtx)
	c.publish(storeCtx, added)

	batch.Articles = c.store.Articles()
	batch.Added = len(added)
	batch.Origin = domain.OriginFetched

	c.logger.Info("fetch completed",
		"succeeded", batch.Succeeded,
		"failed", len(batch.Failures),
		"added", batch.Added,
		"total", len(batch.Articles),
		"duration", batch.Duration,
	)

	return batch, nil
}

// FetchSource runs the pipeline for a single source and merges its result.
func (c *Coordinator) FetchSource(ctx context.Context, src domain.FeedSource) domain.SourceResult {
	res := c.fetch(ctx, src)
	if res.Err != nil {
		return res.SourceResult
	}
	storeCtx := context.WithoutCancel(ctx)
	retained := c.commit(storeCtx, &res)
	c.publish(storeCtx, retained)
	return res.SourceResult
}

type fetchResult struct {
	domain.SourceResult
	startedAt time.Time
}

func (c *Coordinator) fetch(ctx context.Context, src domain.FeedSource) fetchResult {
	startedAt := c.now()
	res := fetchResult{
		SourceResult: domain.SourceResult{Source: src.Name},
		startedAt:    startedAt,
	}
	logger := c.logger.With("source", src.Name)

	lastFetch, seen := c.store.LastFetchTime(src.Name)
	res.FirstFetch = !seen

	body, err := c.download(ctx, src.URL, logger)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(startedAt)
		return res
	}

	params := candidates(src, c.parser.Parse(body), c.now())
	res.Fetched = len(params)

	if res.FirstFetch {
		if limit := c.config.FirstFetchLimit; limit > 0 && len(params) > limit {
			params = params[:limit]
		}
	} else {
		params = sinceLastFetch(params, lastFetch)
	}

	res.Articles = c.build(ctx, params)
	res.Duration = time.Since(startedAt)

	logger.Debug("source fetched",
		"first_fetch", res.FirstFetch,
		"items", res.Fetched,
		"new", len(res.Articles),
	)

	return res
}

func (c *Coordinator) download(ctx context.Context, url string, logger *slog.Logger) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		resp, err := c.transport.Get(ctx, url)
		if err == nil {
			return resp.Body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == c.config.MaxAttempts {
			break
		}

		backoff := time.Duration(attempt) * c.config.BackoffStep
		logger.Warn("fetch attempt failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", url, c.config.MaxAttempts, lastErr)
}

// commit merges a successful result and stamps the source's fetch time.
func (c *Coordinator) commit(ctx context.Context, res *fetchResult) []domain.Article {
	retained := c.store.Merge(ctx, res.Articles)
	res.Added = len(retained)
	c.store.SetLastFetchTime(ctx, res.Source, res.startedAt)
	return retained
}

func (c *Coordinator) fallback(batch *domain.Batch) (*domain.Batch, error) {
	if cached := c.store.Articles(); len(cached) > 0 {
		batch.Articles = cached
		batch.Origin = domain.OriginCache
		c.logger.Warn("all sources failed, serving cache", "articles", len(cached))
		return batch, nil
	}

	if placeholders := c.placeholders(c.now()); len(placeholders) > 0 {
		batch.Articles = placeholders
		batch.Origin = domain.OriginPlaceholder
		c.logger.Warn("all sources failed and cache is empty, serving placeholders")
		return batch, nil
	}

	c.logger.Error("all sources failed and nothing to fall back on")
	return batch, ErrUnableToLoad
}

func (c *Coordinator) publish(ctx context.Context, articles []domain.Article) {
	if c.publisher == nil || len(articles) == 0 {
		return
	}

	var published, failed int
	for i := range articles {
		if err := c.publisher.Publish(ctx, &articles[i]); err != nil {
			failed++
			c.logger.Warn("failed to publish article", "id", articles[i].ID, "error", err)
			continue
		}
		published++
	}

	c.logger.Info("published new articles", "published", published, "failed", failed)
}
