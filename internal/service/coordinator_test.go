package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"newsbits/internal/cache"
	"newsbits/internal/config"
	"newsbits/internal/domain"
	"newsbits/internal/service/mocks"
	"newsbits/internal/source/rss"
	"newsbits/internal/storage"
	"newsbits/internal/transport"
)

var (
	bbc = domain.FeedSource{
		URL:      "https://feeds.example.com/bbc.xml",
		Name:     "BBC News",
		Category: domain.CategoryBreaking,
	}
	verge = domain.FeedSource{
		URL:      "https://feeds.example.com/verge.xml",
		Name:     "The Verge",
		Category: domain.CategoryTech,
	}
)

type feedItem struct {
	title   string
	link    string
	pubDate string
}

func feedXML(items ...feedItem) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel>`)
	b.WriteString(`<title>Test</title><link>https://example.com</link><description>Test feed</description>`)
	for _, it := range items {
		b.WriteString("<item>")
		fmt.Fprintf(&b, "<title>%s</title>", it.title)
		if it.link != "" {
			fmt.Fprintf(&b, "<link>%s</link>", it.link)
		}
		fmt.Fprintf(&b, "<description>About %s.</description>", it.title)
		fmt.Fprintf(&b, "<pubDate>%s</pubDate>", it.pubDate)
		b.WriteString("</item>")
	}
	b.WriteString("</channel></rss>")
	return []byte(b.String())
}

func ok(body []byte) *transport.Response {
	return &transport.Response{StatusCode: 200, Body: body}
}

type CoordinatorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	transport *mocks.MockTransport
	publisher *mocks.MockPublisher
	store     *cache.Store

	cfg    config.FetchConfig
	logger *slog.Logger
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.transport = mocks.NewMockTransport(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.store = cache.Open(context.Background(), storage.NewMemory(), cache.DefaultLimit, s.logger)

	s.cfg = config.FetchConfig{
		MaxAttempts:     3,
		BackoffStep:     time.Millisecond,
		FirstFetchLimit: 50,
	}
}

func (s *CoordinatorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) coordinator(sources ...domain.FeedSource) *Coordinator {
	return NewCoordinator(sources, s.transport, rss.NewParser(), s.store, nil, nil, s.logger, s.cfg)
}

func (s *CoordinatorTestSuite) TestFetchAll_FirstFetchIsCapped() {
	ctx := context.Background()
	now := time.Now()

	items := make([]feedItem, 60)
	for i := range items {
		items[i] = feedItem{
			title:   fmt.Sprintf("Story %d", i),
			link:    fmt.Sprintf("https://example.com/story/%d", i),
			pubDate: now.Add(-time.Duration(i) * time.Minute).Format(time.RFC1123Z),
		}
	}
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(feedXML(items...)), nil)

	batch, err := s.coordinator(bbc).FetchAll(ctx)

	s.NoError(err)
	s.Equal(domain.OriginFetched, batch.Origin)
	s.Equal(1, batch.Succeeded)
	s.Equal(50, batch.Added)
	s.Len(batch.Articles, 50)
	s.Equal("Story 0", batch.Articles[0].Headline)
	s.Equal("Story 49", batch.Articles[49].Headline)

	_, fetched := s.store.LastFetchTime(bbc.Name)
	s.True(fetched)
	s.True(s.store.HasCompletedFirstFetch())
}

func (s *CoordinatorTestSuite) TestFetchAll_DeltaKeepsOnlyNewerItems() {
	ctx := context.Background()
	last := time.Now().Add(-time.Hour).Truncate(time.Second)
	s.store.SetLastFetchTime(ctx, bbc.Name, last)

	body := feedXML(
		feedItem{title: "Old", link: "https://example.com/old", pubDate: last.Add(-time.Hour).Format(time.RFC1123Z)},
		feedItem{title: "Boundary", link: "https://example.com/boundary", pubDate: last.Format(time.RFC1123Z)},
		feedItem{title: "Fresh", link: "https://example.com/fresh", pubDate: last.Add(30 * time.Minute).Format(time.RFC1123Z)},
	)
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(body), nil)

	batch, err := s.coordinator(bbc).FetchAll(ctx)

	s.NoError(err)
	s.Require().Len(batch.Articles, 1)
	s.Equal("Fresh", batch.Articles[0].Headline)

	newLast, _ := s.store.LastFetchTime(bbc.Name)
	s.True(newLast.After(last))
}

func (s *CoordinatorTestSuite) TestFetchAll_UnparsableDateCountsAsNew() {
	ctx := context.Background()
	s.store.SetLastFetchTime(ctx, bbc.Name, time.Now().Add(-time.Minute))

	body := feedXML(feedItem{title: "Undated", link: "https://example.com/undated", pubDate: "sometime last week"})
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(body), nil)

	batch, err := s.coordinator(bbc).FetchAll(ctx)

	s.NoError(err)
	s.Require().Len(batch.Articles, 1)
	s.Equal("Undated", batch.Articles[0].Headline)
	s.WithinDuration(time.Now(), batch.Articles[0].PublishedAt, 5*time.Second)
}

func (s *CoordinatorTestSuite) TestFetchAll_ConvertsItems() {
	ctx := context.Background()

	body := feedXML(
		feedItem{title: "Linked &amp; escaped", link: "/news/1", pubDate: time.Now().Format(time.RFC1123Z)},
		feedItem{title: "   ", link: "https://example.com/blank", pubDate: time.Now().Format(time.RFC1123Z)},
	)
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(body), nil)

	batch, err := s.coordinator(bbc).FetchAll(ctx)

	s.NoError(err)
	s.Require().Len(batch.Articles, 1)
	a := batch.Articles[0]
	s.Equal("Linked & escaped", a.Headline)
	s.Equal("https://feeds.example.com/news/1", a.ArticleURL)
	s.Equal(domain.CategoryBreaking, a.Category)
	s.Equal("BBC News", a.Source)
	s.NotEmpty(a.ID)
}

func (s *CoordinatorTestSuite) TestFetchAll_RetriesTransientFailures() {
	ctx := context.Background()
	body := feedXML(feedItem{title: "Eventually", link: "https://example.com/e", pubDate: time.Now().Format(time.RFC1123Z)})

	gomock.InOrder(
		s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(nil, errors.New("connection reset")),
		s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(nil), &transport.StatusError{URL: bbc.URL, StatusCode: 503}),
		s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(body), nil),
	)

	batch, err := s.coordinator(bbc).FetchAll(ctx)

	s.NoError(err)
	s.Equal(1, batch.Succeeded)
	s.Len(batch.Articles, 1)
}

func (s *CoordinatorTestSuite) TestFetchAll_GivesUpAfterMaxAttempts() {
	ctx := context.Background()
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(nil, errors.New("no route to host")).Times(3)

	batch, err := s.coordinator(bbc).FetchAll(ctx)

	s.NoError(err)
	s.Equal(domain.OriginPlaceholder, batch.Origin)
	s.Equal(0, batch.Succeeded)
	s.Require().Len(batch.Failures, 1)
	s.Equal(bbc.Name, batch.Failures[0].Source)
	s.ErrorContains(batch.Failures[0].Err, "after 3 attempts")

	_, fetched := s.store.LastFetchTime(bbc.Name)
	s.False(fetched)
	s.False(s.store.HasCompletedFirstFetch())
}

func (s *CoordinatorTestSuite) TestFetchAll_AllFailedServesCache() {
	ctx := context.Background()
	cached, _ := domain.NewArticle(domain.ArticleParams{
		Headline:    "Cached",
		Source:      "BBC News",
		Category:    domain.CategoryBreaking,
		PublishedAt: time.Now(),
		ArticleURL:  "https://example.com/cached",
	})
	s.store.Merge(ctx, []domain.Article{cached})

	s.transport.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("offline")).AnyTimes()

	batch, err := s.coordinator(bbc, verge).FetchAll(ctx)

	s.NoError(err)
	s.Equal(domain.OriginCache, batch.Origin)
	s.Len(batch.Failures, 2)
	s.Require().Len(batch.Articles, 1)
	s.Equal("Cached", batch.Articles[0].Headline)
}

func (s *CoordinatorTestSuite) TestFetchAll_NothingToFallBackOn() {
	ctx := context.Background()
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(nil, errors.New("offline")).Times(3)

	c := s.coordinator(bbc)
	c.placeholders = func(time.Time) []domain.Article { return nil }

	_, err := c.FetchAll(ctx)

	s.ErrorIs(err, ErrUnableToLoad)
}

func (s *CoordinatorTestSuite) TestFetchAll_PartialFailure() {
	ctx := context.Background()
	body := feedXML(feedItem{title: "Gadget", link: "https://example.com/gadget", pubDate: time.Now().Format(time.RFC1123Z)})

	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(nil, errors.New("offline")).Times(3)
	s.transport.EXPECT().Get(gomock.Any(), verge.URL).Return(ok(body), nil)

	batch, err := s.coordinator(bbc, verge).FetchAll(ctx)

	s.NoError(err)
	s.Equal(domain.OriginFetched, batch.Origin)
	s.Equal(1, batch.Succeeded)
	s.Len(batch.Failures, 1)
	s.Require().Len(batch.Articles, 1)
	s.Equal("The Verge", batch.Articles[0].Source)
}

func (s *CoordinatorTestSuite) TestFetchAll_DeduplicatesAcrossSources() {
	ctx := context.Background()
	shared := feedItem{title: "Same story", link: "https://example.com/shared", pubDate: time.Now().Format(time.RFC1123Z)}

	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(feedXML(shared)), nil)
	s.transport.EXPECT().Get(gomock.Any(), verge.URL).Return(ok(feedXML(shared)), nil)

	batch, err := s.coordinator(bbc, verge).FetchAll(ctx)

	s.NoError(err)
	s.Equal(2, batch.Succeeded)
	s.Equal(1, batch.Added)
	s.Len(batch.Articles, 1)
}

func (s *CoordinatorTestSuite) TestFetchAll_PublishesNewArticles() {
	ctx := context.Background()
	body := feedXML(
		feedItem{title: "One", link: "https://example.com/1", pubDate: time.Now().Format(time.RFC1123Z)},
		feedItem{title: "Two", link: "https://example.com/2", pubDate: time.Now().Format(time.RFC1123Z)},
	)
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(body), nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("channel closed"))

	c := NewCoordinator([]domain.FeedSource{bbc}, s.transport, rss.NewParser(), s.store, nil, s.publisher, s.logger, s.cfg)
	batch, err := c.FetchAll(ctx)

	s.NoError(err)
	s.Equal(2, batch.Added)
}

func (s *CoordinatorTestSuite) TestFetchAll_UsesSummarizer() {
	ctx := context.Background()
	summarizer := mocks.NewMockSummarizer(s.ctrl)
	ai := "Short take."

	body := feedXML(feedItem{title: "Long read", link: "https://example.com/long", pubDate: time.Now().Format(time.RFC1123Z)})
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(body), nil)
	summarizer.EXPECT().Summarize(gomock.Any(), "About Long read.").Return("About Long…", &ai)

	c := NewCoordinator([]domain.FeedSource{bbc}, s.transport, rss.NewParser(), s.store, summarizer, nil, s.logger, s.cfg)
	batch, err := c.FetchAll(ctx)

	s.NoError(err)
	s.Require().Len(batch.Articles, 1)
	s.Equal("About Long…", batch.Articles[0].Summary)
	s.Require().NotNil(batch.Articles[0].AISummary)
	s.Equal(ai, *batch.Articles[0].AISummary)
}

func (s *CoordinatorTestSuite) TestFetchAllProgressive_ReportsEachSource() {
	ctx := context.Background()
	body := feedXML(feedItem{title: "Story", link: "https://example.com/s", pubDate: time.Now().Format(time.RFC1123Z)})

	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(body), nil)
	s.transport.EXPECT().Get(gomock.Any(), verge.URL).Return(nil, errors.New("offline")).Times(3)

	results := map[string]domain.SourceResult{}
	batch, err := s.coordinator(bbc, verge).FetchAllProgressive(ctx, func(r domain.SourceResult) {
		results[r.Source] = r
	})

	s.NoError(err)
	s.Equal(1, batch.Succeeded)
	s.Require().Len(results, 2)
	s.NoError(results[bbc.Name].Err)
	s.True(results[bbc.Name].FirstFetch)
	s.Equal(1, results[bbc.Name].Added)
	s.Error(results[verge.Name].Err)
}

func (s *CoordinatorTestSuite) TestFetchAll_CancellationKeepsFinishedSources() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body := feedXML(feedItem{title: "Quick", link: "https://example.com/quick", pubDate: time.Now().Format(time.RFC1123Z)})
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(body), nil)
	s.transport.EXPECT().Get(gomock.Any(), verge.URL).DoAndReturn(
		func(ctx context.Context, _ string) (*transport.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)

	var once sync.Once
	batch, err := s.coordinator(bbc, verge).FetchAllProgressive(ctx, func(r domain.SourceResult) {
		if r.Source == bbc.Name {
			once.Do(cancel)
		}
	})

	s.NoError(err)
	s.Equal(domain.OriginFetched, batch.Origin)
	s.Equal(1, batch.Succeeded)
	s.Require().Len(batch.Failures, 1)
	s.ErrorIs(batch.Failures[0].Err, context.Canceled)

	_, bbcFetched := s.store.LastFetchTime(bbc.Name)
	_, vergeFetched := s.store.LastFetchTime(verge.Name)
	s.True(bbcFetched)
	s.False(vergeFetched)
	s.Equal(1, s.store.Len())
}

func (s *CoordinatorTestSuite) TestFetchAll_CancellationStopsRetries() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cfg.BackoffStep = time.Hour

	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).DoAndReturn(
		func(context.Context, string) (*transport.Response, error) {
			cancel()
			return nil, errors.New("timeout")
		},
	)

	batch, err := s.coordinator(bbc).FetchAll(ctx)

	s.NoError(err)
	s.Equal(domain.OriginPlaceholder, batch.Origin)
	s.Require().Len(batch.Failures, 1)
	s.ErrorIs(batch.Failures[0].Err, context.Canceled)
}

func (s *CoordinatorTestSuite) TestFetchSource_MergesOneSource() {
	ctx := context.Background()
	body := feedXML(feedItem{title: "Solo", link: "https://example.com/solo", pubDate: time.Now().Format(time.RFC1123Z)})
	s.transport.EXPECT().Get(gomock.Any(), verge.URL).Return(ok(body), nil)

	res := s.coordinator(bbc, verge).FetchSource(ctx, verge)

	s.NoError(res.Err)
	s.Equal(1, res.Fetched)
	s.Equal(1, res.Added)
	s.Equal(1, s.store.Len())
	s.False(s.store.HasCompletedFirstFetch())
}

func (s *CoordinatorTestSuite) TestFetchAll_SetsFetchTimeForEmptyFeed() {
	ctx := context.Background()
	store := mocks.NewMockArticleStore(s.ctrl)
	parser := mocks.NewMockFeedParser(s.ctrl)

	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok([]byte("<rss/>")), nil)
	parser.EXPECT().Parse([]byte("<rss/>")).Return(nil)
	store.EXPECT().LastFetchTime(bbc.Name).Return(time.Time{}, false)
	store.EXPECT().Merge(gomock.Any(), gomock.Len(0)).Return(nil)
	store.EXPECT().SetLastFetchTime(gomock.Any(), bbc.Name, gomock.Any())
	store.EXPECT().MarkFirstFetchComplete(gomock.Any())
	store.EXPECT().Articles().Return(nil)

	c := NewCoordinator([]domain.FeedSource{bbc}, s.transport, parser, store, nil, nil, s.logger, s.cfg)
	batch, err := c.FetchAll(ctx)

	s.NoError(err)
	s.Equal(domain.OriginFetched, batch.Origin)
	s.Empty(batch.Articles)
}

func (s *CoordinatorTestSuite) TestFetchAll_PublishesAfterCancellation() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	body := feedXML(feedItem{title: "Announced", link: "https://example.com/announced", pubDate: time.Now().Format(time.RFC1123Z)})
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).Return(ok(body), nil)
	s.transport.EXPECT().Get(gomock.Any(), verge.URL).DoAndReturn(
		func(ctx context.Context, _ string) (*transport.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	)

	var publishErr error
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *domain.Article) error {
			publishErr = ctx.Err()
			return publishErr
		},
	)

	c := NewCoordinator([]domain.FeedSource{bbc, verge}, s.transport, rss.NewParser(), s.store, nil, s.publisher, s.logger, s.cfg)
	batch, err := c.FetchAllProgressive(ctx, func(r domain.SourceResult) {
		if r.Source == bbc.Name {
			cancel()
		}
	})

	s.NoError(err)
	s.Equal(1, batch.Added)
	s.NoError(publishErr)
}

func (s *CoordinatorTestSuite) TestFetchSource_PublishesWithExpiredContext() {
	ctx, cancel := context.WithCancel(context.Background())

	body := feedXML(feedItem{title: "Late", link: "https://example.com/late", pubDate: time.Now().Format(time.RFC1123Z)})
	s.transport.EXPECT().Get(gomock.Any(), bbc.URL).DoAndReturn(
		func(context.Context, string) (*transport.Response, error) {
			cancel()
			return ok(body), nil
		},
	)
	var publishErr error
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *domain.Article) error {
			publishErr = ctx.Err()
			return publishErr
		},
	)

	c := NewCoordinator([]domain.FeedSource{bbc}, s.transport, rss.NewParser(), s.store, nil, s.publisher, s.logger, s.cfg)
	res := c.FetchSource(ctx, bbc)

	s.NoError(res.Err)
	s.Equal(1, res.Added)
	s.NoError(publishErr)
}
