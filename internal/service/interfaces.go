package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"newsbits/internal/domain"
	"newsbits/internal/source/rss"
	"newsbits/internal/transport"
)

type Transport interface {
	Get(ctx context.Context, url string) (*transport.Response, error)
}

type FeedParser interface {
	Parse(data []byte) []rss.RawItem
}

type ArticleStore interface {
	Merge(ctx context.Context, items []domain.Article) []domain.Article
	Articles() []domain.Article
	LastFetchTime(source string) (time.Time, bool)
	SetLastFetchTime(ctx context.Context, source string, t time.Time)
	MarkFirstFetchComplete(ctx context.Context)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, *string)
}

type Publisher interface {
	Publish(ctx context.Context, article *domain.Article) error
	Close() error
}
