package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"newsbits/internal/domain"
	"newsbits/internal/source/rss"
)

// candidates turns raw feed items into article parameters, in feed order.
// Items without a usable headline are dropped.
func candidates(src domain.FeedSource, items []rss.RawItem, now time.Time) []domain.ArticleParams {
	out := make([]domain.ArticleParams, 0, len(items))
	for _, it := range items {
		headline := rss.StripMarkup(it.Title)
		if headline == "" {
			continue
		}

		image := absoluteURL(src.URL, it.ImageURL)
		if image != "" {
			image = rss.EnhanceImageURL(image, src.Name)
		}

		out = append(out, domain.ArticleParams{
			Headline:    headline,
			Summary:     rss.StripMarkup(it.Description),
			Category:    src.Category,
			Source:      src.Name,
			PublishedAt: rss.NormalizeDate(it.PubDate, now),
			ImageURL:    image,
			ArticleURL:  absoluteURL(src.URL, it.Link),
		})
	}
	return out
}

// sinceLastFetch keeps items strictly newer than last.
func sinceLastFetch(params []domain.ArticleParams, last time.Time) []domain.ArticleParams {
	var out []domain.ArticleParams
	for _, p := range params {
		if p.PublishedAt.After(last) {
			out = append(out, p)
		}
	}
	return out
}

func (c *Coordinator) build(ctx context.Context, params []domain.ArticleParams) []domain.Article {
	out := make([]domain.Article, 0, len(params))
	for _, p := range params {
		if c.summarizer != nil && p.Summary != "" {
			p.Summary, p.AISummary = c.summarizer.Summarize(ctx, p.Summary)
		}
		if a, ok := domain.NewArticle(p); ok {
			out = append(out, a)
		}
	}
	return out
}

// absoluteURL resolves raw against base and returns "" for anything that is
// not an http(s) URL.
func absoluteURL(base, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if !ref.IsAbs() {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
