package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Article is one normalized news item ("bit") surfaced to the consumer.
// Values are never mutated after NewArticle returns them.
type Article struct {
	ID          string    `json:"id"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary"`
	AISummary   *string   `json:"ai_summary,omitempty"`
	Category    Category  `json:"category"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	ImageURL    string    `json:"image_url,omitempty"`
	ArticleURL  string    `json:"article_url,omitempty"`
}

// ArticleParams carries the inputs of NewArticle.
type ArticleParams struct {
	Headline    string
	Summary     string
	AISummary   *string
	Category    Category
	Source      string
	PublishedAt time.Time
	ImageURL    string
	ArticleURL  string
}

// NewArticle assigns a fresh process-local ID. It returns false when the
// headline is blank.
func NewArticle(p ArticleParams) (Article, bool) {
	headline := strings.TrimSpace(p.Headline)
	if headline == "" {
		return Article{}, false
	}

	summary := strings.TrimSpace(p.Summary)
	if summary == "" {
		summary = headline
	}

	return Article{
		ID:          uuid.NewString(),
		Headline:    headline,
		Summary:     summary,
		AISummary:   p.AISummary,
		Category:    p.Category,
		Source:      p.Source,
		PublishedAt: p.PublishedAt,
		ImageURL:    strings.TrimSpace(p.ImageURL),
		ArticleURL:  strings.TrimSpace(p.ArticleURL),
	}, true
}

// IdentityKey is the stable dedup and seen-tracking key. Two fetches of the
// same story get different IDs but the same key.
func (a Article) IdentityKey() string {
	if a.ArticleURL != "" {
		return "url:" + a.ArticleURL
	}
	return "title:" + a.Headline + "|" + a.Source
}

// FeedSource is one configured feed.
type FeedSource struct {
	URL      string   `yaml:"url"`
	Name     string   `yaml:"name"`
	Category Category `yaml:"category"`
}
