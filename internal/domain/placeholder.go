package domain

import "time"

var placeholderSeeds = []ArticleParams{
	{
		Headline: "Welcome to your news feed",
		Summary:  "Fresh stories from your sources will appear here as soon as a connection is available.",
		Category: CategoryBreaking,
		Source:   "Newsbits",
	},
	{
		Headline: "Swipe through the day in bits",
		Summary:  "Every story is trimmed to a short summary so you can catch up in minutes.",
		Category: CategoryTech,
		Source:   "Newsbits",
	},
	{
		Headline: "Stories you have seen stay seen",
		Summary:  "Articles you already read are remembered and won't be shown again.",
		Category: CategoryWorld,
		Source:   "Newsbits",
	},
}

// Placeholders returns the built-in set shown when nothing else is available.
// Each one is a minute older than the previous.
func Placeholders(now time.Time) []Article {
	out := make([]Article, 0, len(placeholderSeeds))
	for i, p := range placeholderSeeds {
		p.PublishedAt = now.Add(-time.Duration(i) * time.Minute)
		if a, ok := NewArticle(p); ok {
			out = append(out, a)
		}
	}
	return out
}
