package config

import "newsbits/internal/domain"

// DefaultSources is the built-in feed list used when the config names none.
func DefaultSources() []domain.FeedSource {
	return []domain.FeedSource{
		{Name: "BBC News", URL: "https://feeds.bbci.co.uk/news/rss.xml", Category: domain.CategoryBreaking},
		{Name: "BBC World", URL: "https://feeds.bbci.co.uk/news/world/rss.xml", Category: domain.CategoryWorld},
		{Name: "TechCrunch", URL: "https://techcrunch.com/feed/", Category: domain.CategoryTech},
		{Name: "The Verge", URL: "https://www.theverge.com/rss/index.xml", Category: domain.CategoryTech},
		{Name: "The Guardian Business", URL: "https://www.theguardian.com/uk/business/rss", Category: domain.CategoryBusiness},
		{Name: "ESPN", URL: "https://www.espn.com/espn/rss/news", Category: domain.CategorySports},
		{Name: "BBC Entertainment", URL: "https://feeds.bbci.co.uk/news/entertainment_and_arts/rss.xml", Category: domain.CategoryEntertainment},
		{Name: "BBC Science", URL: "https://feeds.bbci.co.uk/news/science_and_environment/rss.xml", Category: domain.CategoryScience},
		{Name: "BBC Health", URL: "https://feeds.bbci.co.uk/news/health/rss.xml", Category: domain.CategoryHealth},
	}
}
