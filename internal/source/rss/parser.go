package rss

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// enclosureWidth is the width assumed for image enclosures, which are
// usually full size and carry no dimensions.
const enclosureWidth = 1000

// RawItem is one feed entry before it becomes an article.
type RawItem struct {
	Title       string
	Description string
	Link        string
	PubDate     string
	ImageURL    string
}

// Parser turns feed documents into raw items.
type Parser struct {
	parser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{parser: gofeed.NewParser()}
}

// Parse reads an RSS or Atom document. A document that cannot be parsed
// yields no items and no error.
func (p *Parser) Parse(data []byte) []RawItem {
	feed, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil || feed == nil {
		return nil
	}

	items := make([]RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		items = append(items, toRawItem(it))
	}
	return items
}

func toRawItem(it *gofeed.Item) RawItem {
	description := it.Description
	if description == "" {
		description = it.Content
	}

	pubDate := it.Published
	if pubDate == "" {
		pubDate = it.Updated
	}

	link := it.Link
	if link == "" && len(it.Links) > 0 {
		link = it.Links[0]
	}

	image := bestStructuredImage(it)
	if image == "" {
		if src, ok := ExtractFirstImage(it.Description); ok {
			image = src
		} else if src, ok := ExtractFirstImage(it.Content); ok {
			image = src
		}
	}

	return RawItem{
		Title:       strings.TrimSpace(it.Title),
		Description: description,
		Link:        strings.TrimSpace(link),
		PubDate:     strings.TrimSpace(pubDate),
		ImageURL:    image,
	}
}

type imageCandidate struct {
	url   string
	width int
}

// bestStructuredImage picks the widest of the item's media:content,
// media:thumbnail and image enclosure hints. Ties keep the first seen.
func bestStructuredImage(it *gofeed.Item) string {
	var candidates []imageCandidate

	media := it.Extensions["media"]
	candidates = appendMedia(candidates, media)
	for _, group := range media["group"] {
		candidates = appendMedia(candidates, group.Children)
	}

	for _, enc := range it.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "image/") {
			candidates = append(candidates, imageCandidate{url: enc.URL, width: enclosureWidth})
		}
	}

	best := imageCandidate{width: -1}
	for _, c := range candidates {
		if c.width > best.width {
			best = c
		}
	}
	return best.url
}

func appendMedia(candidates []imageCandidate, elems map[string][]ext.Extension) []imageCandidate {
	for _, name := range []string{"content", "thumbnail"} {
		for _, e := range elems[name] {
			url := strings.TrimSpace(e.Attrs["url"])
			if url == "" || !isImageMedia(e) {
				continue
			}
			width, _ := strconv.Atoi(e.Attrs["width"])
			candidates = append(candidates, imageCandidate{url: url, width: width})
		}
	}
	return candidates
}

func isImageMedia(e ext.Extension) bool {
	if medium := e.Attrs["medium"]; medium != "" && medium != "image" {
		return false
	}
	if typ := e.Attrs["type"]; typ != "" && !strings.HasPrefix(strings.ToLower(typ), "image/") {
		return false
	}
	return true
}
