package feed

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/umputun/feedstream/pkg/domain"
)

// summaryLimit caps the plain-text summary length, the "..." suffix is
// appended on top of it regardless of truncation
const summaryLimit = 200

// untitledFeed is the display title for feeds that don't declare one
const untitledFeed = "Untitled Feed"

// imgSrcRe pulls the first img src out of a raw html fragment
var imgSrcRe = regexp.MustCompile(`<img[^>]+src=["']?([^"'\s>]+)`)

// Parser transforms raw RSS 2.0 / Atom documents into normalized
// FeedDocuments. The two dialects use different tag names for equivalent
// concepts, gofeed folds them into one shape.
type Parser struct {
	stripper *bluemonday.Policy
}

// NewParser creates a feed parser
func NewParser() *Parser {
	return &Parser{stripper: bluemonday.StrictPolicy()}
}

// Parse interprets raw feed text. Items keep document order. Fails with
// ErrMalformedFeed on unparseable input or when no items can be extracted,
// a well-formed document with zero items is indistinguishable from a
// parsing failure and the caller should treat both the same way.
func (p *Parser) Parse(raw string) (*domain.FeedDocument, error) {
	parsed, err := gofeed.NewParser().ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}

	if len(parsed.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrMalformedFeed)
	}

	title := parsed.Title
	if title == "" {
		title = untitledFeed
	}

	doc := &domain.FeedDocument{
		Title:       title,
		Description: parsed.Description,
		Items:       make([]domain.Article, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		doc.Items = append(doc.Items, p.parseItem(item, title))
	}

	return doc, nil
}

// parseItem normalizes a single rss item or atom entry
func (p *Parser) parseItem(item *gofeed.Item, feedTitle string) domain.Article {
	article := domain.Article{
		Title:    item.Title,
		Link:     item.Link,
		FeedName: feedTitle,
	}

	// publish time: feed-native string as-is, parsed instant with a
	// "now" fallback so the merged stream always has a sort key
	now := time.Now()
	switch {
	case item.PublishedParsed != nil:
		article.Published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		article.Published = *item.UpdatedParsed
	default:
		article.Published = now
	}
	article.PublishedRaw = item.Published
	if article.PublishedRaw == "" {
		article.PublishedRaw = now.Format(time.RFC3339)
	}

	// summary source: description/summary first, content/content:encoded
	// as fallback (gofeed maps both dialects onto these two fields)
	source := item.Description
	if source == "" {
		source = item.Content
	}
	article.Summary = p.makeSummary(source)
	article.ThumbnailURL = extractThumbnail(item, source)

	return article
}

// makeSummary strips markup and caps the result. The "..." suffix is
// appended even when nothing was cut, matching the established output
// format consumers already rely on.
func (p *Parser) makeSummary(source string) string {
	text := p.stripper.Sanitize(source)
	text = strings.TrimSpace(html.UnescapeString(text))
	if runes := []rune(text); len(runes) > summaryLimit {
		text = string(runes[:summaryLimit])
	}
	return text + "..."
}

// extractThumbnail finds the best-effort preview image: media:thumbnail,
// then an image enclosure, then the first img tag in the raw summary source
func extractThumbnail(item *gofeed.Item, rawSource string) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, thumb := range media["thumbnail"] {
			if u := thumb.Attrs["url"]; u != "" {
				return u
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}

	if m := imgSrcRe.FindStringSubmatch(rawSource); len(m) == 2 {
		return m[1]
	}

	return ""
}
