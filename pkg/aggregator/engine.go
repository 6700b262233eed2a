package aggregator

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/umputun/feedstream/pkg/domain"
)

// Ingester is the cache-first fetch-and-parse operation for a single feed
type Ingester interface {
	FetchAndParse(ctx context.Context, url string, force bool) (*domain.FeedDocument, error)
}

// Tagger generates categorization tags for a freshly added feed
type Tagger interface {
	GenerateTags(ctx context.Context, title, description string, sampleTitles []string) ([]string, error)
}

// Invalidator drops the cached document of a removed feed
type Invalidator interface {
	Invalidate(ctx context.Context, url string)
}

// SubscriptionStore persists the subscription list between sessions
type SubscriptionStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// defaultTags is the degraded tag set when tag generation fails,
// a feed is still added without AI assistance
var defaultTags = []string{"general", "news"}

// colorPalette provides the per-feed display colors picked at creation
var colorPalette = []string{
	"#ef4444", "#f97316", "#f59e0b", "#84cc16", "#22c55e",
	"#14b8a6", "#0ea5e9", "#6366f1", "#a855f7", "#ec4899",
}

// Config holds the engine dependencies and settings
type Config struct {
	Ingester   Ingester
	Tagger     Tagger
	Cache      Invalidator
	Store      SubscriptionStore
	MaxWorkers int
}

// Engine owns the feed list, per-feed refresh status and the merged
// article stream. All accessors return copies, callers never observe
// in-progress mutations.
type Engine struct {
	svc        Ingester
	tagger     Tagger
	cache      Invalidator
	store      SubscriptionStore
	maxWorkers int
	now        func() time.Time

	mu       sync.RWMutex
	feeds    []domain.Feed
	statuses map[string]domain.FeedStatus

	inflight singleflight.Group // at most one fetch per URL at any time
}

// FeedError is a single feed's failure inside a batch, surfaced without
// aborting the batch
type FeedError struct {
	URL string `json:"url"`
	Msg string `json:"error"`
}

func (e FeedError) Error() string { return fmt.Sprintf("%s: %s", e.URL, e.Msg) }

// Result is the outcome of a batch refresh: the full feed list after the
// batch, the merged sorted article stream and the per-feed failures
type Result struct {
	Feeds    []domain.Feed    `json:"feeds"`
	Articles []domain.Article `json:"articles"`
	Errors   []FeedError      `json:"errors,omitempty"`
}

// NewEngine creates an aggregation engine
func NewEngine(cfg Config) *Engine {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}
	return &Engine{
		svc:        cfg.Ingester,
		tagger:     cfg.Tagger,
		cache:      cfg.Cache,
		store:      cfg.Store,
		maxWorkers: cfg.MaxWorkers,
		now:        time.Now,
		statuses:   make(map[string]domain.FeedStatus),
	}
}

// RefreshFeeds refreshes the given subscriptions concurrently and merges
// the outcome into the engine state. One feed's failure never cancels the
// others: failed feeds keep their last known good state when they already
// existed and are omitted when new. Subscriptions are persisted after any
// batch with at least one success.
func (e *Engine) RefreshFeeds(ctx context.Context, subs []domain.Subscription, force bool) Result {
	subs = dedupe(subs)

	// mark every target as refreshing before any i/o, feeds outside the
	// batch keep their status untouched
	e.mu.Lock()
	for i := range subs {
		subs[i] = e.normalizeLocked(subs[i])
		st := e.statuses[subs[i].URL]
		st.Refreshing = true
		e.statuses[subs[i].URL] = st
	}
	e.mu.Unlock()

	type outcome struct {
		doc *domain.FeedDocument
		err error
	}
	outcomes := make([]outcome, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxWorkers)
	for i, sub := range subs {
		g.Go(func() error {
			doc, err := e.fetchShared(gctx, sub.URL, force)
			outcomes[i] = outcome{doc: doc, err: err}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors, failures live in outcomes

	e.mu.Lock()
	var errs []FeedError
	succeeded := 0
	refreshedAt := e.now()
	for i, sub := range subs {
		st := e.statuses[sub.URL]
		st.Refreshing = false

		if outcomes[i].err != nil {
			lgr.Printf("[WARN] failed to refresh feed %s: %v", sub.URL, outcomes[i].err)
			errs = append(errs, FeedError{URL: sub.URL, Msg: outcomes[i].err.Error()})
			e.statuses[sub.URL] = st // LastRefreshed stays at its previous value
			continue
		}

		doc := outcomes[i].doc
		ts := refreshedAt
		st.LastRefreshed = &ts
		e.statuses[sub.URL] = st

		e.upsertLocked(domain.Feed{
			URL:      sub.URL,
			Name:     doc.Title,
			Articles: doc.Items,
			Tags:     sub.Tags,
			Category: sub.Category,
			Color:    sub.Color,
		})
		succeeded++
	}

	res := Result{Feeds: e.feedsLocked(), Articles: e.mergedLocked(), Errors: errs}
	e.mu.Unlock()

	if succeeded > 0 {
		e.persist(ctx)
	}

	return res
}

// RefreshAll refreshes every subscribed feed
func (e *Engine) RefreshAll(ctx context.Context, force bool) Result {
	e.mu.RLock()
	subs := make([]domain.Subscription, 0, len(e.feeds))
	for i := range e.feeds {
		subs = append(subs, e.feeds[i].Subscription())
	}
	e.mu.RUnlock()

	return e.RefreshFeeds(ctx, subs, force)
}

// AddFeed subscribes to a single feed. The fetch error surfaces directly
// and nothing is committed on failure. Tag generation failure degrades to
// the default tag set instead of blocking the add.
func (e *Engine) AddFeed(ctx context.Context, url string) (domain.Feed, error) {
	e.mu.Lock()
	if e.findLocked(url) != nil {
		e.mu.Unlock()
		return domain.Feed{}, fmt.Errorf("feed %s already exists", url)
	}
	st := e.statuses[url]
	st.Refreshing = true
	e.statuses[url] = st
	e.mu.Unlock()

	doc, err := e.fetchShared(ctx, url, false)
	if err != nil {
		e.mu.Lock()
		st := e.statuses[url]
		st.Refreshing = false
		e.statuses[url] = st
		e.mu.Unlock()
		return domain.Feed{}, err
	}

	tags := e.generateTags(ctx, doc)

	feed := domain.Feed{
		URL:      url,
		Name:     doc.Title,
		Articles: doc.Items,
		Tags:     tags,
		Color:    randColor(),
	}

	e.mu.Lock()
	ts := e.now()
	e.statuses[url] = domain.FeedStatus{LastRefreshed: &ts}
	e.upsertLocked(feed)
	e.mu.Unlock()

	e.persist(ctx)
	lgr.Printf("[INFO] added feed %s (%s) with tags %s", doc.Title, url, strings.Join(tags, ", "))
	return feed, nil
}

// AddFeeds subscribes to several feeds at once with batch refresh
// semantics, URLs already subscribed are skipped. Each successful new feed
// gets AI tags, degraded to defaults on tagger failure.
func (e *Engine) AddFeeds(ctx context.Context, urls []string) Result {
	e.mu.RLock()
	var subs []domain.Subscription
	for _, url := range urls {
		if url == "" || e.findLocked(url) != nil {
			continue
		}
		subs = append(subs, domain.Subscription{URL: url})
	}
	e.mu.RUnlock()

	res := e.RefreshFeeds(ctx, subs, false)

	// tag the feeds that made it in
	tagged := false
	for _, sub := range subs {
		e.mu.RLock()
		feed := e.findLocked(sub.URL)
		var doc *domain.FeedDocument
		if feed != nil && len(feed.Tags) == 0 {
			doc = &domain.FeedDocument{Title: feed.Name, Items: feed.Articles}
		}
		e.mu.RUnlock()
		if doc == nil {
			continue
		}

		tags := e.generateTags(ctx, doc)
		e.mu.Lock()
		if f := e.findLocked(sub.URL); f != nil {
			f.Tags = tags
		}
		e.mu.Unlock()
		tagged = true
	}
	if tagged {
		e.persist(ctx)
		e.mu.RLock()
		res.Feeds = e.feedsLocked()
		e.mu.RUnlock()
	}

	return res
}

// RemoveFeed drops a subscription, its status and its cache entry
func (e *Engine) RemoveFeed(ctx context.Context, url string) error {
	e.mu.Lock()
	idx := -1
	for i := range e.feeds {
		if e.feeds[i].URL == url {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("feed %s not found", url)
	}
	e.feeds = append(e.feeds[:idx], e.feeds[idx+1:]...)
	delete(e.statuses, url)
	e.mu.Unlock()

	if e.cache != nil {
		e.cache.Invalidate(ctx, url)
	}
	e.persist(ctx)
	lgr.Printf("[INFO] removed feed %s", url)
	return nil
}

// Articles returns the merged article stream, filtered. The stream is
// sorted descending by publish instant regardless of which feed's fetch
// resolved first.
func (e *Engine) Articles(filter domain.Filter) []domain.Article {
	e.mu.RLock()
	defer e.mu.RUnlock()

	articles := e.mergedFilteredLocked(filter.Tags)

	if term := strings.ToLower(strings.TrimSpace(filter.SearchTerm)); term != "" {
		kept := articles[:0]
		for _, a := range articles {
			if strings.Contains(strings.ToLower(a.Title), term) || strings.Contains(strings.ToLower(a.Summary), term) {
				kept = append(kept, a)
			}
		}
		articles = kept
	}

	return articles
}

// Feeds returns a snapshot of the subscribed feeds
func (e *Engine) Feeds() []domain.Feed {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.feedsLocked()
}

// Statuses returns a snapshot of per-feed refresh statuses keyed by URL
func (e *Engine) Statuses() map[string]domain.FeedStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	statuses := make(map[string]domain.FeedStatus, len(e.statuses))
	for url, st := range e.statuses {
		statuses[url] = st
	}
	return statuses
}

// AllTags returns the sorted union of tags across all feeds
func (e *Engine) AllTags() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := map[string]bool{}
	var tags []string
	for i := range e.feeds {
		for _, tag := range e.feeds[i].Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	sort.Strings(tags)
	return tags
}

// UpdateFeedDetails sets category and color of an existing feed
func (e *Engine) UpdateFeedDetails(ctx context.Context, url, category, color string) error {
	e.mu.Lock()
	feed := e.findLocked(url)
	if feed == nil {
		e.mu.Unlock()
		return fmt.Errorf("feed %s not found", url)
	}
	if category != "" {
		feed.Category = category
	}
	if color != "" {
		feed.Color = color
	}
	e.mu.Unlock()

	e.persist(ctx)
	return nil
}

// fetchShared funnels concurrent fetches of the same URL through
// singleflight, overlapping manual refreshes share a single in-flight call
func (e *Engine) fetchShared(ctx context.Context, url string, force bool) (*domain.FeedDocument, error) {
	v, err, _ := e.inflight.Do(url, func() (interface{}, error) {
		return e.svc.FetchAndParse(ctx, url, force)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.FeedDocument), nil
}

// generateTags asks the tagger for feed tags, falling back to the default
// set so a tagging failure never blocks feed addition
func (e *Engine) generateTags(ctx context.Context, doc *domain.FeedDocument) []string {
	samples := make([]string, 0, 5)
	for _, item := range doc.Items {
		if len(samples) == 5 {
			break
		}
		samples = append(samples, item.Title)
	}

	if e.tagger == nil {
		return append([]string(nil), defaultTags...)
	}

	tags, err := e.tagger.GenerateTags(ctx, doc.Title, doc.Description, samples)
	if err != nil || len(tags) == 0 {
		lgr.Printf("[WARN] tag generation failed for %q, using defaults: %v", doc.Title, err)
		return append([]string(nil), defaultTags...)
	}
	return tags
}

// upsertLocked replaces the feed with the same URL in place or appends it,
// the feed list order stays deterministic across refreshes
func (e *Engine) upsertLocked(feed domain.Feed) {
	if existing := e.findLocked(feed.URL); existing != nil {
		// tags, category and color carried by the subscription win only
		// when set, an empty subscription never wipes prior detail edits
		if feed.Tags == nil {
			feed.Tags = existing.Tags
		}
		if feed.Category == "" {
			feed.Category = existing.Category
		}
		if feed.Color == "" {
			feed.Color = existing.Color
		}
		*existing = feed
		return
	}
	if feed.Color == "" {
		feed.Color = randColor()
	}
	e.feeds = append(e.feeds, feed)
}

func (e *Engine) findLocked(url string) *domain.Feed {
	for i := range e.feeds {
		if e.feeds[i].URL == url {
			return &e.feeds[i]
		}
	}
	return nil
}

// normalizeLocked fills subscription fields from the existing feed where
// the subscription leaves them empty
func (e *Engine) normalizeLocked(sub domain.Subscription) domain.Subscription {
	if existing := e.findLocked(sub.URL); existing != nil {
		if sub.Tags == nil {
			sub.Tags = existing.Tags
		}
		if sub.Category == "" {
			sub.Category = existing.Category
		}
		if sub.Color == "" {
			sub.Color = existing.Color
		}
	}
	return sub
}

func (e *Engine) feedsLocked() []domain.Feed {
	feeds := make([]domain.Feed, len(e.feeds))
	copy(feeds, e.feeds)
	for i := range feeds {
		feeds[i].Articles = append([]domain.Article(nil), feeds[i].Articles...)
		feeds[i].Tags = append([]string(nil), feeds[i].Tags...)
	}
	return feeds
}

// mergedLocked builds the display-ready stream: per-feed articles stamped
// with the owning feed's color, flattened and stable-sorted descending by
// publish instant. Ties keep flattening order.
func (e *Engine) mergedLocked() []domain.Article {
	return e.mergedFilteredLocked(nil)
}

func (e *Engine) mergedFilteredLocked(tags []string) []domain.Article {
	wanted := map[string]bool{}
	for _, tag := range tags {
		wanted[tag] = true
	}

	var merged []domain.Article
	for i := range e.feeds {
		feed := &e.feeds[i]
		if len(wanted) > 0 && !hasAnyTag(feed.Tags, wanted) {
			continue
		}
		for _, a := range feed.Articles {
			a.FeedColor = feed.Color
			merged = append(merged, a)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Published.After(merged[j].Published)
	})
	return merged
}

func hasAnyTag(tags []string, wanted map[string]bool) bool {
	for _, tag := range tags {
		if wanted[tag] {
			return true
		}
	}
	return false
}

func dedupe(subs []domain.Subscription) []domain.Subscription {
	seen := map[string]bool{}
	out := subs[:0]
	for _, sub := range subs {
		if sub.URL == "" || seen[sub.URL] {
			continue
		}
		seen[sub.URL] = true
		out = append(out, sub)
	}
	return out
}

func randColor() string {
	return colorPalette[rand.Intn(len(colorPalette))] //nolint:gosec // display colors don't need crypto randomness
}
