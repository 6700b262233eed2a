package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedstream/pkg/domain"
)

// Store is the durable key-value backend the cache writes through
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// DefaultTTL is the cache freshness window
const DefaultTTL = time.Hour

// keyPrefix namespaces cache entries in the shared key-value store
const keyPrefix = "feed-cache:"

// entry wraps a parsed feed document with its fetch time, epoch millis to
// keep the stored record portable
type entry struct {
	Timestamp int64               `json:"timestamp"`
	Data      domain.FeedDocument `json:"data"`
}

// FeedCache is a time-boxed cache of parsed feed documents keyed by feed
// URL. Stale and corrupted entries are purged on read and never surfaced
// as errors, a cache miss is always a safe answer.
type FeedCache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewFeedCache creates a cache over the given store, ttl <= 0 falls back
// to DefaultTTL
func NewFeedCache(store Store, ttl time.Duration) *FeedCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FeedCache{store: store, ttl: ttl, now: time.Now}
}

// Get returns the cached document for url if it is younger than the ttl.
// Each returned article gets its FeedName rewritten to the document title,
// cached copies may predate a title correction.
func (c *FeedCache) Get(ctx context.Context, url string) (*domain.FeedDocument, bool) {
	raw, ok, err := c.store.Get(ctx, keyPrefix+url)
	if err != nil {
		lgr.Printf("[WARN] cache read failed for %s: %v", url, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		lgr.Printf("[WARN] purging corrupted cache entry for %s: %v", url, err)
		c.drop(ctx, url)
		return nil, false
	}

	age := c.now().Sub(time.UnixMilli(e.Timestamp))
	if age >= c.ttl {
		c.drop(ctx, url)
		return nil, false
	}

	doc := e.Data
	doc.Items = make([]domain.Article, len(e.Data.Items))
	copy(doc.Items, e.Data.Items)
	for i := range doc.Items {
		doc.Items[i].FeedName = doc.Title
	}

	return &doc, true
}

// Put stores the document for url, overwriting any previous entry
func (c *FeedCache) Put(ctx context.Context, url string, doc *domain.FeedDocument) error {
	data, err := json.Marshal(entry{Timestamp: c.now().UnixMilli(), Data: *doc})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, keyPrefix+url, string(data))
}

// Invalidate removes the entry for url
func (c *FeedCache) Invalidate(ctx context.Context, url string) {
	c.drop(ctx, url)
}

func (c *FeedCache) drop(ctx context.Context, url string) {
	if err := c.store.Delete(ctx, keyPrefix+url); err != nil {
		lgr.Printf("[WARN] cache delete failed for %s: %v", url, err)
	}
}
