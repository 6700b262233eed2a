package feed

import (
	"context"
	"fmt"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedstream/pkg/domain"
)

// DocumentFetcher retrieves the raw feed document for a URL
type DocumentFetcher interface {
	Fetch(ctx context.Context, feedURL string) (string, error)
}

// DocumentParser transforms raw feed text into a normalized document
type DocumentParser interface {
	Parse(raw string) (*domain.FeedDocument, error)
}

// DocumentCache is the time-boxed cache consulted before any network call
type DocumentCache interface {
	Get(ctx context.Context, url string) (*domain.FeedDocument, bool)
	Put(ctx context.Context, url string, doc *domain.FeedDocument) error
}

// Service composes fetcher, parser and cache into a single cache-first
// fetch-and-parse operation
type Service struct {
	fetcher DocumentFetcher
	parser  DocumentParser
	cache   DocumentCache
}

// NewService creates the ingestion service
func NewService(fetcher DocumentFetcher, parser DocumentParser, cache DocumentCache) *Service {
	return &Service{fetcher: fetcher, parser: parser, cache: cache}
}

// FetchAndParse returns the feed document for url. Without force a fresh
// cache entry short-circuits the network entirely. The cache is written
// only after both fetch and parse succeeded, failures never clobber the
// previous entry.
func (s *Service) FetchAndParse(ctx context.Context, url string, force bool) (*domain.FeedDocument, error) {
	if !force {
		if doc, ok := s.cache.Get(ctx, url); ok {
			lgr.Printf("[DEBUG] cache hit for %s", url)
			return doc, nil
		}
	}

	raw, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := s.parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	if err := s.cache.Put(ctx, url, doc); err != nil {
		// a cache write failure is not an ingestion failure
		lgr.Printf("[WARN] cache write failed for %s: %v", url, err)
	}

	return doc, nil
}
