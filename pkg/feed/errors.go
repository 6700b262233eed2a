package feed

import "errors"

// classification errors for fetch and parse failures, callers pick them
// apart with errors.Is
var (
	// ErrFeedNotFound indicates the upstream answered 404 for the feed URL
	ErrFeedNotFound = errors.New("feed not found")

	// ErrRateLimited indicates the upstream or the proxy answered 429
	ErrRateLimited = errors.New("rate limited")

	// ErrNetwork covers transport failures and any other non-2xx status
	ErrNetwork = errors.New("network failure")

	// ErrMalformedFeed indicates the document is not interpretable as a feed
	// or yielded zero items
	ErrMalformedFeed = errors.New("malformed feed")
)
