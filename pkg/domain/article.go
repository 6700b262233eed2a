package domain

import "time"

// Article represents a single normalized item from a syndicated feed.
// Parser output carries everything except FeedColor, stamped at merge time.
type Article struct {
	Title        string    `json:"title"`
	Link         string    `json:"link"`
	PublishedRaw string    `json:"published_raw"`
	Published    time.Time `json:"published"`
	Summary      string    `json:"summary"`
	FeedName     string    `json:"feed_name"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	FeedColor    string    `json:"feed_color,omitempty"`
}

// FeedDocument is the parsed representation of one feed fetch,
// the unit stored in the cache.
type FeedDocument struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Items       []Article `json:"items"`
}
