package domain

import "time"

// Feed is a user subscription identified by URL, with the last known
// articles attached. Articles are never persisted, they are re-fetched.
type Feed struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Articles []Article `json:"articles,omitempty"`
	Tags     []string  `json:"tags"`
	Category string    `json:"category,omitempty"`
	Color    string    `json:"color,omitempty"`
}

// Subscription is the persisted and imported/exported subset of a Feed
type Subscription struct {
	URL      string   `json:"url"`
	Name     string   `json:"name"`
	Tags     []string `json:"tags"`
	Category string   `json:"category"`
	Color    string   `json:"color"`
}

// Subscription extracts the durable part of a feed
func (f *Feed) Subscription() Subscription {
	return Subscription{URL: f.URL, Name: f.Name, Tags: f.Tags, Category: f.Category, Color: f.Color}
}

// FeedStatus is transient per-URL refresh state, scoped to the session
type FeedStatus struct {
	Refreshing    bool       `json:"refreshing"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
}

// Filter narrows the merged article stream. SearchTerm matches title and
// summary case-insensitively, Tags select articles of feeds carrying any of them.
type Filter struct {
	SearchTerm string
	Tags       []string
}
