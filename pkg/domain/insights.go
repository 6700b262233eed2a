package domain

// Trend is one recurring topic across recent headlines
type Trend struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Insights is the AI-generated dashboard view over the article stream
type Insights struct {
	Summary string  `json:"summary"`
	Trends  []Trend `json:"trends"`
}

// DiscoveredFeed is a feed suggestion returned by topic discovery
type DiscoveredFeed struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
