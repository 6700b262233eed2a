package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxBodySize caps feed downloads, anything bigger is not a sane feed
const maxBodySize = 10 * 1024 * 1024

// Fetcher retrieves raw feed documents through an outbound proxy endpoint.
// The proxy takes the target URL as a query parameter and returns the feed
// body as-is, which sidesteps origins that refuse direct requests.
type Fetcher struct {
	client    *http.Client
	proxyURL  string
	userAgent string
}

// NewFetcher creates a proxy-routed feed fetcher
func NewFetcher(proxyURL string, timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		proxyURL:  proxyURL,
		userAgent: userAgent,
	}
}

// Fetch retrieves the raw feed document for feedURL. HTTP failures are
// classified: 404 -> ErrFeedNotFound, 429 -> ErrRateLimited, anything else
// non-2xx and transport errors -> ErrNetwork.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (string, error) {
	reqURL := f.proxyURL + "?url=" + url.QueryEscape(feedURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request for %s: %w", feedURL, err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	addBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w: %v", feedURL, ErrNetwork, err)
	}
	defer resp.Body.Close() //nolint:errcheck // nothing useful to do with close error

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("fetch %s: %w", feedURL, ErrFeedNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("fetch %s: %w", feedURL, ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", fmt.Errorf("fetch %s: unexpected status code %d: %w", feedURL, resp.StatusCode, ErrNetwork)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("read body of %s: %w: %v", feedURL, ErrNetwork, err)
	}

	return string(body), nil
}
