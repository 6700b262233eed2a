package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_Fetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://example.com/feed.xml?a=1&b=2", r.URL.Query().Get("url"),
			"target url passed escaped as a query parameter")
		assert.Equal(t, "Feedstream/1.0", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept"))
		w.Write([]byte("<rss>feed body</rss>")) //nolint:errcheck
	}))
	defer ts.Close()

	fetcher := NewFetcher(ts.URL, 5*time.Second, "Feedstream/1.0")
	body, err := fetcher.Fetch(context.Background(), "https://example.com/feed.xml?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, "<rss>feed body</rss>", body)
}

func TestFetcher_Fetch_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, ErrFeedNotFound},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"server error", http.StatusInternalServerError, ErrNetwork},
		{"forbidden", http.StatusForbidden, ErrNetwork},
		{"bad gateway", http.StatusBadGateway, ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			fetcher := NewFetcher(ts.URL, 5*time.Second, "Feedstream/1.0")
			_, err := fetcher.Fetch(context.Background(), "https://example.com/feed.xml")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFetcher_Fetch_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	ts.Close() // closed server refuses connections

	fetcher := NewFetcher(ts.URL, time.Second, "Feedstream/1.0")
	_, err := fetcher.Fetch(context.Background(), "https://example.com/feed.xml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestFetcher_Fetch_ContextCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	fetcher := NewFetcher(ts.URL, 5*time.Second, "Feedstream/1.0")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := fetcher.Fetch(ctx, "https://example.com/feed.xml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}
