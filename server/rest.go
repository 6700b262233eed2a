package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/feedstream/pkg/domain"
)

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
		"feeds":   len(s.engine.Feeds()),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// listFeedsHandler returns all subscribed feeds
func (s *Server) listFeedsHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, s.engine.Feeds())
}

// addFeedHandler subscribes to a single feed
func (s *Server) addFeedHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		renderError(w, r, fmt.Errorf("feed url is required"), http.StatusBadRequest)
		return
	}

	feed, err := s.engine.AddFeed(r.Context(), req.URL)
	if err != nil {
		lgr.Printf("[WARN] failed to add feed %s: %v", req.URL, err)
		renderError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	renderJSON(w, r, http.StatusCreated, feed)
}

// bulkAddHandler subscribes to several feeds, partial failures reported
// in the result without failing the request
func (s *Server) bulkAddHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		renderError(w, r, fmt.Errorf("urls list is required"), http.StatusBadRequest)
		return
	}

	renderJSON(w, r, http.StatusOK, s.engine.AddFeeds(r.Context(), req.URLs))
}

// updateFeedHandler edits category and color of a feed
func (s *Server) updateFeedHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string `json:"url"`
		Category string `json:"category"`
		Color    string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		renderError(w, r, fmt.Errorf("feed url is required"), http.StatusBadRequest)
		return
	}

	if err := s.engine.UpdateFeedDetails(r.Context(), req.URL, req.Category, req.Color); err != nil {
		renderError(w, r, err, http.StatusNotFound)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]string{"result": "updated"})
}

// removeFeedHandler drops a subscription, the url comes as query param
func (s *Server) removeFeedHandler(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		renderError(w, r, fmt.Errorf("url query parameter is required"), http.StatusBadRequest)
		return
	}

	if err := s.engine.RemoveFeed(r.Context(), url); err != nil {
		renderError(w, r, err, http.StatusNotFound)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]string{"result": "removed"})
}

// refreshHandler refreshes all feeds, force=true bypasses the cache
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	renderJSON(w, r, http.StatusOK, s.engine.RefreshAll(r.Context(), force))
}

// articlesHandler returns the merged stream, optionally filtered with
// search and comma-separated tags query params
func (s *Server) articlesHandler(w http.ResponseWriter, r *http.Request) {
	filter := domain.Filter{SearchTerm: r.URL.Query().Get("search")}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}
	renderJSON(w, r, http.StatusOK, s.engine.Articles(filter))
}

// statusesHandler returns per-feed refresh status keyed by URL
func (s *Server) statusesHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, s.engine.Statuses())
}

// tagsHandler returns the union of tags across feeds
func (s *Server) tagsHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, s.engine.AllTags())
}

// dashboardHandler returns AI insights over the current article stream
func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	if s.ai == nil {
		renderError(w, r, fmt.Errorf("ai features are disabled"), http.StatusServiceUnavailable)
		return
	}

	articles := s.engine.Articles(domain.Filter{})
	titles := make([]string, 0, len(articles))
	for _, a := range articles {
		titles = append(titles, a.Title)
	}

	insights, err := s.ai.GenerateInsights(r.Context(), titles)
	if err != nil {
		lgr.Printf("[WARN] failed to generate insights: %v", err)
		renderError(w, r, err, http.StatusBadGateway)
		return
	}
	renderJSON(w, r, http.StatusOK, insights)
}

// discoverHandler suggests feeds for a topic
func (s *Server) discoverHandler(w http.ResponseWriter, r *http.Request) {
	if s.ai == nil {
		renderError(w, r, fmt.Errorf("ai features are disabled"), http.StatusServiceUnavailable)
		return
	}

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		renderError(w, r, fmt.Errorf("topic query parameter is required"), http.StatusBadRequest)
		return
	}

	feeds, err := s.ai.DiscoverFeeds(r.Context(), topic)
	if err != nil {
		lgr.Printf("[WARN] failed to discover feeds for %q: %v", topic, err)
		renderError(w, r, err, http.StatusBadGateway)
		return
	}
	renderJSON(w, r, http.StatusOK, feeds)
}

// exportHandler streams the subscription list as a JSON attachment
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="feedstream_feeds.json"`)
	if err := s.engine.Export(w); err != nil {
		lgr.Printf("[ERROR] failed to export feeds: %v", err)
	}
}

// importHandler reads a JSON subscription list and refreshes it
func (s *Server) importHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Import(r.Context(), r.Body)
	if err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}
	renderJSON(w, r, http.StatusOK, res)
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			lgr.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
