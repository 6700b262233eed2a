package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/umputun/feedstream/pkg/aggregator"
	"github.com/umputun/feedstream/pkg/domain"
)

// Server represents HTTP server instance
type Server struct {
	config  ConfigProvider
	engine  Engine
	ai      Insighter
	version string
	debug   bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Engine drives all feed operations behind the API
type Engine interface {
	AddFeed(ctx context.Context, url string) (domain.Feed, error)
	AddFeeds(ctx context.Context, urls []string) aggregator.Result
	RemoveFeed(ctx context.Context, url string) error
	RefreshAll(ctx context.Context, force bool) aggregator.Result
	UpdateFeedDetails(ctx context.Context, url, category, color string) error
	Articles(filter domain.Filter) []domain.Article
	Feeds() []domain.Feed
	Statuses() map[string]domain.FeedStatus
	AllTags() []string
	Import(ctx context.Context, r io.Reader) (aggregator.Result, error)
	Export(w io.Writer) error
}

// Insighter provides the AI-backed dashboard and discovery operations,
// may be nil when AI features are disabled
type Insighter interface {
	GenerateInsights(ctx context.Context, titles []string) (*domain.Insights, error)
	DiscoverFeeds(ctx context.Context, topic string) ([]domain.DiscoveredFeed, error)
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// New initializes a new server instance
func New(cfg ConfigProvider, engine Engine, ai Insighter, version string, debug bool) *Server {
	s := &Server{
		config:  cfg,
		engine:  engine,
		ai:      ai,
		version: version,
		debug:   debug,
		router:  routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	lgr.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		lgr.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			lgr.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("feedstream", "umputun", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)

		r.HandleFunc("GET /feeds", s.listFeedsHandler)
		r.HandleFunc("POST /feeds", s.addFeedHandler)
		r.HandleFunc("PUT /feeds", s.updateFeedHandler)
		r.HandleFunc("DELETE /feeds", s.removeFeedHandler)
		r.HandleFunc("POST /feeds/bulk", s.bulkAddHandler)

		r.HandleFunc("POST /refresh", s.refreshHandler)
		r.HandleFunc("GET /articles", s.articlesHandler)
		r.HandleFunc("GET /statuses", s.statusesHandler)
		r.HandleFunc("GET /tags", s.tagsHandler)

		r.HandleFunc("GET /dashboard", s.dashboardHandler)
		r.HandleFunc("GET /discover", s.discoverHandler)

		r.HandleFunc("GET /export", s.exportHandler)
		r.HandleFunc("POST /import", s.importHandler)
	})
}
