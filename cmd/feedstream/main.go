package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/feedstream/pkg/aggregator"
	"github.com/umputun/feedstream/pkg/cache"
	"github.com/umputun/feedstream/pkg/config"
	"github.com/umputun/feedstream/pkg/feed"
	"github.com/umputun/feedstream/pkg/llm"
	"github.com/umputun/feedstream/pkg/store"
	"github.com/umputun/feedstream/server"
)

// Opts with all CLI options
type Opts struct {
	Config string `short:"c" long:"config" env:"CONFIG" description:"config file (yaml)"`
	Listen string `short:"l" long:"listen" env:"LISTEN" description:"listen address, overrides config"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLog(opts.Debug, opts.NoColor, cfg.LLM.APIKey)

	log.Printf("[INFO] starting feedstream version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, cfg, opts.Debug); err != nil {
		log.Printf("[ERROR] feedstream failed: %v", err)
		cancel()
		os.Exit(1)
	}

	cancel()
	log.Print("[INFO] shutdown complete")
}

// run wires the ingestion pipeline, the aggregation engine and the HTTP
// server, then blocks until the context is canceled
func run(ctx context.Context, cfg *config.Config, dbg bool) error {
	kv, err := store.NewSQLite(ctx, store.Config{
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Printf("[WARN] failed to close storage: %v", err)
		}
	}()

	feedCache := cache.NewFeedCache(kv, cfg.Cache.TTL)
	fetcher := feed.NewFetcher(cfg.Proxy.URL, cfg.Proxy.Timeout, cfg.Proxy.UserAgent)
	svc := feed.NewService(fetcher, feed.NewParser(), feedCache)

	var tagger *llm.Tagger
	if cfg.LLM.Enabled() {
		tagger = llm.NewTagger(cfg.LLM)
	} else {
		log.Printf("[WARN] llm endpoint not set, ai features disabled")
	}

	engineCfg := aggregator.Config{
		Ingester:   svc,
		Cache:      feedCache,
		Store:      kv,
		MaxWorkers: cfg.Refresh.MaxWorkers,
	}
	var ai server.Insighter
	if tagger != nil {
		engineCfg.Tagger = tagger
		ai = tagger
	}
	engine := aggregator.NewEngine(engineCfg)

	// restore persisted subscriptions, a failure here is not fatal
	if err := engine.Load(ctx); err != nil {
		log.Printf("[WARN] failed to restore subscriptions: %v", err)
	}

	srv := server.New(cfg, engine, ai, revision, dbg)
	return srv.Run(ctx)
}

// loadConfig reads the config file when given, otherwise runs on defaults
func loadConfig(opts Opts) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			return nil, err
		}
	}
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}
	return cfg, nil
}

func setupLog(dbg, noColor bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = append(logOpts, lgr.Debug, lgr.CallerFile, lgr.CallerFunc)
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}
	for _, sec := range secs {
		if sec != "" {
			logOpts = append(logOpts, lgr.Secret(sec))
		}
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
