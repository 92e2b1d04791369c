package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/crawl"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defaults := config.DefaultConfig()

	configPath := flag.String("config", "", "YAML configuration file")
	stage := flag.String("stage", crawl.StageAll, "Stage to run: "+strings.Join(crawl.Stages(), ", "))
	pages := flag.Int("pages", defaults.AuthorPages, "Author listing pages to paginate")
	authorWorkers := flag.String("author-workers", defaults.AuthorWorkers, "Concurrent authors (number or auto)")
	bookWorkers := flag.String("book-workers", defaults.BookWorkers, "Concurrent books per author in the nested stage (number or auto)")
	detailWorkers := flag.String("detail-workers", defaults.DetailWorkers, "Concurrent book detail pages (number or auto)")
	maxRetries := flag.Int("max-retries", defaults.MaxRetries, "Attempts per book detail page")
	retryBackoffMs := flag.Int("retry-backoff", int(defaults.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaults.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	offset := flag.Int("offset", defaults.Offset, "Skip this many pending book URLs")
	limit := flag.Int("limit", defaults.Limit, "Scrape at most this many pending book URLs (0 = all)")
	baseURL := flag.String("base-url", defaults.BaseURL, "Catalog base URL")
	driver := flag.String("driver", defaults.Driver, "Page driver: rod or http")
	headless := flag.Bool("headless", defaults.Browser.Headless, "Run the browser headless")
	respectRobots := flag.Bool("respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives (http driver)")
	authorsFile := flag.String("authors", defaults.AuthorsFile, "Authors CSV path")
	bookURLsFile := flag.String("book-urls", defaults.BookURLsFile, "Book URL status CSV path")
	outputFile := flag.String("output", defaults.OutputFile, "Book details output path")
	outputFormat := flag.String("format", defaults.OutputFormat, "Output format: csv, json, or dual")
	appendOutput := flag.Bool("append", defaults.Append, "Append to an existing details file")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	overrides := map[string]func(){
		"pages":             func() { cfg.AuthorPages = *pages },
		"author-workers":    func() { cfg.AuthorWorkers = *authorWorkers },
		"book-workers":      func() { cfg.BookWorkers = *bookWorkers },
		"detail-workers":    func() { cfg.DetailWorkers = *detailWorkers },
		"max-retries":       func() { cfg.MaxRetries = *maxRetries },
		"retry-backoff":     func() { cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond },
		"retry-backoff-max": func() { cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond },
		"offset":            func() { cfg.Offset = *offset },
		"limit":             func() { cfg.Limit = *limit },
		"base-url":          func() { cfg.BaseURL = *baseURL },
		"driver":            func() { cfg.Driver = strings.ToLower(*driver) },
		"headless":          func() { cfg.Browser.Headless = *headless },
		"respect-robots":    func() { cfg.RespectRobotsTxt = *respectRobots },
		"authors":           func() { cfg.AuthorsFile = *authorsFile },
		"book-urls":         func() { cfg.BookURLsFile = *bookURLsFile },
		"output":            func() { cfg.OutputFile = *outputFile },
		"format":            func() { cfg.OutputFormat = strings.ToLower(*outputFormat) },
		"append":            func() { cfg.Append = *appendOutput },
		"v":                 func() { cfg.Verbose = *verbose },
		"metrics-addr":      func() { cfg.MetricsAddr = *metricsAddr },
	}
	flag.Visit(func(f *flag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting crawl",
		slog.String("stage", *stage),
		slog.String("base_url", cfg.BaseURL),
		slog.String("driver", cfg.Driver),
		slog.Int("author_workers", config.ResolveWorkers(cfg.AuthorWorkers)),
		slog.Int("detail_workers", config.ResolveWorkers(cfg.DetailWorkers)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	metrics := scraper.NewMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	factory := browser.NewFactory(cfg, nil, logger)
	runner := crawl.NewRunner(cfg, factory, metrics, logger)

	startTime := time.Now()
	results, runErr := runner.Run(ctx, *stage)
	duration := time.Since(startTime)

	if err := factory.Close(); err != nil {
		slog.Error("close browser", slog.Any("error", err))
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(results, duration, cfg)

	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		slog.Warn("crawl interrupted", slog.Any("error", runErr))
		os.Exit(130)
	default:
		slog.Error("crawl failed", slog.Any("error", runErr))
		os.Exit(1)
	}
}

func printSummary(results []*models.ScraperResult, duration time.Duration, cfg *config.Config) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	for _, result := range results {
		fmt.Printf("  Stage:         %s\n", result.Stage)
		fmt.Printf("    Inputs:      %d\n", result.Total)
		successRate := 0.0
		if result.Total > 0 {
			successRate = float64(result.Succeeded) / float64(result.Total) * 100
		}
		fmt.Printf("    Succeeded:   %d (%.2f%%)\n", result.Succeeded, successRate)
		fmt.Printf("    Skipped:     %d\n", result.Skipped)
		fmt.Printf("    Failed:      %d\n", len(result.FailedKeys))
		if result.Stage == crawl.StageDetails || result.Stage == crawl.StageNested {
			fmt.Printf("    Retries:     %d\n", result.Retries)
		}
		fmt.Printf("    Records:     %d -> %s\n", result.Items, outputFor(result.Stage, cfg))
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Println(separator)
}

func outputFor(stage string, cfg *config.Config) string {
	switch stage {
	case crawl.StageAuthors:
		return cfg.AuthorsFile
	case crawl.StageBookURLs:
		return cfg.BookURLsFile
	default:
		return cfg.OutputFile
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
